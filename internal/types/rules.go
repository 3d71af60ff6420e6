package types

import "time"

/*
 * Domain types for rule evaluation.
 *
 * Rule is the normalized, decoded form of an operator-authored rule record.
 * Raw records are decoded once by internal/rules (Normalize); nothing
 * downstream re-inspects JSON.
 *
 * Key types:
 *   - Rule: activation window, priority, ordered conditions, criteria, action
 *   - Condition: one named condition key paired with its Expectation
 *   - Action: abstract action type plus operator-authored data
 */

// ActionType names a rule action.
type ActionType string

const (
	ActionJSRedirect        ActionType = "js-redirect"
	ActionServer301Redirect ActionType = "server-301-redirect"
	ActionServer302Redirect ActionType = "server-302-redirect"
	ActionServerInclude     ActionType = "server-include"
	ActionServerEchoData    ActionType = "server-echo-data"
	ActionJSIncludeHTML     ActionType = "js-includehtml"
	ActionJSExec            ActionType = "js-exec"
)

// IsRedirect reports whether the action type carries a target URL.
func (t ActionType) IsRedirect() bool {
	return t == ActionJSRedirect || t == ActionServer301Redirect || t == ActionServer302Redirect
}

// Condition pairs a condition key with its expectation.
type Condition struct {
	Key    string
	Expect Expectation
}

// Action is the abstract action attached to a rule.
type Action struct {
	Type ActionType
	Data map[string]any
}

// Rule is a normalized rule ready for matching.
type Rule struct {
	ID         RuleID
	Enabled    bool
	Priority   int
	StartAt    *time.Time // nil = unbounded
	EndAt      *time.Time // nil = unbounded
	Segment    string
	Conditions Conditions // evaluated in authored order
	Criteria   []string
	Action     Action
}

// HasCriterion reports whether name is one of the rule's criteria.
// Comparison is exact (case-sensitive).
func (r *Rule) HasCriterion(name string) bool {
	for _, c := range r.Criteria {
		if c == name {
			return true
		}
	}
	return false
}
