// Package types provides domain models shared across tidegate components.
//
// Zero-dependency design: types.go, rules.go, expectation.go and errors.go use
// only the standard library so every layer (rules, ipintel, evalctx, action)
// can import them without cycles. ID utilities in ids.go import uuid.
package types

// DecisionID represents a UUIDv7 decision identifier.
// Returned to browser callers as visit_id.
type DecisionID string

// RuleID is the operator-assigned rule identifier. Free-form, not a UUID.
type RuleID string

// CriterionServerSide is the trigger sentinel that makes a rule eligible for
// server-evaluated decisions.
const CriterionServerSide = "Server-Side"

// DefaultPriority is assigned to rules with a missing or non-numeric priority.
const DefaultPriority = 100

// Resource limits enforced at the transport boundary.
const (
	// MaxDecisionBodySize limits decision request bodies.
	MaxDecisionBodySize = 1024 * 1024

	// MaxClientMetaKeys bounds the number of client metadata keys merged into a context.
	MaxClientMetaKeys = 512
)

// DecisionInput is the transport-independent decision request.
type DecisionInput struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Referrer    string            `json:"referrer"`
	UserAgent   string            `json:"userAgent"`
	Headers     map[string]string `json:"headers,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	QueryParams map[string]any    `json:"queryParams,omitempty"`
	PostParams  map[string]any    `json:"postParams,omitempty"`
	RemoteIP    string            `json:"remoteIp"`
	ClientMeta  map[string]any    `json:"clientMeta,omitempty"`
}

// DecisionOutput is the transport-independent decision response.
// MatchedRuleID and Action are nil when no rule matched or the matched
// rule resolved to no action.
type DecisionOutput struct {
	DecisionID    DecisionID        `json:"decisionId"`
	MatchedRuleID *RuleID           `json:"matchedRuleId"`
	Action        *ActionDescriptor `json:"action"`
	Criteria      []string          `json:"criteria"`
}

// ActionDescriptor is the secret-free representation of a matched rule's action.
type ActionDescriptor struct {
	Type   ActionType     `json:"type"`
	Data   map[string]any `json:"data"`
	RuleID RuleID         `json:"rule_id"`
}
