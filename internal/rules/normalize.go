// internal/rules/normalize.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/solatis/tidegate/internal/types"
)

/*
 * Rule Store normalization.
 *
 * Normalize turns raw rule records into the ordered rule list:
 *   1. Drop entries that are not JSON objects or have malformed conditions
 *   2. Drop inactive rules (enabled falsy, now outside [start_at, end_at])
 *   3. Missing or non-numeric priority becomes DefaultPriority; numeric
 *      priorities are truncated to int
 *   4. Stable sort ascending by priority
 *
 * Stable sort: equal-priority rules keep their input order. That order is
 * the tie-break for which rule wins and must not depend on sort internals.
 *
 * Activation bounds accept any format dateparse understands and are read in
 * UTC when no zone is given. A bound that does not parse is ignored
 * (unbounded), never fatal.
 */

// wireRule is the raw record shape. Every field is kept raw so that loosely
// typed records (string priorities, numeric enabled flags) decode.
type wireRule struct {
	ID         json.RawMessage `json:"id"`
	Enabled    json.RawMessage `json:"enabled"`
	Priority   json.RawMessage `json:"priority"`
	StartAt    json.RawMessage `json:"start_at"`
	EndAt      json.RawMessage `json:"end_at"`
	Segment    json.RawMessage `json:"segment"`
	Conditions json.RawMessage `json:"conditions"`
	Criteria   json.RawMessage `json:"criteria"`
	Action     json.RawMessage `json:"action"`
}

// Normalize filters, defaults and orders raw rule records. Idempotent for a
// fixed now: the same input always yields the same ordered output.
func Normalize(raw []json.RawMessage, now time.Time) []types.Rule {
	rules := make([]types.Rule, 0, len(raw))
	for _, entry := range raw {
		rule, err := DecodeRule(entry)
		if err != nil {
			continue
		}
		if !IsActive(&rule, now) {
			continue
		}
		rules = append(rules, rule)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return rules
}

// DecodeRule decodes one raw record. Returns ErrRuleNotObject for non-object
// entries and ErrInvalidRule for malformed conditions.
func DecodeRule(entry json.RawMessage) (types.Rule, error) {
	trimmed := bytes.TrimSpace(entry)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Rule{}, types.ErrRuleNotObject
	}

	var w wireRule
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return types.Rule{}, fmt.Errorf("%w: %v", types.ErrInvalidRule, err)
	}

	rule := types.Rule{
		ID:       types.RuleID(CoerceText(decodeScalar(w.ID))),
		Enabled:  true,
		Priority: decodePriority(w.Priority),
		Segment:  CoerceText(decodeScalar(w.Segment)),
		Criteria: decodeCriteria(w.Criteria),
		Action:   decodeAction(w.Action),
	}

	if enabled := decodeScalarOrAny(w.Enabled); enabled != nil {
		rule.Enabled = truthy(enabled)
	}
	rule.StartAt = decodeBound(w.StartAt)
	rule.EndAt = decodeBound(w.EndAt)

	if len(w.Conditions) > 0 {
		if err := json.Unmarshal(w.Conditions, &rule.Conditions); err != nil {
			return types.Rule{}, fmt.Errorf("%w: conditions: %v", types.ErrInvalidRule, err)
		}
	}

	return rule, nil
}

// IsActive reports whether the rule is enabled and now lies within
// [StartAt, EndAt]. Missing bounds are unbounded.
func IsActive(rule *types.Rule, now time.Time) bool {
	if !rule.Enabled {
		return false
	}
	if rule.StartAt != nil && now.Before(*rule.StartAt) {
		return false
	}
	if rule.EndAt != nil && now.After(*rule.EndAt) {
		return false
	}
	return true
}

// decodePriority truncates numeric priorities and defaults the rest.
func decodePriority(raw json.RawMessage) int {
	num := CoerceNumeric(decodeScalar(raw))
	if !num.Numeric {
		return types.DefaultPriority
	}
	switch {
	case num.Value >= math.MaxInt32:
		return math.MaxInt32
	case num.Value <= math.MinInt32:
		return math.MinInt32
	default:
		return int(num.Value)
	}
}

// decodeBound parses an activation bound. Empty-ish values and unparsable
// text yield nil.
func decodeBound(raw json.RawMessage) *time.Time {
	v := decodeScalar(raw)
	if !truthy(v) {
		return nil
	}
	text := strings.TrimSpace(CoerceText(v))
	if text == "" {
		return nil
	}
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// decodeCriteria keeps string entries of a criteria array. Anything else
// yields no criteria, so the rule can never be triggered.
func decodeCriteria(raw json.RawMessage) []string {
	var list []any
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeAction reads {type, data}. A non-object data field becomes empty data.
func decodeAction(raw json.RawMessage) types.Action {
	var a struct {
		Type json.RawMessage `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &a) != nil {
		return types.Action{Data: map[string]any{}}
	}
	action := types.Action{
		Type: types.ActionType(strings.TrimSpace(CoerceText(decodeScalar(a.Type)))),
		Data: map[string]any{},
	}
	if len(a.Data) > 0 {
		var data map[string]any
		if json.Unmarshal(a.Data, &data) == nil && data != nil {
			action.Data = data
		}
	}
	return action
}

// decodeScalar returns the decoded JSON scalar, or nil for objects, arrays,
// null and absent fields.
func decodeScalar(raw json.RawMessage) any {
	v := decodeScalarOrAny(raw)
	switch v.(type) {
	case string, float64, bool:
		return v
	default:
		return nil
	}
}

func decodeScalarOrAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// truthy follows loose record semantics: false, 0, "", "0", null and empty
// containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0"
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
