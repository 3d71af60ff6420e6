// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/tidegate/internal/types"
)

/*
 * Condition Evaluator.
 *
 * Match(expectation, actual) is a pure two-argument predicate. It knows
 * nothing about condition names; name-specific extraction happens in the
 * matcher before Match is called.
 *
 * Operators (sact = CoerceText(actual)):
 *   - empty/not_empty: raw actual is nil or ""
 *   - eq/neq: text equality of operand vs sact
 *   - gt/lt/gte/lte: numeric if both numeric, else lexicographic
 *   - between: [min,max] list or "min,max" text, each bound optional
 *   - contains/not_contains: case-insensitive substring
 *   - in/not_in: membership in a comma list (trimmed, empties dropped)
 *   - regex: case-sensitive RE2 match; bad or empty pattern is a miss
 *   - anything else: eq
 *
 * Literal shorthands: "is_not_empty", "empty", "regex:/pattern/", else equality.
 */

// Operator is a condition operator token.
type Operator string

const (
	OpEmpty       Operator = "empty"
	OpNotEmpty    Operator = "not_empty"
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpLt          Operator = "lt"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpBetween     Operator = "between"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpRegex       Operator = "regex"
)

// Legacy literal tokens.
const (
	literalNotEmpty    = "is_not_empty"
	literalEmpty       = "empty"
	literalRegexPrefix = "regex:/"
)

// Match reports whether actual satisfies the expectation. Never panics;
// object and invalid expectations never match.
func Match(exp types.Expectation, actual any) bool {
	switch exp.Kind {
	case types.ExpectLiteral:
		return matchLiteral(exp.Literal, actual)
	case types.ExpectOperator:
		return Compare(Operator(exp.Op), exp.Value, actual)
	default:
		return false
	}
}

// matchLiteral applies the bare-value shorthands.
func matchLiteral(lit string, actual any) bool {
	sact := CoerceText(actual)
	switch {
	case lit == literalNotEmpty:
		return sact != ""
	case lit == literalEmpty:
		return sact == ""
	case len(lit) > len(literalRegexPrefix) && strings.HasPrefix(lit, literalRegexPrefix) && strings.HasSuffix(lit, "/"):
		return matchPattern(lit[len(literalRegexPrefix):len(lit)-1], sact)
	default:
		return lit == sact
	}
}

// Compare applies op to compare actual against operand.
func Compare(op Operator, operand, actual any) bool {
	sact := CoerceText(actual)

	switch op {
	case OpEmpty:
		return isEmpty(actual)
	case OpNotEmpty:
		return !isEmpty(actual)
	case OpEq:
		return CoerceText(operand) == sact
	case OpNeq:
		return CoerceText(operand) != sact
	case OpGt:
		return compareOrdered(sact, operand) > 0
	case OpLt:
		return compareOrdered(sact, operand) < 0
	case OpGte:
		return compareOrdered(sact, operand) >= 0
	case OpLte:
		return compareOrdered(sact, operand) <= 0
	case OpBetween:
		return compareBetween(sact, operand)
	case OpContains:
		return containsFold(sact, CoerceText(operand))
	case OpNotContains:
		return !containsFold(sact, CoerceText(operand))
	case OpIn:
		return compareIn(sact, operand)
	case OpNotIn:
		return !compareIn(sact, operand)
	case OpRegex:
		return matchPattern(CoerceText(operand), sact)
	default:
		return CoerceText(operand) == sact
	}
}

func isEmpty(actual any) bool {
	if actual == nil {
		return true
	}
	s, ok := actual.(string)
	return ok && s == ""
}

// compareBetween checks min <= sact <= max; a nil or "" bound is unconstrained.
func compareBetween(sact string, operand any) bool {
	lo, hi := betweenBounds(operand)
	if !isUnbounded(lo) && compareOrdered(sact, lo) < 0 {
		return false
	}
	if !isUnbounded(hi) && compareOrdered(sact, hi) > 0 {
		return false
	}
	return true
}

// betweenBounds extracts bounds from a [min,max] list or "min,max" text.
// Text bounds are not trimmed; numeric detection tolerates surrounding space.
func betweenBounds(operand any) (lo, hi any) {
	if list, ok := operand.([]any); ok {
		if len(list) > 0 {
			lo = list[0]
		}
		if len(list) > 1 {
			hi = list[1]
		}
		return lo, hi
	}
	parts := strings.SplitN(CoerceText(operand), ",", 2)
	lo = parts[0]
	if len(parts) > 1 {
		hi = parts[1]
	}
	return lo, hi
}

func isUnbounded(bound any) bool {
	if bound == nil {
		return true
	}
	s, ok := bound.(string)
	return ok && s == ""
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// compareIn checks exact membership of sact in the normalized list.
func compareIn(sact string, operand any) bool {
	for _, item := range NormalizeList(operand) {
		if item == sact {
			return true
		}
	}
	return false
}

// NormalizeList turns a list operand or comma-separated text into trimmed,
// non-empty items in order.
func NormalizeList(operand any) []string {
	var raw []string
	switch v := operand.(type) {
	case nil:
		return nil
	case []any:
		raw = make([]string, 0, len(v))
		for _, item := range v {
			raw = append(raw, CoerceText(item))
		}
	case []string:
		raw = v
	default:
		raw = strings.Split(CoerceText(v), ",")
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
