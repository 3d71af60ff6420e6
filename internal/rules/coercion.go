// internal/rules/coercion.go
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

/*
 * Value coercion for condition evaluation.
 *
 * Every actual value is compared as text (sact). Ordering operators
 * (gt/lt/gte/lte/between) compare numerically only when BOTH sides are
 * numeric; otherwise they fall back to byte-wise lexicographic order.
 *
 * Numeric strings: optional sign, digits with optional fraction, optional
 * exponent, surrounding whitespace allowed. Hex, inf, nan and digit
 * separators are not numeric.
 *
 * Null vs empty: CoerceText(nil) is "", so eq/neq cannot tell a missing
 * value from an empty one. Only the empty/not_empty operators look at the
 * raw actual value.
 */

var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CoercionResult holds a numeric coercion outcome.
type CoercionResult struct {
	Value   float64
	Numeric bool
}

// CoerceText converts an actual or operand value to its comparison text.
// Lenient: accepts any type.
func CoerceText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CoerceNumeric reports whether value is numeric and its float64 value.
// Strict: booleans and nil are never numeric.
func CoerceNumeric(value any) CoercionResult {
	switch v := value.(type) {
	case float64:
		return CoercionResult{Value: v, Numeric: true}
	case int:
		return CoercionResult{Value: float64(v), Numeric: true}
	case int64:
		return CoercionResult{Value: float64(v), Numeric: true}
	case string:
		return parseNumeric(v)
	default:
		return CoercionResult{}
	}
}

// IsNumeric reports whether s is a numeric string.
func IsNumeric(s string) bool {
	return parseNumeric(s).Numeric
}

func parseNumeric(s string) CoercionResult {
	s = strings.TrimSpace(s)
	if s == "" || !numericPattern.MatchString(s) {
		return CoercionResult{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range exponents still order correctly as +/-Inf.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return CoercionResult{Value: f, Numeric: true}
		}
		return CoercionResult{}
	}
	return CoercionResult{Value: f, Numeric: true}
}

// compareOrdered performs a three-way comparison (-1/0/1) of sact against
// operand: numeric when both are numeric, lexicographic otherwise.
func compareOrdered(sact string, operand any) int {
	a := parseNumeric(sact)
	b := CoerceNumeric(operand)
	if a.Numeric && b.Numeric {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(sact, CoerceText(operand))
}
