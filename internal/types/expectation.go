package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ExpectationKind tags the Expectation variant.
type ExpectationKind int

const (
	// ExpectLiteral is a bare scalar: implicit equality or a legacy token.
	ExpectLiteral ExpectationKind = iota
	// ExpectOperator is an explicit {op, value} pair.
	ExpectOperator
	// ExpectObject is an object without "op" (per-name expectations such as
	// query_params, or option objects such as {value} and {param}).
	ExpectObject
	// ExpectInvalid never matches (arrays, objects with a non-scalar op).
	ExpectInvalid
)

// Expectation is the decoded right-hand side of a condition.
type Expectation struct {
	Kind    ExpectationKind
	Literal string                 // ExpectLiteral
	Op      string                 // ExpectOperator, lower-cased
	Value   any                    // ExpectOperator operand (string, float64, bool, nil, []any)
	Fields  map[string]Expectation // ExpectObject members
}

// Lit builds a literal expectation.
func Lit(s string) Expectation {
	return Expectation{Kind: ExpectLiteral, Literal: s}
}

// Op builds an operator expectation.
func Op(op string, value any) Expectation {
	return Expectation{Kind: ExpectOperator, Op: op, Value: value}
}

// Member returns the literal text of an object member, e.g. "value" or "param".
func (e Expectation) Member(name string) (string, bool) {
	if e.Kind != ExpectObject {
		return "", false
	}
	m, ok := e.Fields[name]
	if !ok || m.Kind != ExpectLiteral {
		return "", false
	}
	return m.Literal, true
}

// Text returns the operand a name-style condition works with: the literal
// itself, the operator value, or the object's "value" member.
func (e Expectation) Text() string {
	switch e.Kind {
	case ExpectLiteral:
		return e.Literal
	case ExpectOperator:
		return scalarText(e.Value)
	case ExpectObject:
		s, _ := e.Member("value")
		return s
	default:
		return ""
	}
}

// UnmarshalJSON decodes the duck-typed wire form into the tagged variant.
func (e *Expectation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty expectation")
	}

	switch data[0] {
	case '[':
		*e = Expectation{Kind: ExpectInvalid}
		return nil
	case '{':
		var members map[string]json.RawMessage
		if err := json.Unmarshal(data, &members); err != nil {
			return err
		}
		if rawOp, ok := members["op"]; ok && !isJSONNull(rawOp) {
			var op any
			if err := json.Unmarshal(rawOp, &op); err != nil {
				return err
			}
			switch op.(type) {
			case string, float64, bool:
			default:
				*e = Expectation{Kind: ExpectInvalid}
				return nil
			}
			var value any
			if rawValue, ok := members["value"]; ok {
				if err := json.Unmarshal(rawValue, &value); err != nil {
					return err
				}
			}
			*e = Expectation{Kind: ExpectOperator, Op: lowerASCII(scalarText(op)), Value: value}
			return nil
		}
		fields := make(map[string]Expectation, len(members))
		for name, raw := range members {
			var sub Expectation
			if err := sub.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("member %q: %w", name, err)
			}
			fields[name] = sub
		}
		*e = Expectation{Kind: ExpectObject, Fields: fields}
		return nil
	default:
		var scalar any
		if err := json.Unmarshal(data, &scalar); err != nil {
			return err
		}
		*e = Lit(scalarText(scalar))
		return nil
	}
}

// MarshalJSON renders the expectation back into its wire form.
func (e Expectation) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case ExpectLiteral:
		return json.Marshal(e.Literal)
	case ExpectOperator:
		return json.Marshal(map[string]any{"op": e.Op, "value": e.Value})
	case ExpectObject:
		return json.Marshal(e.Fields)
	default:
		return []byte("[]"), nil
	}
}

// Conditions is an ordered condition set. The wire form is a JSON object;
// authored key order is kept so evaluation order is deterministic.
type Conditions []Condition

// UnmarshalJSON decodes a JSON object preserving key order. null and the
// empty array (an empty map serialized by some editors) decode to no
// conditions. A later duplicate key replaces the earlier expectation.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isJSONNull(data) {
		*c = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) != 0 {
			return ErrInvalidRule
		}
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrInvalidRule
	}

	var out Conditions
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return ErrInvalidRule
		}
		var exp Expectation
		if err := dec.Decode(&exp); err != nil {
			return fmt.Errorf("condition %q: %w", key, err)
		}
		if i, dup := index[key]; dup {
			out[i].Expect = exp
			continue
		}
		index[key] = len(out)
		out = append(out, Condition{Key: key, Expect: exp})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON renders the conditions as a JSON object in authored order.
func (c Conditions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cond := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cond.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cond.Expect)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isJSONNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// scalarText renders a decoded JSON scalar the way the evaluator coerces actual values.
func scalarText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", s)
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(bytes.TrimSpace(b))
}
