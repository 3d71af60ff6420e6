package rules

import (
	"math"
	"testing"
)

func TestCoerceText(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"integral float", float64(42), "42"},
		{"fraction", 3.25, "3.25"},
		{"negative", float64(-7), "-7"},
		{"int", 12, "12"},
		{"int64", int64(9000000000), "9000000000"},
		{"true", true, "true"},
		{"false", false, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceText(tt.value); got != tt.want {
				t.Errorf("CoerceText(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestCoerceNumeric(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		numeric bool
	}{
		{"float", 1.5, 1.5, true},
		{"int", 3, 3, true},
		{"int64", int64(-4), -4, true},
		{"integer string", "10", 10, true},
		{"signed string", "-2.5", -2.5, true},
		{"exponent", "1e3", 1000, true},
		{"leading dot", ".5", 0.5, true},
		{"trailing dot", "5.", 5, true},
		{"surrounding space", "  7 ", 7, true},
		{"empty", "", 0, false},
		{"whitespace", "   ", 0, false},
		{"hex", "0x10", 0, false},
		{"inf", "inf", 0, false},
		{"nan", "NaN", 0, false},
		{"separator", "1_000", 0, false},
		{"text", "abc", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoerceNumeric(tt.value)
			if got.Numeric != tt.numeric {
				t.Fatalf("CoerceNumeric(%v).Numeric = %v, want %v", tt.value, got.Numeric, tt.numeric)
			}
			if tt.numeric && got.Value != tt.want {
				t.Errorf("CoerceNumeric(%v).Value = %v, want %v", tt.value, got.Value, tt.want)
			}
		})
	}
}

func TestCoerceNumeric_OutOfRangeExponent(t *testing.T) {
	got := CoerceNumeric("1e400")
	if !got.Numeric || !math.IsInf(got.Value, 1) {
		t.Errorf("CoerceNumeric(1e400) = %+v, want numeric +Inf", got)
	}
}

func TestIsNumeric(t *testing.T) {
	for _, s := range []string{"0", "-1", "+3.5", "2E-2"} {
		if !IsNumeric(s) {
			t.Errorf("IsNumeric(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "1.2.3", "--1", "e5", "1e"} {
		if IsNumeric(s) {
			t.Errorf("IsNumeric(%q) = true, want false", s)
		}
	}
}

func TestCompareOrdered(t *testing.T) {
	tests := []struct {
		name    string
		sact    string
		operand any
		want    int
	}{
		{"numeric less", "9", "10", -1},
		{"numeric greater", "10", float64(9), 1},
		{"numeric equal", "1.0", "1", 0},
		{"lexicographic when actual is text", "abc", "10", 1},
		{"lexicographic when operand is text", "10", "9a", -1},
		{"lexicographic equal", "abc", "abc", 0},
		{"empty actual is text", "", "5", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareOrdered(tt.sact, tt.operand); got != tt.want {
				t.Errorf("compareOrdered(%q, %v) = %d, want %d", tt.sact, tt.operand, got, tt.want)
			}
		})
	}
}
