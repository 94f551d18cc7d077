package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"value vs nil", "", nil, false},
		{"int vs int64", 3, int64(3), true},
		{"int vs float", 3, 3.0, true},
		{"uint vs int", uint8(7), 7, true},
		{"different numbers", 3, 4, false},
		{"number vs string", 3, "3", false},
		{"strings", "a", "a", true},
		{"bools", true, false, false},
		{"nested list", []any{1, "x"}, []any{int64(1), "x"}, true},
		{"list length", []any{1}, []any{1, 2}, false},
		{"nested map", map[string]any{"n": 1}, map[string]any{"n": 1.0}, true},
		{"map missing key", map[string]any{"n": 1}, map[string]any{"m": 1}, false},
		{"other types", []string{"a"}, []string{"a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestCheckExpectations_UnregisteredFieldReadsDefaults(t *testing.T) {
	result := NewResult()
	expect := Expect{Fields: []FieldExpect{{
		Path:    "gone",
		Touched: boolPtr(false),
		Dirty:   boolPtr(false),
		Error:   strPtr(""),
	}}}
	assert.Empty(t, CheckExpectations(expect, result))
}

func TestCheckExpectations_RegisteredMismatchStopsFieldChecks(t *testing.T) {
	result := NewResult()
	expect := Expect{Fields: []FieldExpect{{
		Path:       "gone",
		Registered: boolPtr(true),
		Dirty:      boolPtr(true),
	}}}
	errs := CheckExpectations(expect, result)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "registered = true")
}

func TestCheckExpectations_DeliveriesSortedByName(t *testing.T) {
	result := NewResult()
	result.Deliveries["b"] = 1
	expect := Expect{Deliveries: map[string]int{"b": 2, "a": 1}}

	errs := CheckExpectations(expect, result)
	assert.Len(t, errs, 2)
	assert.Contains(t, errs[0], "deliveries (a)")
	assert.Contains(t, errs[1], "deliveries (b)")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: "value", Subject: "a", Expected: "1", Actual: "2"}
	assert.Equal(t, "Expectation failed: value (a)\n  Expected: 1\n  Actual: 2\n", err.Error())

	err = &AssertionError{Type: "value", Expected: "1", Actual: "2"}
	assert.Equal(t, "Expectation failed: value\n  Expected: 1\n  Actual: 2\n", err.Error())
}
