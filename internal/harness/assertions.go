package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Expectation type for categorization
	Subject  string // Field path, subscription name or step
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Expectation failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// CheckExpectations compares the end-of-scenario expectations with the
// result's final state and delivery counts. It returns one message per
// failed expectation.
func CheckExpectations(expect Expect, result *Result) []string {
	var errs []string
	for _, fe := range expect.Fields {
		for _, err := range checkField(fe, result.State) {
			errs = append(errs, err.Error())
		}
	}

	names := make([]string, 0, len(expect.Deliveries))
	for name := range expect.Deliveries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want, got := expect.Deliveries[name], result.Deliveries[name]
		if want != got {
			errs = append(errs, (&AssertionError{
				Type:     "deliveries",
				Subject:  name,
				Expected: fmt.Sprintf("%d deliveries", want),
				Actual:   fmt.Sprintf("%d deliveries", got),
			}).Error())
		}
	}
	return errs
}

func checkField(fe FieldExpect, state map[string]FieldSnapshot) []error {
	snap, registered := state[fe.Path]
	if fe.Registered != nil && *fe.Registered != registered {
		return []error{&AssertionError{
			Type:     "registered",
			Subject:  fe.Path,
			Expected: fmt.Sprintf("registered = %t", *fe.Registered),
			Actual:   fmt.Sprintf("registered = %t", registered),
		}}
	}
	if !registered {
		// Unregistered fields read as defaults.
		snap = FieldSnapshot{}
	}

	var errs []error
	if fe.Value != nil && !valuesEqual(snap.Value, *fe.Value) {
		errs = append(errs, &AssertionError{
			Type:     "value",
			Subject:  fe.Path,
			Expected: fmt.Sprintf("%v (type %T)", *fe.Value, *fe.Value),
			Actual:   fmt.Sprintf("%v (type %T)", snap.Value, snap.Value),
		})
	}
	if fe.Touched != nil && *fe.Touched != snap.Touched {
		errs = append(errs, &AssertionError{
			Type:     "touched",
			Subject:  fe.Path,
			Expected: fmt.Sprintf("touched = %t", *fe.Touched),
			Actual:   fmt.Sprintf("touched = %t", snap.Touched),
		})
	}
	if fe.Dirty != nil && *fe.Dirty != snap.Dirty {
		errs = append(errs, &AssertionError{
			Type:     "dirty",
			Subject:  fe.Path,
			Expected: fmt.Sprintf("dirty = %t", *fe.Dirty),
			Actual:   fmt.Sprintf("dirty = %t", snap.Dirty),
		})
	}
	if fe.Error != nil && *fe.Error != snap.Error {
		errs = append(errs, &AssertionError{
			Type:     "error",
			Subject:  fe.Path,
			Expected: fmt.Sprintf("error = %q", *fe.Error),
			Actual:   fmt.Sprintf("error = %q", snap.Error),
		})
	}
	return errs
}

func formatResult(ok bool, message string) string {
	if ok {
		return "ok"
	}
	return fmt.Sprintf("failed %q", message)
}

// valuesEqual compares expected and actual values.
// Numbers compare by value regardless of Go type, since YAML, CUE and JSON
// decode integers differently.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return a == e
		}
		return false
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for k, v := range exp {
			av, ok := act[k]
			if !ok || !valuesEqual(av, v) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
