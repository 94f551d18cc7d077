package fieldpath

import (
	"math"
	"reflect"
)

// SameValue reports whether a and b are the same value.
//
// Numbers follow IEEE identity rather than equality: NaN is the same as NaN
// and +0 is not the same as -0. Maps, slices, funcs, channels and pointers
// compare by identity (a slice is identified by its backing array and length).
// Structs and arrays compare element by element under the same rules.
// Values of different dynamic types are never the same. SameValue never panics.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && sameFloat(x, y)
	case float32:
		y, ok := b.(float32)
		return ok && sameFloat(float64(x), float64(y))
	}

	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return sameReflect(reflect.ValueOf(a), reflect.ValueOf(b))
}

// sameReflect compares two values of the same type. Structs and arrays are
// compared element by element, so a struct holding a slice is the same as a
// copy of itself.
func sameReflect(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Float32, reflect.Float64:
		return sameFloat(a.Float(), b.Float())
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		ea, eb := a.Elem(), b.Elem()
		return ea.Type() == eb.Type() && sameReflect(ea, eb)
	case reflect.Struct:
		for i := range a.NumField() {
			if !sameReflect(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := range a.Len() {
			if !sameReflect(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	default:
		return a.Equal(b)
	}
}

func sameFloat(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.IsNaN(x) && math.IsNaN(y)
	}
	return x == y && math.Signbit(x) == math.Signbit(y)
}
