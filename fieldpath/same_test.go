package fieldpath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type point struct{ X, Y int }

type holder struct{ V any }

type tagged struct {
	Name string
	Tags []string
	note map[string]int
}

func TestSameValue_Numbers(t *testing.T) {
	nan := math.NaN()
	negZero := math.Copysign(0, -1)

	assert.True(t, SameValue(nan, nan))
	assert.False(t, SameValue(0.0, negZero))
	assert.True(t, SameValue(negZero, negZero))
	assert.True(t, SameValue(1.5, 1.5))
	assert.False(t, SameValue(1, 1.0), "different dynamic types")
	assert.True(t, SameValue(float32(math.NaN()), float32(math.NaN())))
}

func TestSameValue_Scalars(t *testing.T) {
	assert.True(t, SameValue(nil, nil))
	assert.False(t, SameValue(nil, ""))
	assert.True(t, SameValue("a", "a"))
	assert.True(t, SameValue(point{1, 2}, point{1, 2}))
	assert.False(t, SameValue(point{1, 2}, point{2, 1}))
}

func TestSameValue_References(t *testing.T) {
	m := map[string]any{"a": 1}
	n := map[string]any{"a": 1}
	assert.True(t, SameValue(m, m))
	assert.False(t, SameValue(m, n), "maps compare by identity")

	s := []any{1, 2, 3}
	assert.True(t, SameValue(s, s))
	assert.False(t, SameValue(s, s[:2]))
	assert.False(t, SameValue(s, []any{1, 2, 3}))

	p := &point{}
	assert.True(t, SameValue(p, p))
	assert.False(t, SameValue(p, &point{}))
}

func TestSameValue_UncomparableDoesNotPanic(t *testing.T) {
	a := holder{V: []int{1}}
	b := holder{V: []int{1}}
	assert.NotPanics(t, func() {
		assert.False(t, SameValue(a, b))
	})
}

func TestSameValue_StructWithReferenceFields(t *testing.T) {
	v := tagged{Name: "a", Tags: []string{"x"}, note: map[string]int{}}
	copied := v
	assert.True(t, SameValue(v, v))
	assert.True(t, SameValue(v, copied), "a copy shares its slices and maps")

	other := tagged{Name: "a", Tags: []string{"x"}, note: v.note}
	assert.False(t, SameValue(v, other), "slices inside compare by identity")

	assert.True(t, SameValue(holder{V: v}, holder{V: copied}))
	assert.False(t, SameValue(holder{V: 1}, holder{V: 1.0}))
	assert.True(t, SameValue(holder{V: math.NaN()}, holder{V: math.NaN()}))
}

func TestSameValue_Arrays(t *testing.T) {
	s := []int{1}
	assert.True(t, SameValue([2]any{s, "a"}, [2]any{s, "a"}))
	assert.False(t, SameValue([2]any{s, "a"}, [2]any{[]int{1}, "a"}))
	assert.True(t, SameValue([1]float64{math.NaN()}, [1]float64{math.NaN()}))
	assert.False(t, SameValue([1]float64{0}, [1]float64{math.Copysign(0, -1)}))
}

func TestSet_StructValueWrittenBackIsNoop(t *testing.T) {
	root := map[string]any{"p": tagged{Tags: []string{"x"}}}
	segs := Parse("p")
	assert.True(t, SameValue(any(root), Set(root, segs, Get(root, segs))))
}
