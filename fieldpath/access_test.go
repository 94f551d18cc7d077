package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"name": "ada",
			"tags": []any{"a", "b"},
		},
		"other": map[string]any{"keep": true},
	}
}

func TestGet(t *testing.T) {
	root := sampleTree()
	assert.Equal(t, "ada", Get(root, Parse("user.name")))
	assert.Equal(t, "b", Get(root, Parse("user.tags[1]")))
	assert.Nil(t, Get(root, Parse("user.tags[5]")))
	assert.Nil(t, Get(root, Parse("user.name.first")))
	assert.Nil(t, Get(root, Parse("missing.deep.path")))
	assert.Nil(t, Get(nil, Parse("a")))
	assert.Equal(t, root, Get(root, nil))
}

func TestSet_RoundTripAndSharing(t *testing.T) {
	root := sampleTree()
	segs := Parse("user.name")

	next := Set(root, segs, "grace").(map[string]any)

	assert.Equal(t, "grace", Get(next, segs))
	assert.Equal(t, "ada", Get(root, segs), "original must be unchanged")
	assert.True(t, SameValue(root["other"], next["other"]), "untouched subtree is shared")
	assert.False(t, SameValue(root["user"], next["user"]), "spine is cloned")
	assert.True(t, SameValue(Get(root, Parse("user.tags")), Get(next, Parse("user.tags"))))
}

func TestSet_NoopReturnsSameRoot(t *testing.T) {
	root := sampleTree()
	tags := Get(root, Parse("user.tags"))

	out := Set(root, Parse("user.name"), "ada")
	assert.True(t, SameValue(any(root), out))

	out = Set(root, Parse("user.tags"), tags)
	assert.True(t, SameValue(any(root), out))
}

func TestSet_EmptySegments(t *testing.T) {
	root := sampleTree()
	assert.True(t, SameValue(any(root), Set(root, nil, 42)))
}

func TestSet_CreatesContainers(t *testing.T) {
	out := Set(nil, Parse("rows[2].price"), 10)

	rows, ok := Get(out, Parse("rows")).([]any)
	require.True(t, ok, "index segment creates a slice")
	assert.Len(t, rows, 3)
	assert.Nil(t, rows[0])

	row, ok := rows[2].(map[string]any)
	require.True(t, ok, "named segment creates a map")
	assert.Equal(t, 10, row["price"])
}

func TestSet_GrowsSlice(t *testing.T) {
	root := []any{"a"}
	out := Set(root, Parse("[3]"), "d").([]any)
	assert.Equal(t, []any{"a", nil, nil, "d"}, out)
	assert.Equal(t, []any{"a"}, root)
}

func TestSet_NamedSegmentOnSlice(t *testing.T) {
	root := map[string]any{"list": []any{1}}
	out := Set(root, Parse("list.name"), "x")
	assert.True(t, SameValue(any(root), out))
}

func TestSet_IndexBeyondMaxIndexIsNoop(t *testing.T) {
	for _, path := range []string{
		"rows[9000000000000000000]",
		"rows[123456789012345678901234567890]",
		"rows[1048576]",
	} {
		t.Run(path, func(t *testing.T) {
			root := map[string]any{}
			var out any
			require.NotPanics(t, func() { out = Set(root, Parse(path), 1) })
			assert.True(t, SameValue(any(root), out))

			list := map[string]any{"rows": []any{"a"}}
			out = Set(list, Parse(path), 1)
			assert.True(t, SameValue(any(list), out))
		})
	}
}

func TestSet_AtMaxIndexBoundary(t *testing.T) {
	out := Set(nil, []string{"1048575"}, "last").([]any)
	assert.Len(t, out, MaxIndex+1)
	assert.Equal(t, "last", out[MaxIndex])
}

func TestSet_NilValueAtMissingPathIsNoop(t *testing.T) {
	root := map[string]any{}
	out := Set(root, Parse("a.b"), nil)
	assert.True(t, SameValue(any(root), out))
}

func TestUpdate(t *testing.T) {
	root := map[string]any{"count": 1}
	out := Update(root, Parse("count"), func(prev any) any {
		return prev.(int) + 1
	})
	assert.Equal(t, 2, Get(out, Parse("count")))
	assert.Equal(t, 1, root["count"])
}

func TestIsIndex(t *testing.T) {
	assert.True(t, IsIndex("0"))
	assert.True(t, IsIndex("12"))
	assert.False(t, IsIndex("-1"))
	assert.False(t, IsIndex("+1"))
	assert.False(t, IsIndex("1a"))
	assert.False(t, IsIndex(""))
}
