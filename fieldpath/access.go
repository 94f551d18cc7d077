package fieldpath

import (
	"maps"
	"math"
	"strconv"
)

// MaxIndex is the largest slice index a write may address. Writes to a
// larger index leave the tree unchanged.
const MaxIndex = 1<<20 - 1

// Get returns the value at segs inside root.
//
// Containers are map[string]any and []any; an index segment is coerced to an
// int when the current node is a slice. Get returns nil as soon as an
// intermediate node is nil, is not a container, or lacks the segment.
func Get(root any, segs []string) any {
	cur := root
	for _, seg := range segs {
		if cur == nil {
			return nil
		}
		next, ok := child(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Set returns a copy of root with v stored at segs.
//
// Only the nodes along segs are cloned; every other subtree is shared with
// root. When v is already the value at segs, root itself is returned.
func Set(root any, segs []string, v any) any {
	return Update(root, segs, func(any) any { return v })
}

// Update is Set with the stored value computed from the previous one.
//
// Missing intermediate nodes are created as []any when the segment that
// indexes into them is a non-negative integer literal and as map[string]any
// otherwise. A named segment cannot be stored into an existing []any, and an
// index above MaxIndex cannot be stored at all; such writes leave root
// unchanged. An empty segs returns root unchanged.
func Update(root any, segs []string, fn func(prev any) any) any {
	if len(segs) == 0 {
		return root
	}
	return update(root, segs, fn)
}

func update(node any, segs []string, fn func(prev any) any) any {
	seg, rest := segs[0], segs[1:]
	prev, _ := child(node, seg)

	var next any
	if len(rest) == 0 {
		next = fn(prev)
	} else {
		next = update(prev, rest, fn)
	}
	if SameValue(prev, next) {
		return node
	}
	return assign(node, seg, next)
}

func child(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		idx, ok := index(seg)
		if !ok || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}

func assign(node any, seg string, v any) any {
	switch n := node.(type) {
	case map[string]any:
		out := maps.Clone(n)
		out[seg] = v
		return out
	case []any:
		idx, ok := index(seg)
		if !ok || idx > MaxIndex {
			return node
		}
		return setIndex(n, idx, v)
	default:
		if idx, ok := index(seg); ok {
			if idx > MaxIndex {
				return node
			}
			return setIndex(nil, idx, v)
		}
		return map[string]any{seg: v}
	}
}

func setIndex(s []any, idx int, v any) []any {
	size := len(s)
	if idx >= size {
		size = idx + 1
	}
	out := make([]any, size)
	copy(out, s)
	out[idx] = v
	return out
}

// index parses seg as a non-negative integer literal. Signs and whitespace
// are rejected so that keys like "+1" stay named keys. A literal too large
// for int saturates to math.MaxInt.
func index(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return math.MaxInt, true
	}
	return n, true
}

// IsIndex reports whether seg would address a slice element.
func IsIndex(seg string) bool {
	_, ok := index(seg)
	return ok
}
