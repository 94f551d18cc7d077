package fieldpath

import (
	"container/list"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Wildcard matches exactly one segment in a watch pattern.
const Wildcard = "*"

// DefaultCacheSize is the number of parsed paths a Codec keeps when no
// capacity is given.
const DefaultCacheSize = 1024

// Codec parses paths and caches the results.
//
// Thread-safety: Codec is safe for concurrent use.
type Codec struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front = most recently used
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	path     string
	segments []string
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// NewCodec creates a codec whose cache holds at most capacity paths.
// A capacity <= 0 selects DefaultCacheSize.
func NewCodec(capacity int) *Codec {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Codec{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		recency:  list.New(),
	}
}

// Parse returns the segments of path.
//
// The returned slice is shared with the cache and must not be modified.
func (c *Codec) Parse(path string) []string {
	c.mu.Lock()
	if el, ok := c.entries[path]; ok {
		c.recency.MoveToFront(el)
		c.hits++
		segs := el.Value.(*cacheEntry).segments
		c.mu.Unlock()
		return segs
	}
	c.misses++
	c.mu.Unlock()

	segs := Parse(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have parsed the same path meanwhile.
	if el, ok := c.entries[path]; ok {
		c.recency.MoveToFront(el)
		return el.Value.(*cacheEntry).segments
	}
	c.entries[path] = c.recency.PushFront(&cacheEntry{path: path, segments: segs})
	for c.recency.Len() > c.capacity {
		oldest := c.recency.Back()
		c.recency.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).path)
	}
	return segs
}

// Stats returns a snapshot of cache counters.
func (c *Codec) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:     c.recency.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// Parse splits path into segments without caching.
// Empty segments are dropped, so "a..b", ".a" and "a[]" are all valid.
func Parse(path string) []string {
	segs := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '.', '[', ']':
			if i > start {
				segs = append(segs, normalizeSegment(path[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segs = append(segs, normalizeSegment(path[start:]))
	}
	return segs
}

func normalizeSegment(seg string) string {
	if norm.NFC.IsNormalString(seg) {
		return seg
	}
	return norm.NFC.String(seg)
}

// Join renders segments in canonical dotted form.
func Join(segments []string) string {
	return strings.Join(segments, ".")
}

// HasWildcard reports whether any segment is the Wildcard token.
func HasWildcard(segments []string) bool {
	for _, seg := range segments {
		if seg == Wildcard {
			return true
		}
	}
	return false
}

// IsMatch reports whether path matches pattern.
//
// Both must have the same non-zero length; each pattern segment must be the
// Wildcard or equal the path segment at that position. An empty pattern or
// path never matches.
func IsMatch(pattern, path []string) bool {
	if len(pattern) == 0 || len(path) == 0 || len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if seg != Wildcard && seg != path[i] {
			return false
		}
	}
	return true
}
