package store

import (
	"slices"
	"sync"

	"github.com/roach88/fieldstore/fieldpath"
)

// WatchEvent is a raw value change delivered to watchers.
type WatchEvent struct {
	Path  string
	Value any
}

type watcher struct {
	id       uint64
	pattern  string
	key      string // canonical dotted form
	segments []string
	callback func(WatchEvent)
	wildcard bool
	active   bool
}

type watchDelivery struct {
	w  *watcher
	ev WatchEvent
}

// Watch calls callback with every value change at a path matching pattern.
//
// Only value-bearing mutations produce watch events: SetControlledValue, and
// values refreshed by Read. Events are delivered in the flush that follows
// the mutation, after subscriptions.
//
// Patterns without wildcards match paths with the same segments (so "rows.1"
// matches "rows[1]"), dispatched by a map lookup. A "*" segment matches
// exactly one path segment; wildcard patterns are tested against every event
// and must have the same number of segments as the path. An empty pattern is
// rejected with a warning. The returned function removes this registration.
func (s *Store) Watch(pattern string, callback func(WatchEvent)) func() {
	segs := s.codec.Parse(pattern)
	if len(segs) == 0 || callback == nil {
		s.warn("watch with empty pattern or nil callback ignored", "pattern", pattern)
		return func() {}
	}

	s.mu.Lock()
	s.nextWatchID++
	w := &watcher{
		id:       s.nextWatchID,
		pattern:  pattern,
		key:      fieldpath.Join(segs),
		segments: segs,
		callback: callback,
		wildcard: fieldpath.HasWildcard(segs),
		active:   true,
	}
	if w.wildcard {
		s.wildcards = append(s.wildcards, w)
	} else {
		s.exact[w.key] = append(s.exact[w.key], w)
	}
	s.watchCount++
	s.refreshFastPathLocked()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.removeWatchLocked(w)
			s.refreshFastPathLocked()
			s.mu.Unlock()
		})
	}
}

// WatcherCount returns the number of live watch registrations.
func (s *Store) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchCount
}

func (s *Store) removeWatchLocked(w *watcher) {
	if !w.active {
		return
	}
	w.active = false
	s.watchCount--
	if w.wildcard {
		s.wildcards = slices.DeleteFunc(s.wildcards, func(x *watcher) bool { return x == w })
		return
	}
	bucket := slices.DeleteFunc(s.exact[w.key], func(x *watcher) bool { return x == w })
	if len(bucket) == 0 {
		delete(s.exact, w.key)
		return
	}
	s.exact[w.key] = bucket
}

// watchDeliveriesLocked resolves queued watch events to watcher calls:
// per event, exact watchers first, then wildcard watchers, each in
// registration order.
func (s *Store) watchDeliveriesLocked(events []WatchEvent) []watchDelivery {
	if len(events) == 0 || s.watchCount == 0 {
		return nil
	}
	var out []watchDelivery
	for _, ev := range events {
		segs := s.codec.Parse(ev.Path)
		for _, w := range s.exact[fieldpath.Join(segs)] {
			out = append(out, watchDelivery{w: w, ev: ev})
		}
		for _, w := range s.wildcards {
			if fieldpath.IsMatch(w.segments, segs) {
				out = append(out, watchDelivery{w: w, ev: ev})
			}
		}
	}
	return out
}

func (s *Store) deliverWatch(d watchDelivery) {
	s.mu.Lock()
	active := d.w.active
	s.mu.Unlock()
	if active {
		d.w.callback(d.ev)
	}
}
