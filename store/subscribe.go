package store

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/fieldstore/fieldpath"
)

// Selector derives a value from a snapshot. Selectors should be pure: the
// paths they read become the subscription's dependencies.
type Selector func(snap Snapshot) any

type subscription struct {
	id       uint64
	selector Selector
	callback func(any)
	last     any
	deps     map[string]struct{}
	active   bool
}

// Subscribe calls callback with selector's value now, and again after any
// flush in which the selected value changed.
//
// Dependencies are discovered on every run: only mutations of paths the
// selector actually read cause it to re-run. Re-running alone does not fire
// the callback; the new value must differ (SameValue) from the last one
// delivered. The returned function unsubscribes; it is safe to call twice.
func (s *Store) Subscribe(selector Selector, callback func(value any)) func() {
	value, deps := s.track(selector)

	s.mu.Lock()
	s.nextSubID++
	sub := &subscription{
		id:       s.nextSubID,
		selector: selector,
		callback: callback,
		last:     value,
		active:   true,
	}
	s.subs[sub.id] = sub
	s.reindexLocked(sub, deps)
	s.refreshFastPathLocked()
	s.mu.Unlock()

	if callback != nil {
		callback(value)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.removeSubLocked(sub)
			s.refreshFastPathLocked()
			s.mu.Unlock()
		})
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) track(selector Selector) (any, map[string]struct{}) {
	rec := newRecorder(s)
	if selector == nil {
		return nil, rec.deps
	}
	return selector(rec), rec.deps
}

// reindexLocked moves sub from the paths it no longer reads to the paths it
// now reads.
func (s *Store) reindexLocked(sub *subscription, deps map[string]struct{}) {
	for path := range sub.deps {
		if _, still := deps[path]; still {
			continue
		}
		s.unindexLocked(sub, path)
	}
	for path := range deps {
		if _, had := sub.deps[path]; had {
			continue
		}
		bucket := s.pathIndex[path]
		if bucket == nil {
			bucket = make(map[uint64]*subscription)
			s.pathIndex[path] = bucket
		}
		bucket[sub.id] = sub
	}
	sub.deps = deps
}

func (s *Store) unindexLocked(sub *subscription, path string) {
	bucket := s.pathIndex[path]
	delete(bucket, sub.id)
	if len(bucket) == 0 {
		delete(s.pathIndex, path)
	}
}

func (s *Store) removeSubLocked(sub *subscription) {
	if !sub.active {
		return
	}
	sub.active = false
	for path := range sub.deps {
		s.unindexLocked(sub, path)
	}
	sub.deps = nil
	delete(s.subs, sub.id)
}

// affectedLocked returns the subscriptions that read any changed path, in
// discovery order: changed-path order, then subscription age.
func (s *Store) affectedLocked(paths []string) []*subscription {
	var out []*subscription
	seen := make(map[uint64]struct{})
	for _, path := range paths {
		bucket := s.pathIndex[path]
		for _, id := range slices.Sorted(maps.Keys(bucket)) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, bucket[id])
		}
	}
	return out
}

// rerun re-evaluates sub's selector, refreshes its dependencies and delivers
// the value if it changed.
func (s *Store) rerun(sub *subscription) {
	s.mu.Lock()
	active := sub.active
	s.mu.Unlock()
	if !active {
		return
	}

	value, deps := s.track(sub.selector)

	s.mu.Lock()
	if !sub.active {
		s.mu.Unlock()
		return
	}
	s.reindexLocked(sub, deps)
	changed := !fieldpath.SameValue(sub.last, value)
	if changed {
		sub.last = value
	}
	s.mu.Unlock()

	if changed && sub.callback != nil {
		sub.callback(value)
	}
}
