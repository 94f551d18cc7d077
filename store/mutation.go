package store

import (
	"time"

	"github.com/roach88/fieldstore/fieldpath"
)

// MutationType names a state-changing operation.
type MutationType string

const (
	MutationRegister   MutationType = "register"
	MutationUnregister MutationType = "unregister"
	MutationTouch      MutationType = "markTouched"
	MutationDirty      MutationType = "markDirty"
	MutationSetValue   MutationType = "setControlledValue"
	MutationRead       MutationType = "read"
)

// MutationContext describes one mutation while it travels through the
// middleware chain. It is not retained after the chain returns.
//
// Payload depends on Type:
//   - register: *RegisterOptions
//   - setControlledValue: the new value
//   - read: ReadFunc
//   - unregister, markTouched, markDirty: nil
type MutationContext struct {
	Type    MutationType
	Path    string
	Payload any
	Epoch   int64
	Now     time.Time

	applied bool
	changes []change
}

// Applied reports whether the terminal handler ran. It is false when a
// middleware vetoed the mutation by not calling next.
func (mc *MutationContext) Applied() bool {
	return mc.applied
}

// Changed reports whether the mutation changed state. Meaningful once next
// has returned.
func (mc *MutationContext) Changed() bool {
	return len(mc.changes) > 0
}

// ChangedPaths lists the paths the mutation changed.
func (mc *MutationContext) ChangedPaths() []string {
	paths := make([]string, 0, len(mc.changes))
	for _, c := range mc.changes {
		paths = append(paths, c.path)
	}
	return paths
}

// Handler processes a mutation context.
type Handler func(mc *MutationContext)

// Middleware wraps the next handler. It may act before and after calling
// next, rewrite mc.Payload before calling it, or veto the mutation by not
// calling it at all.
type Middleware func(next Handler) Handler

// Compose folds middleware around terminal, right to left, so middleware[0]
// is the outermost wrapper. With no middleware it returns terminal itself.
func Compose(middleware []Middleware, terminal Handler) Handler {
	h := terminal
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			h = middleware[i](h)
		}
	}
	return h
}

// AddMiddleware installs mw inside all existing middleware.
func (s *Store) AddMiddleware(mw Middleware) {
	if mw == nil {
		return
	}
	s.mu.Lock()
	s.middleware = append(s.middleware, mw)
	s.chain = Compose(s.middleware, s.apply)
	s.refreshFastPathLocked()
	s.mu.Unlock()
}

// mutate runs one mutation through the pipeline and commits it.
// It returns whether state changed.
func (s *Store) mutate(typ MutationType, path string, payload any) bool {
	mc := &MutationContext{
		Type:    typ,
		Path:    path,
		Payload: payload,
		Epoch:   s.clock.Next(),
		Now:     s.now(),
	}

	s.mu.Lock()
	chain := s.chain
	s.mu.Unlock()

	chain(mc)
	if !mc.applied || len(mc.changes) == 0 {
		return false
	}
	s.commit(mc)
	return true
}

// commit batches the changes, emits lifecycle events and then schedules the
// flush. Listeners always run before any notification of this mutation.
func (s *Store) commit(mc *MutationContext) {
	s.mu.Lock()
	needFlush := s.recordLocked(mc.changes)
	s.mu.Unlock()
	if needFlush {
		defer s.scheduleFlush()
	}

	s.emit(Event{Name: EventCommit, Path: mc.Path, Mutation: mc})
	switch mc.Type {
	case MutationRegister:
		s.emit(Event{Name: EventRegister, Path: mc.Path, Mutation: mc})
	case MutationUnregister:
		s.emit(Event{Name: EventUnregister, Path: mc.Path, Mutation: mc})
	}
}

// apply is the terminal handler: it performs the state change described by mc.
func (s *Store) apply(mc *MutationContext) {
	mc.applied = true
	switch mc.Type {
	case MutationRegister:
		s.applyRegister(mc)
	case MutationUnregister:
		s.applyUnregister(mc)
	case MutationTouch:
		s.applyFlag(mc, func(r *fieldRecord) *bool { return &r.touched })
	case MutationDirty:
		s.applyFlag(mc, func(r *fieldRecord) *bool { return &r.dirty })
	case MutationSetValue:
		s.applySetValue(mc)
	case MutationRead:
		s.applyRead(mc)
	default:
		s.warn("unknown mutation type", "type", mc.Type, "path", mc.Path)
	}
}

func (s *Store) applyRegister(mc *MutationContext) {
	ro, ok := mc.Payload.(*RegisterOptions)
	if !ok || ro == nil {
		ro = &RegisterOptions{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.fields[mc.Path]
	changed := !exists
	if !exists {
		rec = &fieldRecord{mode: ModeUncontrolled}
		s.fields[mc.Path] = rec
		s.order = append(s.order, mc.Path)
	}
	if ro.Mode != ModeDefault && ro.Mode != rec.mode {
		rec.mode = ro.Mode
		changed = true
	}
	if ro.HasInitialValue || !exists {
		v := ro.InitialValue
		if !fieldpath.SameValue(rec.initialValue, v) ||
			!fieldpath.SameValue(rec.controlledValue, v) ||
			!fieldpath.SameValue(rec.uncontrolledValue, v) ||
			rec.dirty {
			changed = true
		}
		rec.initialValue = v
		rec.controlledValue = v
		rec.uncontrolledValue = v
		rec.dirty = false
	}
	if ro.HasMeta && !fieldpath.SameValue(rec.meta, ro.Meta) {
		rec.meta = ro.Meta
		changed = true
	}
	if ro.Validator != nil {
		s.validatorSetLocked(mc.Path).add(ro.Validator)
	}
	if changed {
		rec.epoch = mc.Epoch
		mc.changes = append(mc.changes, change{path: mc.Path, value: rec.value()})
	}
}

func (s *Store) applyUnregister(mc *MutationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fields[mc.Path]; !ok {
		return
	}
	delete(s.fields, mc.Path)
	delete(s.validators, mc.Path)
	// Any in-flight validation for this path is now stale.
	delete(s.tickets, mc.Path)
	s.removeOrderLocked(mc.Path)
	mc.changes = append(mc.changes, change{path: mc.Path})
}

func (s *Store) applyFlag(mc *MutationContext, flag func(*fieldRecord) *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.fields[mc.Path]
	if !ok {
		return
	}
	f := flag(rec)
	if *f {
		return
	}
	*f = true
	rec.epoch = mc.Epoch
	mc.changes = append(mc.changes, change{path: mc.Path})
}

func (s *Store) applySetValue(mc *MutationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.fields[mc.Path]
	if !ok {
		return
	}
	s.ensureControlledLocked(mc.Path, rec)
	value := mc.Payload
	d := decideValue(rec.controlledValue, value, rec.initialValue, rec.dirty)
	if !d.changed() {
		return
	}
	rec.controlledValue = value
	rec.dirty = d.dirty
	rec.epoch = mc.Epoch
	mc.changes = append(mc.changes, change{path: mc.Path, value: value, watch: d.valueChanged})
}

func (s *Store) applyRead(mc *MutationContext) {
	var get ReadFunc
	switch fn := mc.Payload.(type) {
	case ReadFunc:
		get = fn
	case func(string) any:
		get = fn
	}
	if get == nil {
		s.warn("read payload is not a ReadFunc", "payload_type", typeName(mc.Payload))
		return
	}

	s.mu.Lock()
	paths := make([]string, 0, len(s.order))
	for _, p := range s.order {
		if s.fields[p].mode != ModeControlled {
			paths = append(paths, p)
		}
	}
	s.mu.Unlock()

	// The accessor is caller code; run it without the lock.
	values := make([]any, len(paths))
	for i, p := range paths {
		values[i] = get(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range paths {
		rec, ok := s.fields[p]
		if !ok || rec.mode == ModeControlled {
			continue
		}
		d := decideValue(rec.uncontrolledValue, values[i], rec.initialValue, rec.dirty)
		if !d.changed() {
			continue
		}
		rec.uncontrolledValue = values[i]
		rec.dirty = d.dirty
		rec.epoch = mc.Epoch
		mc.changes = append(mc.changes, change{path: p, value: values[i], watch: d.valueChanged})
	}
}

// valueDecision is the outcome of comparing a new value against a field.
// Both the fast path and the pipeline use decideValue so they cannot drift.
type valueDecision struct {
	valueChanged bool
	dirty        bool
	dirtyChanged bool
}

func decideValue(prev, next, initial any, wasDirty bool) valueDecision {
	d := valueDecision{
		valueChanged: !fieldpath.SameValue(prev, next),
		dirty:        !fieldpath.SameValue(next, initial),
	}
	d.dirtyChanged = d.dirty != wasDirty
	return d
}

func (d valueDecision) changed() bool {
	return d.valueChanged || d.dirtyChanged
}
