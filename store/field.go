package store

import "slices"

// Mode says who owns a field's authoritative value.
type Mode int

const (
	// ModeDefault keeps a field's current mode (uncontrolled when new).
	ModeDefault Mode = iota
	// ModeUncontrolled fields mirror a value owned elsewhere, refreshed by Read.
	ModeUncontrolled
	// ModeControlled fields store their authoritative value in the store.
	ModeControlled
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUncontrolled:
		return "uncontrolled"
	case ModeControlled:
		return "controlled"
	default:
		return "default"
	}
}

// ParseMode maps a mode name to a Mode. Unknown names yield ModeDefault.
func ParseMode(name string) Mode {
	switch name {
	case "controlled":
		return ModeControlled
	case "uncontrolled":
		return ModeUncontrolled
	default:
		return ModeDefault
	}
}

type fieldRecord struct {
	mode              Mode
	initialValue      any
	controlledValue   any
	uncontrolledValue any
	touched           bool
	dirty             bool
	err               string
	meta              any
	epoch             int64
}

func (r *fieldRecord) value() any {
	if r.mode == ModeControlled {
		return r.controlledValue
	}
	return r.uncontrolledValue
}

// FieldState is a read-only copy of one field.
type FieldState struct {
	Path         string
	Mode         Mode
	Value        any
	InitialValue any
	Touched      bool
	Dirty        bool
	Error        string
	Meta         any
	Epoch        int64
}

// RegisterOptions is the payload of a register mutation. Middleware may
// inspect or rewrite it before calling next.
type RegisterOptions struct {
	Mode            Mode
	InitialValue    any
	HasInitialValue bool
	Validator       *Validator
	Meta            any
	HasMeta         bool
}

// FieldOption configures a Register call.
type FieldOption func(*RegisterOptions)

// WithMode sets the field mode.
func WithMode(m Mode) FieldOption {
	return func(o *RegisterOptions) {
		o.Mode = m
	}
}

// WithInitialValue sets (or resets) the field baseline. Resetting also
// overwrites both value mirrors and clears the dirty flag.
func WithInitialValue(v any) FieldOption {
	return func(o *RegisterOptions) {
		o.InitialValue = v
		o.HasInitialValue = true
	}
}

// WithValidator attaches a validator to the field. Attaching the same
// validator twice has no effect.
func WithValidator(v *Validator) FieldOption {
	return func(o *RegisterOptions) {
		o.Validator = v
	}
}

// WithMeta stores opaque caller data on the field.
func WithMeta(meta any) FieldOption {
	return func(o *RegisterOptions) {
		o.Meta = meta
		o.HasMeta = true
	}
}

// Register creates the field at path or merges into the existing one, and
// returns a function that unregisters it.
//
// The unregister function reports whether it removed anything; calling it
// when the field is already gone is a silent no-op.
func (s *Store) Register(path string, opts ...FieldOption) func() bool {
	ro := &RegisterOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(ro)
		}
	}
	s.mutate(MutationRegister, path, ro)

	return func() bool {
		s.mu.Lock()
		_, ok := s.fields[path]
		s.mu.Unlock()
		if !ok {
			return false
		}
		return s.mutate(MutationUnregister, path, nil)
	}
}

// MarkTouched flags the field as interacted with. Touched never clears.
func (s *Store) MarkTouched(path string) {
	if !s.requireField("markTouched", path) {
		return
	}
	s.mutate(MutationTouch, path, nil)
}

// MarkDirty flags the field as dirty.
func (s *Store) MarkDirty(path string) {
	if !s.requireField("markDirty", path) {
		return
	}
	s.mutate(MutationDirty, path, nil)
}

// SetControlledValue stores value as the field's authoritative value.
//
// A field that is not controlled is switched to controlled mode (with a
// warning). Dirty is recomputed against the initial value. When neither the
// value nor the dirty flag changes, the call does nothing.
func (s *Store) SetControlledValue(path string, value any) {
	if s.fastPath.Load() && s.setValueDirect(path, value) {
		return
	}
	if !s.requireField("setControlledValue", path) {
		return
	}
	s.mutate(MutationSetValue, path, value)
}

// setValueDirect is the fast path: nothing can observe the mutation, so it
// skips the context and the chain. It returns false when eligibility was lost
// in the meantime and the caller must take the full path.
func (s *Store) setValueDirect(path string, value any) bool {
	s.mu.Lock()
	if !s.fastEligibleLocked() {
		s.mu.Unlock()
		return false
	}
	rec, ok := s.fields[path]
	if !ok {
		s.mu.Unlock()
		s.warn("setControlledValue on unregistered field", "path", path)
		return true
	}
	s.ensureControlledLocked(path, rec)
	d := decideValue(rec.controlledValue, value, rec.initialValue, rec.dirty)
	if d.changed() {
		rec.controlledValue = value
		rec.dirty = d.dirty
		rec.epoch = s.clock.Next()
	}
	s.mu.Unlock()
	return true
}

// ReadFunc returns the externally owned value of an uncontrolled field.
type ReadFunc func(path string) any

// Read refreshes every uncontrolled field from get, recomputing dirty flags,
// and returns the store's snapshot. Controlled fields are left alone.
func (s *Store) Read(get ReadFunc) Snapshot {
	if get != nil {
		s.mutate(MutationRead, "", get)
	}
	return s
}

// Value returns the field's current value, or nil if it is not registered.
func (s *Store) Value(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.fields[path]; ok {
		return rec.value()
	}
	return nil
}

// Touched reports the touched flag (false if not registered).
func (s *Store) Touched(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.fields[path]; ok {
		return rec.touched
	}
	return false
}

// Dirty reports the dirty flag (false if not registered).
func (s *Store) Dirty(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.fields[path]; ok {
		return rec.dirty
	}
	return false
}

// Error returns the last validation message ("" if none or not registered).
func (s *Store) Error(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.fields[path]; ok {
		return rec.err
	}
	return ""
}

// Field returns a copy of the field's state.
func (s *Store) Field(path string) (FieldState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.fields[path]
	if !ok {
		return FieldState{}, false
	}
	return FieldState{
		Path:         path,
		Mode:         rec.mode,
		Value:        rec.value(),
		InitialValue: rec.initialValue,
		Touched:      rec.touched,
		Dirty:        rec.dirty,
		Error:        rec.err,
		Meta:         rec.meta,
		Epoch:        rec.epoch,
	}, true
}

// Paths returns the registered paths in registration order.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *Store) requireField(op, path string) bool {
	s.mu.Lock()
	_, ok := s.fields[path]
	s.mu.Unlock()
	if !ok {
		s.warn(op+" on unregistered field", "path", path)
	}
	return ok
}

func (s *Store) ensureControlledLocked(path string, rec *fieldRecord) {
	if rec.mode == ModeControlled {
		return
	}
	s.warn("setControlledValue on uncontrolled field; switching to controlled", "path", path)
	rec.mode = ModeControlled
}

func (s *Store) removeOrderLocked(path string) {
	if i := slices.Index(s.order, path); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}
