package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Result is the outcome of a validation. Failures are data, never errors.
type Result struct {
	OK      bool
	Message string
}

// MessageAborted is the failure message used when an async validator's
// channel closes without delivering a result.
const MessageAborted = "validation aborted"

// Outcome is what a validator returns: either a resolved Result or a channel
// that will deliver one.
type Outcome struct {
	result  Result
	pending <-chan Result
}

// Pass is a resolved success.
func Pass() Outcome {
	return Outcome{result: Result{OK: true}}
}

// Fail is a resolved failure with message (which may be empty).
func Fail(message string) Outcome {
	return Outcome{result: Result{Message: message}}
}

// Resolved wraps an existing Result.
func Resolved(r Result) Outcome {
	return Outcome{result: r}
}

// Async defers to a channel. The first value received is the result; a
// channel closed without a value counts as a failure (MessageAborted).
//
// The store waits for ch on a goroutine until ch delivers, ch is closed or
// the store is destroyed. A channel that does neither keeps that goroutine
// alive until Destroy.
func Async(ch <-chan Result) Outcome {
	if ch == nil {
		return Pass()
	}
	return Outcome{pending: ch}
}

// Defer runs fn on its own goroutine. A panic in fn becomes a failure.
func Defer(fn func() Result) Outcome {
	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- Result{Message: fmt.Sprint(r)}
			}
		}()
		ch <- fn()
	}()
	return Outcome{pending: ch}
}

// Pending reports whether the outcome is still to be delivered.
func (o Outcome) Pending() bool {
	return o.pending != nil
}

// ValidateFunc checks value, the current value of the field at path.
type ValidateFunc func(value any, path string, snap Snapshot) Outcome

// Validator is a named validation function. A field holds validators by
// identity, so attaching the same *Validator twice runs it once.
type Validator struct {
	name string
	fn   ValidateFunc
}

// NewValidator creates a validator handle.
func NewValidator(name string, fn ValidateFunc) *Validator {
	return &Validator{name: name, fn: fn}
}

// Name returns the validator's name.
func (v *Validator) Name() string {
	return v.name
}

// validatorSet keeps validators unique and in attachment order.
type validatorSet struct {
	list []*Validator
	set  map[*Validator]struct{}
}

func (vs *validatorSet) add(v *Validator) bool {
	if _, ok := vs.set[v]; ok {
		return false
	}
	vs.set[v] = struct{}{}
	vs.list = append(vs.list, v)
	return true
}

func (vs *validatorSet) remove(v *Validator) bool {
	if _, ok := vs.set[v]; !ok {
		return false
	}
	delete(vs.set, v)
	vs.list = slices.DeleteFunc(vs.list, func(x *Validator) bool { return x == v })
	return true
}

func (s *Store) validatorSetLocked(path string) *validatorSet {
	vs := s.validators[path]
	if vs == nil {
		vs = &validatorSet{set: make(map[*Validator]struct{})}
		s.validators[path] = vs
	}
	return vs
}

// AddValidator attaches v to path, whether or not the field is registered
// yet. The returned function detaches it.
func (s *Store) AddValidator(path string, v *Validator) func() {
	if v == nil {
		return func() {}
	}
	s.mu.Lock()
	s.validatorSetLocked(path).add(v)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		vs := s.validators[path]
		if vs == nil {
			return
		}
		vs.remove(v)
		if len(vs.list) == 0 {
			delete(s.validators, path)
		}
	}
}

// Validation is the handle returned by Validate. It settles exactly once.
type Validation struct {
	done   chan struct{}
	once   sync.Once
	result Result
	stale  bool
}

func newValidation() *Validation {
	return &Validation{done: make(chan struct{})}
}

func settledValidation(r Result, stale bool) *Validation {
	v := newValidation()
	v.settle(r, stale)
	return v
}

func (v *Validation) settle(r Result, stale bool) {
	v.once.Do(func() {
		v.result = r
		v.stale = stale
		close(v.done)
	})
}

// Done is closed once the validation has settled.
func (v *Validation) Done() <-chan struct{} {
	return v.done
}

// Result returns the result if settled.
func (v *Validation) Result() (Result, bool) {
	select {
	case <-v.done:
		return v.result, true
	default:
		return Result{}, false
	}
}

// Stale reports whether a newer validation superseded this one before it
// settled, in which case its result was not applied to the store.
// It is false until the validation has settled.
func (v *Validation) Stale() bool {
	select {
	case <-v.done:
		return v.stale
	default:
		return false
	}
}

// Wait blocks until the validation settles or ctx is done.
func (v *Validation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-v.done:
		return v.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Validate runs every validator attached to path against its current value.
//
// With only synchronous outcomes the returned Validation is already settled
// and the field's error is updated before Validate returns. The first failing
// validator, in attachment order, decides the result. With pending outcomes
// the field's error is updated when they all arrive, but only if no newer
// Validate call for the path has started and the field still exists.
//
// A validator that panics is treated as failing with the panic text.
func (s *Store) Validate(path string) *Validation {
	return s.validateField(path, true)
}

func (s *Store) validateField(path string, warnMissing bool) *Validation {
	s.mu.Lock()
	rec, ok := s.fields[path]
	if !ok {
		s.mu.Unlock()
		if warnMissing {
			s.warn("validate on unregistered field", "path", path)
		}
		return settledValidation(Result{OK: true}, false)
	}
	s.ticketSeq++
	ticket := s.ticketSeq
	s.tickets[path] = ticket
	value := rec.value()
	var validators []*Validator
	if vs := s.validators[path]; vs != nil {
		validators = slices.Clone(vs.list)
	}
	s.mu.Unlock()

	if len(validators) == 0 {
		r := Result{OK: true}
		return settledValidation(r, !s.settleField(path, ticket, r))
	}

	outcomes := make([]Outcome, len(validators))
	pending := false
	for i, v := range validators {
		outcomes[i] = s.runValidator(v, value, path)
		if outcomes[i].Pending() {
			pending = true
		}
	}

	if !pending {
		results := make([]Result, len(outcomes))
		for i, o := range outcomes {
			results[i] = o.result
		}
		r := firstFailure(results)
		return settledValidation(r, !s.settleField(path, ticket, r))
	}

	h := newValidation()
	go func() {
		results := make([]Result, len(outcomes))
		for i, o := range outcomes {
			if !o.Pending() {
				results[i] = o.result
				continue
			}
			select {
			case r, ok := <-o.pending:
				if !ok {
					r = Result{Message: MessageAborted}
				}
				results[i] = r
			case <-s.closed:
				h.settle(Result{Message: MessageAborted}, true)
				return
			}
		}
		r := firstFailure(results)
		scheduled := s.sched.Schedule(func() {
			h.settle(r, !s.settleField(path, ticket, r))
		})
		if !scheduled {
			h.settle(r, true)
		}
	}()
	return h
}

// ValidateForm validates every registered field in registration order.
//
// The result is the first failing field's result, or success. If any field
// validation is asynchronous the returned Validation settles once all of them
// have; it is marked stale if a newer ValidateForm call started meanwhile.
// The form result does not change any field's error beyond what each field's
// own validation sets.
func (s *Store) ValidateForm() *Validation {
	s.mu.Lock()
	s.ticketSeq++
	ticket := s.ticketSeq
	s.formTicket = ticket
	paths := slices.Clone(s.order)
	s.mu.Unlock()

	runs := make([]*Validation, len(paths))
	async := false
	for i, p := range paths {
		runs[i] = s.validateField(p, false)
		if _, ok := runs[i].Result(); !ok {
			async = true
		}
	}
	if !async {
		return settledValidation(firstFailingRun(runs), false)
	}

	h := newValidation()
	go func() {
		for _, run := range runs {
			<-run.Done()
		}
		s.mu.Lock()
		stale := s.formTicket != ticket
		s.mu.Unlock()
		h.settle(firstFailingRun(runs), stale)
	}()
	return h
}

// settleField stores r as the field's error if ticket is still current.
// It returns false when the result was discarded.
func (s *Store) settleField(path string, ticket int64, r Result) bool {
	s.mu.Lock()
	rec, ok := s.fields[path]
	if !ok || s.tickets[path] != ticket {
		s.mu.Unlock()
		return false
	}
	msg := ""
	if !r.OK {
		msg = r.Message
	}
	needFlush := false
	if rec.err != msg {
		rec.err = msg
		needFlush = s.recordLocked([]change{{path: path}})
	}
	s.mu.Unlock()

	if needFlush {
		defer s.scheduleFlush()
	}
	result := r
	s.emit(Event{Name: EventValidate, Path: path, Result: &result})
	return true
}

func (s *Store) runValidator(v *Validator, value any, path string) (out Outcome) {
	if v.fn == nil {
		return Pass()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("validator panicked", "validator", v.name, "path", path, "panic", r)
			out = Fail(fmt.Sprint(r))
		}
	}()
	return v.fn(value, path, s)
}

func firstFailure(results []Result) Result {
	for _, r := range results {
		if !r.OK {
			return r
		}
	}
	return Result{OK: true}
}

func firstFailingRun(runs []*Validation) Result {
	for _, run := range runs {
		if r, ok := run.Result(); ok && !r.OK {
			return r
		}
	}
	return Result{OK: true}
}
