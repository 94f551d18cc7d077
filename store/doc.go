// Package store implements a reactive state container for form fields.
//
// A Store tracks, per field path, the field's value, touched and dirty flags
// and its last validation error, and notifies observers when that state
// changes.
//
// ARCHITECTURE:
//
// Flat registry:
// Fields are kept in one map keyed by the path string the caller registered.
// There is no tree of records; auxiliary indexes (path -> subscriptions,
// path -> watchers, path -> validators) sit beside it.
//
// Mutation pipeline:
// Every state change (register, unregister, markTouched, markDirty,
// setControlledValue, read) is a MutationContext threaded through the
// middleware chain. The innermost handler applies the change. If anything
// changed, the touched paths join the current batch, one deferred flush is
// scheduled and a commit event is emitted synchronously.
//
// Deferred flush:
// Flushes run on the store's Scheduler, which plays the role of a microtask
// queue. All mutations between two flushes are coalesced, and each flush sees
// the final state. The default LoopScheduler drains tasks on one goroutine, so
// flushes and async validation settlements never interleave.
//
// Dependency tracking:
// A subscription's selector runs against a recording snapshot that notes
// every path it reads. Only subscriptions indexed under a changed path are
// re-run, and a callback fires only when the selected value is not SameValue
// to the last delivered one.
//
// Validation tickets:
// Every Validate call on a path (and every ValidateForm call) takes a fresh
// ticket. An async run settles only if its ticket is still current;
// superseded results are dropped silently.
//
// LOCKING:
// One mutex guards all store state and is never held while user code runs
// (selectors, callbacks, middleware, validators, listeners, accessors,
// cleanups). Callbacks may therefore mutate the store reentrantly.
//
// MISUSE:
// Operating on an unregistered path, or setting a controlled value on an
// uncontrolled field, logs a warning and degrades to a no-op or an automatic
// correction. Store operations never panic on misuse.
package store
