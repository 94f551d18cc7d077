package store

// Snapshot is the read-only view handed to selectors and validators.
type Snapshot interface {
	Value(path string) any
	Touched(path string) bool
	Dirty(path string) bool
	Error(path string) string
}

// recorder is a Snapshot that notes every path read through it. A fresh
// recorder is created for each selector run, so dependency sets never leak
// between subscriptions or goroutines.
type recorder struct {
	store *Store
	deps  map[string]struct{}
}

func newRecorder(s *Store) *recorder {
	return &recorder{store: s, deps: make(map[string]struct{})}
}

func (r *recorder) Value(path string) any {
	r.deps[path] = struct{}{}
	return r.store.Value(path)
}

func (r *recorder) Touched(path string) bool {
	r.deps[path] = struct{}{}
	return r.store.Touched(path)
}

func (r *recorder) Dirty(path string) bool {
	r.deps[path] = struct{}{}
	return r.store.Dirty(path)
}

func (r *recorder) Error(path string) string {
	r.deps[path] = struct{}{}
	return r.store.Error(path)
}
