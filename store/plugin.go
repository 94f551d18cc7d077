package store

import (
	"fmt"
	"log/slog"
	"sync"
)

// EventName identifies a lifecycle event.
type EventName string

const (
	EventRegister   EventName = "register"
	EventUnregister EventName = "unregister"
	EventValidate   EventName = "validate"
	EventCommit     EventName = "commit"
)

// Event is delivered to lifecycle listeners.
//
// Commit, register and unregister events carry the mutation context; validate
// events carry the settled result.
type Event struct {
	Name     EventName
	Path     string
	Mutation *MutationContext
	Result   *Result
}

// Cleanup releases resources at Destroy. A nil Cleanup is allowed.
type Cleanup func() error

// Listener handles a lifecycle event. A non-nil returned Cleanup is kept and
// run when the store is destroyed.
type Listener func(ev Event) Cleanup

// Plugin extends a store at construction time.
type Plugin struct {
	Name  string
	Setup func(pc *PluginContext) Cleanup
}

type listenerEntry struct {
	owner    string
	listener Listener
	active   bool
}

type ownedCleanup struct {
	owner string
	fn    Cleanup
}

// On registers listener for name. The returned function removes it.
func (s *Store) On(name EventName, listener Listener) func() {
	return s.on("", name, listener)
}

func (s *Store) on(owner string, name EventName, listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	if owner == "" {
		owner = "listener:" + string(name)
	}
	entry := &listenerEntry{owner: owner, listener: listener, active: true}

	s.mu.Lock()
	s.listeners[name] = append(s.listeners[name], entry)
	s.listenerCount++
	s.refreshFastPathLocked()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !entry.active {
				return
			}
			entry.active = false
			list := s.listeners[name]
			for i, e := range list {
				if e == entry {
					s.listeners[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			s.listenerCount--
			s.refreshFastPathLocked()
		})
	}
}

func (s *Store) emit(ev Event) {
	s.mu.Lock()
	if s.listenerCount == 0 {
		s.mu.Unlock()
		return
	}
	entries := append([]*listenerEntry(nil), s.listeners[ev.Name]...)
	s.mu.Unlock()

	for _, e := range entries {
		cleanup := e.listener(ev)
		if cleanup != nil {
			s.addCleanup(e.owner, cleanup)
		}
	}
}

func (s *Store) addCleanup(owner string, fn Cleanup) {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, ownedCleanup{owner: owner, fn: fn})
	s.mu.Unlock()
}

func (s *Store) setupPlugin(p Plugin) {
	if p.Setup == nil {
		return
	}
	pc := &PluginContext{store: s, name: p.Name}
	if cleanup := p.Setup(pc); cleanup != nil {
		s.addCleanup("plugin:"+p.Name, cleanup)
	}
	s.log.Debug("plugin installed", "plugin", p.Name)
}

// Destroy runs every plugin and listener cleanup in reverse registration
// order, then clears the store.
//
// A failing (or panicking) cleanup does not stop the others. When any fail,
// Destroy returns a *DestroyError wrapping the first failure. The store must
// not be used afterwards. Calling Destroy again returns nil.
func (s *Store) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	close(s.closed)
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var destroyErr *DestroyError
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		err := runCleanup(c)
		if err == nil {
			continue
		}
		s.log.Warn("cleanup failed", "owner", c.owner, "error", err)
		if destroyErr == nil {
			destroyErr = &DestroyError{Owner: c.owner, Err: err}
		}
		destroyErr.Failures++
	}

	s.mu.Lock()
	s.fields = make(map[string]*fieldRecord)
	s.order = nil
	s.validators = make(map[string]*validatorSet)
	s.tickets = make(map[string]int64)
	for _, sub := range s.subs {
		sub.active = false
	}
	s.subs = make(map[uint64]*subscription)
	s.pathIndex = make(map[string]map[uint64]*subscription)
	for _, bucket := range s.exact {
		for _, w := range bucket {
			w.active = false
		}
	}
	for _, w := range s.wildcards {
		w.active = false
	}
	s.exact = make(map[string][]*watcher)
	s.wildcards = nil
	s.watchCount = 0
	s.listeners = make(map[EventName][]*listenerEntry)
	s.listenerCount = 0
	s.middleware = nil
	s.chain = Compose(nil, s.apply)
	s.batch = newBatch()
	s.refreshFastPathLocked()
	s.mu.Unlock()

	if s.loop != nil {
		s.loop.Close()
	}
	if destroyErr != nil {
		return destroyErr
	}
	return nil
}

func runCleanup(c ownedCleanup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return c.fn()
}

// PluginContext is the narrow view of a store given to plugins.
type PluginContext struct {
	store *Store
	name  string
}

// Name returns the plugin's name.
func (pc *PluginContext) Name() string {
	return pc.name
}

// StoreID returns the owning store's ID.
func (pc *PluginContext) StoreID() string {
	return pc.store.id
}

// Epoch returns the store's current mutation epoch.
func (pc *PluginContext) Epoch() int64 {
	return pc.store.Epoch()
}

// Logger returns the store logger tagged with the plugin name.
func (pc *PluginContext) Logger() *slog.Logger {
	return pc.store.log.With("plugin", pc.name)
}

// On registers a lifecycle listener owned by this plugin.
func (pc *PluginContext) On(name EventName, listener Listener) func() {
	return pc.store.on("plugin:"+pc.name, name, listener)
}

// AddMiddleware installs mw inside all existing middleware.
func (pc *PluginContext) AddMiddleware(mw Middleware) {
	pc.store.AddMiddleware(mw)
}

// AddValidator attaches v to path and returns a remover.
func (pc *PluginContext) AddValidator(path string, v *Validator) func() {
	return pc.store.AddValidator(path, v)
}

// ParsePath parses path with the store's cache.
func (pc *PluginContext) ParsePath(path string) []string {
	return pc.store.ParsePath(path)
}

// Subscribe subscribes to the store.
func (pc *PluginContext) Subscribe(selector Selector, callback func(any)) func() {
	return pc.store.Subscribe(selector, callback)
}

// Watch watches the store.
func (pc *PluginContext) Watch(pattern string, callback func(WatchEvent)) func() {
	return pc.store.Watch(pattern, callback)
}

// Snapshot returns the store's read-only snapshot.
func (pc *PluginContext) Snapshot() Snapshot {
	return pc.store
}

// Destroy destroys the store.
func (pc *PluginContext) Destroy() error {
	return pc.store.Destroy()
}
