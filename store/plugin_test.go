package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroy_RunsAllCleanupsAndReturnsFirstError(t *testing.T) {
	errA := errors.New("plugin a failed")
	var ran []string
	a := Plugin{Name: "a", Setup: func(*PluginContext) Cleanup {
		return func() error {
			ran = append(ran, "a")
			return errA
		}
	}}
	b := Plugin{Name: "b", Setup: func(*PluginContext) Cleanup {
		return func() error {
			ran = append(ran, "b")
			return nil
		}
	}}
	s, _ := newTestStore(t, WithPlugins(a, b))

	err := s.Destroy()

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.True(t, IsDestroyError(err))
	assert.Equal(t, []string{"b", "a"}, ran, "cleanups run in reverse order")

	var de *DestroyError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "plugin:a", de.Owner)
	assert.Equal(t, 1, de.Failures)
}

func TestDestroy_MultipleFailures(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	s, _ := newTestStore(t, WithPlugins(
		Plugin{Name: "a", Setup: func(*PluginContext) Cleanup { return func() error { return errA } }},
		Plugin{Name: "b", Setup: func(*PluginContext) Cleanup { return func() error { return errB } }},
	))

	err := s.Destroy()

	var de *DestroyError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, errB, "the last plugin's cleanup runs first")
	assert.Equal(t, 2, de.Failures)
	assert.Contains(t, err.Error(), "and 1 more")
}

func TestDestroy_PanickingCleanup(t *testing.T) {
	ranAfter := false
	s, _ := newTestStore(t, WithPlugins(
		Plugin{Name: "first", Setup: func(*PluginContext) Cleanup {
			return func() error {
				ranAfter = true
				return nil
			}
		}},
		Plugin{Name: "panics", Setup: func(*PluginContext) Cleanup {
			return func() error { panic("boom") }
		}},
	))

	var err error
	require.NotPanics(t, func() { err = s.Destroy() })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup panicked: boom")
	assert.True(t, ranAfter)
}

func TestDestroy_ClearsStore(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("f", WithMode(ModeControlled))
	calls := 0
	s.Subscribe(func(snap Snapshot) any { return snap.Value("f") }, func(any) { calls++ })
	s.Watch("f", func(WatchEvent) { calls++ })
	s.SetControlledValue("f", 1)

	require.NoError(t, s.Destroy())
	sched.Drain()

	assert.Equal(t, 1, calls, "only the initial subscribe delivery")
	assert.Empty(t, s.Paths())
	assert.Equal(t, 0, s.SubscriberCount())
	assert.Equal(t, 0, s.WatcherCount())
	assert.NoError(t, s.Destroy(), "second destroy is a no-op")
	assert.ErrorIs(t, s.Sync(context.Background()), ErrDestroyed)
}

func TestDestroy_ClosesOwnedLoop(t *testing.T) {
	s := New(WithLogger(discardLogger()))
	require.NotNil(t, s.loop)

	require.NoError(t, s.Destroy())
	<-s.loop.Done()
}

func TestListenerCleanups_RunAtDestroy(t *testing.T) {
	s, _ := newTestStore(t)
	cleaned := 0
	s.On(EventCommit, func(Event) Cleanup {
		return func() error {
			cleaned++
			return nil
		}
	})

	s.Register("f")
	s.MarkTouched("f")
	require.Equal(t, 0, cleaned)

	require.NoError(t, s.Destroy())
	assert.Equal(t, 2, cleaned)
}

func TestEvents_Lifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	var got []string
	for _, name := range []EventName{EventCommit, EventRegister, EventUnregister} {
		name := name
		s.On(name, func(ev Event) Cleanup {
			got = append(got, string(name)+":"+ev.Path)
			return nil
		})
	}

	unregister := s.Register("f")
	s.MarkTouched("f")
	s.MarkTouched("f")
	unregister()

	assert.Equal(t, []string{
		"commit:f", "register:f",
		"commit:f",
		"commit:f", "unregister:f",
	}, got)
}

func TestOn_Remove(t *testing.T) {
	s, _ := newTestStore(t)
	calls := 0
	off := s.On(EventCommit, func(Event) Cleanup {
		calls++
		return nil
	})

	s.Register("a")
	off()
	off()
	s.Register("b")

	assert.Equal(t, 1, calls)
}

func TestPluginContext(t *testing.T) {
	var (
		name    string
		storeID string
		segs    []string
		values  []any
	)
	plugin := Plugin{Name: "probe", Setup: func(pc *PluginContext) Cleanup {
		name = pc.Name()
		storeID = pc.StoreID()
		segs = pc.ParsePath("rows[0].price")
		pc.AddMiddleware(func(next Handler) Handler { return next })
		pc.Subscribe(func(snap Snapshot) any { return snap.Value("f") }, func(v any) {
			values = append(values, v)
		})
		pc.Logger().Debug("probe installed")
		return nil
	}}
	s, sched := newTestStore(t, WithPlugins(plugin))

	s.Register("f", WithMode(ModeControlled), WithInitialValue("x"))
	sched.Drain()

	assert.Equal(t, "probe", name)
	assert.Equal(t, s.ID(), storeID)
	assert.Equal(t, []string{"rows", "0", "price"}, segs)
	assert.Equal(t, []any{nil, "x"}, values)
	assert.False(t, s.fastPath.Load())
}

func TestPluginContext_Destroy(t *testing.T) {
	var pc *PluginContext
	s, _ := newTestStore(t, WithPlugins(Plugin{Name: "holder", Setup: func(p *PluginContext) Cleanup {
		pc = p
		return nil
	}}))

	require.NoError(t, pc.Destroy())
	assert.ErrorIs(t, s.Sync(context.Background()), ErrDestroyed)
}
