package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldstore/internal/testutil"
)

func TestWatch_ExactPath(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("count", WithMode(ModeControlled), WithInitialValue(0))
	rec := testutil.NewRecorder[WatchEvent]()
	s.Watch("count", rec.Record)

	s.SetControlledValue("count", 2)
	s.MarkTouched("count")
	assert.Equal(t, 0, rec.Len(), "watch events are delivered in the flush")

	sched.Drain()
	assert.Equal(t, []WatchEvent{{Path: "count", Value: 2}}, rec.Values())
}

func TestWatch_EquivalentSpelling(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("rows[1].price", WithMode(ModeControlled))
	rec := testutil.NewRecorder[WatchEvent]()
	s.Watch("rows.1.price", rec.Record)

	s.SetControlledValue("rows[1].price", 9.5)
	sched.Drain()

	assert.Equal(t, []WatchEvent{{Path: "rows[1].price", Value: 9.5}}, rec.Values())
}

func TestWatch_Wildcard(t *testing.T) {
	s, sched := newTestStore(t)
	for _, p := range []string{"rows[0].price", "rows[1].price", "rows[0].qty", "rows.price"} {
		s.Register(p, WithMode(ModeControlled))
	}
	rec := testutil.NewRecorder[WatchEvent]()
	s.Watch("rows.*.price", rec.Record)

	s.SetControlledValue("rows[0].price", 1)
	s.SetControlledValue("rows[0].qty", 2)
	s.SetControlledValue("rows.price", 3)
	s.SetControlledValue("rows[1].price", 4)
	sched.Drain()

	assert.Equal(t, []WatchEvent{
		{Path: "rows[0].price", Value: 1},
		{Path: "rows[1].price", Value: 4},
	}, rec.Values())
}

func TestWatch_ReadProducesEvents(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("name", WithInitialValue(""))
	rec := testutil.NewRecorder[WatchEvent]()
	s.Watch("name", rec.Record)

	s.Read(func(string) any { return "ada" })
	s.Read(func(string) any { return "ada" })
	sched.Drain()

	assert.Equal(t, []WatchEvent{{Path: "name", Value: "ada"}}, rec.Values())
}

func TestWatch_DirtyOnlyChangeIsNotAnEvent(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("f", WithMode(ModeControlled), WithInitialValue(1))
	s.MarkDirty("f")
	rec := testutil.NewRecorder[WatchEvent]()
	s.Watch("f", rec.Record)

	s.SetControlledValue("f", 1)
	sched.Drain()

	assert.False(t, s.Dirty("f"))
	assert.Equal(t, 0, rec.Len())
}

func TestWatch_Unwatch(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("a", WithMode(ModeControlled))
	rec := testutil.NewRecorder[WatchEvent]()
	unwatchExact := s.Watch("a", rec.Record)
	unwatchWild := s.Watch("*", rec.Record)
	require.Equal(t, 2, s.WatcherCount())

	unwatchExact()
	unwatchExact()
	unwatchWild()
	s.SetControlledValue("a", 1)
	sched.Drain()

	assert.Equal(t, 0, rec.Len())
	assert.Equal(t, 0, s.WatcherCount())
	assert.Empty(t, s.exact, "empty buckets are removed")
	assert.Empty(t, s.wildcards)
}

func TestWatch_SharedBucketKeepsOthers(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("a", WithMode(ModeControlled))
	first := testutil.NewRecorder[WatchEvent]()
	second := testutil.NewRecorder[WatchEvent]()
	unwatch := s.Watch("a", first.Record)
	s.Watch("a", second.Record)

	unwatch()
	s.SetControlledValue("a", 1)
	sched.Drain()

	assert.Equal(t, 0, first.Len())
	assert.Equal(t, 1, second.Len())
	assert.Len(t, s.exact["a"], 1)
}

func TestWatch_EmptyPatternIgnored(t *testing.T) {
	var buf syncBuffer
	s, _ := newTestStore(t, WithLogger(bufferLogger(&buf)))

	unwatch := s.Watch("", func(WatchEvent) {})
	unwatch()

	assert.Equal(t, 0, s.WatcherCount())
	assert.Contains(t, buf.String(), "watch with empty pattern")
}

func TestWatch_AfterSubscriptionsInFlush(t *testing.T) {
	s, sched := newTestStore(t)
	s.Register("f", WithMode(ModeControlled))
	var order []string
	s.Watch("f", func(WatchEvent) { order = append(order, "watch") })
	s.Subscribe(func(snap Snapshot) any { return snap.Value("f") }, func(v any) {
		if v != nil {
			order = append(order, "subscribe")
		}
	})

	s.SetControlledValue("f", 1)
	sched.Drain()

	assert.Equal(t, []string{"subscribe", "watch"}, order)
}
