package store

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore builds a store whose flushes run only when the returned
// scheduler is drained.
func newTestStore(t *testing.T, opts ...Option) (*Store, *ManualScheduler) {
	t.Helper()
	sched := NewManualScheduler()
	base := []Option{WithScheduler(sched), WithLogger(discardLogger())}
	s := New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Destroy() })
	return s, sched
}

// newLoopStore builds a store with its default background scheduler.
func newLoopStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{WithLogger(discardLogger())}
	s := New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Destroy() })
	return s
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
