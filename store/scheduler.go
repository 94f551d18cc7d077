package store

import (
	"log/slog"
	"sync"
)

// Scheduler runs deferred work for a store: notification flushes and the
// settlement of asynchronous validations.
//
// Schedule must never run task synchronously; it returns false once the
// scheduler no longer accepts work. Tasks must run one at a time in the order
// they were scheduled.
type Scheduler interface {
	Schedule(task func()) bool
}

// LoopScheduler drains tasks on a single background goroutine.
//
// A panicking task is logged and the loop continues with the next task.
type LoopScheduler struct {
	queue  *taskQueue
	logger *slog.Logger
	done   chan struct{}
}

// NewLoopScheduler starts a loop goroutine. Close stops it.
func NewLoopScheduler(logger *slog.Logger) *LoopScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LoopScheduler{
		queue:  newTaskQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Schedule enqueues task. Safe from any goroutine.
func (l *LoopScheduler) Schedule(task func()) bool {
	return l.queue.Enqueue(task)
}

// Close stops accepting tasks. Tasks already queued still run.
// Close does not wait, so it may be called from inside a task.
func (l *LoopScheduler) Close() {
	l.queue.Close()
}

// Done is closed when the loop goroutine has exited.
func (l *LoopScheduler) Done() <-chan struct{} {
	return l.done
}

func (l *LoopScheduler) run() {
	defer close(l.done)
	for {
		if task, ok := l.queue.TryDequeue(); ok {
			l.runTask(task)
			continue
		}
		if _, open := <-l.queue.Wait(); !open && l.queue.Len() == 0 {
			return
		}
	}
}

func (l *LoopScheduler) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduled task panicked", "panic", r)
		}
	}()
	task()
}

// ManualScheduler queues tasks until Drain is called. It is meant for tests
// and tools that need to decide exactly when flushes happen.
type ManualScheduler struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule queues task for the next Drain.
func (m *ManualScheduler) Schedule(task func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.tasks = append(m.tasks, task)
	return true
}

// Drain runs queued tasks, including tasks they schedule, until the queue is
// empty. It returns the number of tasks run.
func (m *ManualScheduler) Drain() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.tasks[0]
		m.tasks[0] = nil
		m.tasks = m.tasks[1:]
		m.mu.Unlock()

		task()
		ran++
	}
}

// Pending returns the number of queued tasks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Close stops accepting tasks.
func (m *ManualScheduler) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
