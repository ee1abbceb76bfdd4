// Package loop runs every piece of input-method state on one goroutine.
//
// D-Bus method handlers, timer expirations and configuration reloads all
// arrive on goroutines of their own. They hand their work to a Loop, which
// executes it in order, so the overlay controller never needs a lock.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"kboverlay/internal/overlay"
)

// Sentinel errors for the loop package.
var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("loop is already running")

	// ErrStopped is returned when work is posted after Run returned.
	ErrStopped = errors.New("loop is stopped")

	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("loop queue is full")
)

// Loop serializes tasks onto a single goroutine.
type Loop struct {
	queueSize int
	log       *slog.Logger
	onPanic   PanicHandler

	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	posted    atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
	busyNanos atomic.Int64
}

var _ overlay.Scheduler = (*Loop)(nil)

// PanicHandler is called with the panic value and stack of a task that
// panicked. The loop keeps running afterwards.
type PanicHandler func(value any, stack []byte)

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.queueSize = size
		}
	}
}

// WithLogger sets the logger used for panics and dropped tasks.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithPanicHandler sets a handler for panicking tasks, e.g. a crash reporter.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		l.onPanic = h
	}
}

// New creates a loop. Tasks may be posted before Run is called; they execute
// once it starts.
func New(opts ...Option) *Loop {
	l := &Loop{
		queueSize: 1024,
		log:       slog.New(slog.DiscardHandler),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.queue = make(chan func(), l.queueSize)
	return l
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that
// point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.stopOnce.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			if n := len(l.queue); n > 0 {
				l.log.Debug("discarding queued tasks on shutdown", "count", n)
			}
			return nil
		case f := <-l.queue:
			l.execute(f)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues f for execution on the loop goroutine. It never blocks.
func (l *Loop) Post(f func()) error {
	if f == nil {
		return nil
	}
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.queue <- f:
		l.posted.Add(1)
		return nil
	default:
		l.dropped.Add(1)
		l.log.Warn("loop queue full; dropping task", "queue_size", l.queueSize)
		return ErrQueueFull
	}
}

// Call runs f on the loop goroutine and waits for it to finish. It must not
// be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		f()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// Run may have picked f up just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc schedules f to be posted onto the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) overlay.Stopper {
	return time.AfterFunc(d, func() {
		if err := l.Post(f); err != nil && !errors.Is(err, ErrStopped) {
			l.log.Warn("failed to deliver timer callback", "error", err)
		}
	})
}

func (l *Loop) execute(f func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			stack := debug.Stack()
			if l.onPanic != nil {
				l.onPanic(r, stack)
			} else {
				l.log.Error("task panicked", "panic", r, "stack", string(stack))
			}
		}
		l.executed.Add(1)
		l.busyNanos.Add(time.Since(start).Nanoseconds())
	}()
	f()
}

// Stats contains loop statistics.
type Stats struct {
	// Posted is the number of tasks accepted by Post.
	Posted uint64

	// Executed is the number of tasks run, including ones that panicked.
	Executed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Dropped is the number of tasks rejected because the queue was full.
	Dropped uint64

	// QueueDepth is the number of tasks waiting.
	QueueDepth int

	// AvgDuration is the average task execution time.
	AvgDuration time.Duration
}

// Stats returns a snapshot of the loop statistics.
func (l *Loop) Stats() Stats {
	executed := l.executed.Load()
	var avg int64
	if executed > 0 {
		avg = l.busyNanos.Load() / int64(executed)
	}
	return Stats{
		Posted:      l.posted.Load(),
		Executed:    executed,
		Panicked:    l.panicked.Load(),
		Dropped:     l.dropped.Load(),
		QueueDepth:  len(l.queue),
		AvgDuration: time.Duration(avg),
	}
}

// IsRunning reports whether Run is active.
func (l *Loop) IsRunning() bool {
	select {
	case <-l.done:
		return false
	default:
		return l.running.Load()
	}
}
