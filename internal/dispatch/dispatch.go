package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"annobot/pkg/logx"
)

var (
	// ErrUnavailable is returned by Submit/SubmitWait once the loop has
	// been torn down. Callers surface it as a server-side failure.
	ErrUnavailable = errors.New("dispatch loop unavailable")

	// ErrTimedOut is returned by SubmitWait when the deadline elapses
	// before the job finishes. The job itself keeps running; only the
	// wait is abandoned.
	ErrTimedOut = errors.New("dispatch wait timed out")
)

type Config struct {
	// QueueSize bounds the submission queue. Submit blocks while the
	// queue is full rather than dropping: an accepted job must run.
	QueueSize int
}

// Job is one unit of work for the loop.
type Job struct {
	ID          string
	Name        string
	Run         func(ctx context.Context) error
	SubmittedAt time.Time
}

// Future resolves when its job has finished (ok, error, or panic).
type Future struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed once the job has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the job's outcome. Valid only after Done is closed.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until the job completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) resolve(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

type submission struct {
	job Job
	fut *Future
}

// Loop is the execution context: one goroutine draining a FIFO queue.
// There is exactly one job in flight at a time by construction.
type Loop struct {
	log   logx.Logger
	queue chan submission

	mu      sync.Mutex
	started bool
	closed  bool
	stopCh  chan struct{}
	runWG   sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Loop {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	return &Loop{
		log:   log,
		queue: make(chan submission, size),
	}
}

// Start launches the loop goroutine. Safe to call once; later calls no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true
	l.stopCh = make(chan struct{})

	stopCh := l.stopCh
	l.runWG.Add(1)
	go func() {
		defer l.runWG.Done()
		l.run(ctx, stopCh)
	}()
	l.log.Info("dispatch loop started", logx.Int("queue_cap", cap(l.queue)))
}

// Close tears the loop down. Jobs already dequeued finish; queued jobs
// still in the channel are drained and failed with ErrUnavailable.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	stopCh := l.stopCh
	l.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	l.runWG.Wait()

	l.drain()
	l.log.Info("dispatch loop closed")
}

// drain fails everything still queued so waiters unblock.
func (l *Loop) drain() {
	for {
		select {
		case sub := <-l.queue:
			sub.fut.resolve(ErrUnavailable)
		default:
			return
		}
	}
}

// Submit enqueues a job and returns a Future the caller may await or
// ignore. It blocks only for as long as enqueueing takes (a full queue
// counts as enqueueing). Returns ErrUnavailable once the loop is closed.
func (l *Loop) Submit(name string, fn func(ctx context.Context) error) (*Future, error) {
	l.mu.Lock()
	if l.closed || !l.started {
		l.mu.Unlock()
		return nil, ErrUnavailable
	}
	stopCh := l.stopCh
	l.mu.Unlock()

	sub := submission{
		job: Job{
			ID:          uuid.NewString(),
			Name:        name,
			Run:         fn,
			SubmittedAt: time.Now(),
		},
		fut: &Future{done: make(chan struct{})},
	}

	select {
	case l.queue <- sub:
	case <-stopCh:
		return nil, ErrUnavailable
	}

	// The enqueue can win its race against stopCh after Close has already
	// drained the queue; drain again so this submission cannot sit in the
	// channel with a future nobody will ever resolve.
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		l.drain()
	}
	return sub.fut, nil
}

// SubmitWait submits fn and blocks until it completes or timeout elapses.
// On timeout the job may still run to completion later; the caller just
// stops waiting and receives ErrTimedOut.
func (l *Loop) SubmitWait(ctx context.Context, name string, fn func(ctx context.Context) error, timeout time.Duration) error {
	fut, err := l.Submit(name, fn)
	if err != nil {
		return err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := fut.Wait(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimedOut
		}
		return err
	}
	return nil
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case sub := <-l.queue:
			l.execOne(ctx, sub)
		}
	}
}

func (l *Loop) execOne(ctx context.Context, sub submission) {
	start := time.Now()
	err := l.runIsolated(ctx, sub.job)
	sub.fut.resolve(err)

	fields := []logx.Field{
		logx.String("job", sub.job.ID),
		logx.String("name", sub.job.Name),
		logx.Duration("queued", start.Sub(sub.job.SubmittedAt)),
		logx.Duration("took", time.Since(start)),
	}
	if err != nil {
		l.log.Warn("job failed", append(fields, logx.Err(err))...)
	} else {
		l.log.Debug("job done", fields...)
	}
}

// runIsolated converts a job panic into an error so one bad handler can
// never take the loop (or the process) down.
func (l *Loop) runIsolated(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.Name, r)
			l.log.Error("job panicked",
				logx.String("job", j.ID),
				logx.String("name", j.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	return j.Run(ctx)
}
