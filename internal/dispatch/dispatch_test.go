package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"annobot/pkg/logx"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(Config{}, logx.Nop())
	l.Start(context.Background())
	t.Cleanup(l.Close)
	return l
}

func TestSubmitRunsJobsInOrder(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	const n = 100
	// The loop is single-threaded, so no locking is needed around got.
	var got []int
	var last *Future
	for i := 0; i < n; i++ {
		i := i
		fut, err := l.Submit("order", func(ctx context.Context) error {
			got = append(got, i)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		last = fut
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := last.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	if len(got) != n {
		t.Fatalf("ran %d jobs, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran out of order (got %d)", i, v)
		}
	}
}

func TestConcurrentSubmitExactlyOnce(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	const (
		goroutines = 200
		perG       = 5
	)
	var ran atomic.Int64
	var wg sync.WaitGroup
	futs := make(chan *Future, goroutines*perG)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				fut, err := l.Submit("count", func(ctx context.Context) error {
					ran.Add(1)
					return nil
				})
				if err != nil {
					t.Errorf("Submit error: %v", err)
					return
				}
				futs <- fut
			}
		}()
	}
	wg.Wait()
	close(futs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for fut := range futs {
		if err := fut.Wait(ctx); err != nil {
			t.Fatalf("Wait error: %v", err)
		}
	}

	if got := ran.Load(); got != goroutines*perG {
		t.Fatalf("ran %d jobs, want %d", got, goroutines*perG)
	}
}

func TestSubmitWaitTimeoutLeavesJobRunning(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	release := make(chan struct{})
	finished := make(chan struct{})

	err := l.SubmitWait(context.Background(), "slow", func(ctx context.Context) error {
		<-release
		close(finished)
		return nil
	}, 50*time.Millisecond)

	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("SubmitWait error = %v, want ErrTimedOut", err)
	}

	// The wait was abandoned, not the job: it still runs to completion.
	close(release)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("job never completed after abandoned wait")
	}
}

func TestSubmitWaitReturnsJobError(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	want := errors.New("boom")
	err := l.SubmitWait(context.Background(), "failing", func(ctx context.Context) error {
		return want
	}, time.Second)
	if !errors.Is(err, want) {
		t.Fatalf("SubmitWait error = %v, want %v", err, want)
	}
}

func TestSubmitBeforeStartAndAfterClose(t *testing.T) {
	t.Parallel()

	l := New(Config{}, logx.Nop())
	if _, err := l.Submit("early", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Submit before Start = %v, want ErrUnavailable", err)
	}

	l.Start(context.Background())
	l.Close()

	if _, err := l.Submit("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Submit after Close = %v, want ErrUnavailable", err)
	}
	if err := l.SubmitWait(context.Background(), "late", func(ctx context.Context) error { return nil }, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("SubmitWait after Close = %v, want ErrUnavailable", err)
	}
}

// A Submit racing Close must either return ErrUnavailable or hand back
// a future that resolves; a future nobody resolves would hang every
// waiter forever.
func TestSubmitRacingCloseResolvesEveryFuture(t *testing.T) {
	t.Parallel()

	for round := 0; round < 50; round++ {
		l := New(Config{}, logx.Nop())
		l.Start(context.Background())

		const goroutines = 8
		futs := make(chan *Future, goroutines)
		var wg sync.WaitGroup
		start := make(chan struct{})

		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				fut, err := l.Submit("racing", func(ctx context.Context) error { return nil })
				if err == nil {
					futs <- fut
				}
			}()
		}

		close(start)
		l.Close()
		wg.Wait()
		close(futs)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for fut := range futs {
			if err := fut.Wait(ctx); err != nil && !errors.Is(err, ErrUnavailable) {
				cancel()
				t.Fatalf("round %d: Wait error = %v", round, err)
			}
			select {
			case <-fut.Done():
			default:
				cancel()
				t.Fatalf("round %d: future never resolved", round)
			}
		}
		cancel()
	}
}

func TestPanicIsIsolated(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	fut, err := l.Submit("panics", func(ctx context.Context) error {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	werr := fut.Wait(ctx)
	if werr == nil || !strings.Contains(werr.Error(), "panic") {
		t.Fatalf("Wait error = %v, want panic error", werr)
	}

	// The loop survives and keeps serving.
	if err := l.SubmitWait(context.Background(), "after", func(ctx context.Context) error { return nil }, time.Second); err != nil {
		t.Fatalf("loop dead after panic: %v", err)
	}
}
