package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type Broadcaster struct {
	mu  sync.Mutex
	cfg Config

	sender  transport.Sender
	source  RecipientSource
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, sender transport.Sender, source RecipientSource, log logx.Logger) *Broadcaster {
	b := &Broadcaster{sender: sender, source: source, log: log}
	b.Apply(cfg)
	return b
}

// Apply swaps config at runtime (hot reload).
func (b *Broadcaster) Apply(cfg Config) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	b.mu.Lock()
	b.cfg = cfg
	b.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	b.mu.Unlock()
}

// Broadcast delivers text to every current recipient.
//
// The recipient snapshot is taken once at the start and is immutable for
// the duration of the call. Per-recipient send failures are logged and
// counted, never returned; only a failed snapshot is fatal.
func (b *Broadcaster) Broadcast(ctx context.Context, text string, opts Options) (Result, error) {
	b.mu.Lock()
	cfg := b.cfg
	lim := b.limiter
	b.mu.Unlock()

	size := opts.BatchSize
	if size <= 0 {
		size = cfg.BatchSize
	}
	pause := opts.Pause
	if pause <= 0 {
		pause = cfg.BatchPause
	}

	ids, err := b.source.ListRecipients(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("recipient snapshot: %w", err)
	}

	batches := partition(ids, size)
	b.log.Info("broadcast started",
		logx.Int("recipients", len(ids)),
		logx.Int("batches", len(batches)),
		logx.Int("batch_size", size),
	)

	sendOpt := &transport.SendOptions{ParseMode: opts.ParseMode}

	var succeeded atomic.Int64
	start := time.Now()
	for i, batch := range batches {
		var wg sync.WaitGroup
		for _, id := range batch {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if lim != nil {
					if err := lim.Wait(ctx); err != nil {
						b.log.Warn("broadcast send skipped", logx.Int64("chat_id", id), logx.Err(err))
						return
					}
				}
				if err := b.sender.SendText(ctx, id, text, sendOpt); err != nil {
					b.log.Warn("broadcast send failed", logx.Int64("chat_id", id), logx.Err(err))
					return
				}
				succeeded.Add(1)
			}(id)
		}
		wg.Wait()

		// Pacing pause between batches, never after the last one.
		if i < len(batches)-1 && pause > 0 {
			tmr := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				tmr.Stop()
			case <-tmr.C:
			}
		}
	}

	res := Result{
		Attempted:  len(ids),
		Succeeded:  int(succeeded.Load()),
		Recipients: len(ids),
	}
	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("succeeded", res.Succeeded),
		logx.Duration("took", time.Since(start)),
	}
	if res.Succeeded < res.Attempted {
		b.log.Warn("broadcast finished with failures", fields...)
	} else {
		b.log.Info("broadcast finished", fields...)
	}
	return res, nil
}

// partition splits ids into ceil(len/size) batches preserving order.
// Batches share the backing array with ids; callers must not mutate them.
func partition(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = 1
	}
	var out [][]int64
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
