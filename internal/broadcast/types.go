package broadcast

import (
	"context"
	"time"
)

type Config struct {
	// BatchSize is the default number of recipients per fan-out batch.
	BatchSize int
	// BatchPause is the default pause between batches (pacing for the
	// platform's rate limits, not a correctness requirement).
	BatchPause time.Duration
	// RatePerSec caps individual sends across the whole broadcast.
	RatePerSec int
}

// Options tune a single broadcast call. Zero fields fall back to Config
// defaults (admin broadcasts and scheduled updates use different sizes).
type Options struct {
	BatchSize int
	Pause     time.Duration
	ParseMode string
}

// Result summarizes one broadcast invocation.
type Result struct {
	Attempted  int
	Succeeded  int
	Recipients int
}

// RecipientSource provides the recipient snapshot a broadcast runs over.
type RecipientSource interface {
	ListRecipients(ctx context.Context) ([]int64, error)
}
