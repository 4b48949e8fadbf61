package ingest

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with 20% jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the delay before retry attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}

	jitter := time.Duration(float64(d) * rand.Float64() * 0.2)
	d += jitter
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Sleep waits for the attempt's delay or until ctx is cancelled.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-time.After(b.Delay(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
