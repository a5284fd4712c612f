// Package throttle implements the Throttler: one of three rate-limiting
// strategies gating download starts (spec.md §4.5).
//
// Concurrent(n) is grounded on golang.org/x/sync/semaphore.Weighted, a
// dependency already present in the teacher's module graph via
// golang.org/x/sync (used there for errgroup). PerSecond(n) and Delay(d)
// are adapted from the teacher's pkg/ratelimit.Limiter, which drives its
// wait off a time.Ticker; PerSecond keeps the ticker but feeds it into a
// capacity-n token bucket so unclaimed ticks accumulate instead of being
// dropped, and Delay drops the ticker entirely for a simple mutex-guarded
// "next allowed start" timestamp.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Throttler gates download starts under one of three strategies. Only one
// strategy is active per run.
type Throttler interface {
	// Acquire blocks until the caller may start a download, or until ctx is
	// done.
	Acquire(ctx context.Context) error
	// Release signals that a previously acquired download has completed
	// (success or terminal failure). Concurrent(n) uses this to free a
	// slot; the other strategies ignore it.
	Release()
	// Stop releases any background resources (tickers).
	Stop()
}

// NewConcurrent returns a Throttler bounding in-flight downloads to n.
// FIFO-fair because semaphore.Weighted queues waiters in arrival order.
func NewConcurrent(n int64) Throttler {
	return &concurrentThrottler{sem: semaphore.NewWeighted(n)}
}

type concurrentThrottler struct {
	sem *semaphore.Weighted
}

func (t *concurrentThrottler) Acquire(ctx context.Context) error {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("throttle: concurrent acquire: %w", err)
	}
	return nil
}

func (t *concurrentThrottler) Release() { t.sem.Release(1) }
func (t *concurrentThrottler) Stop()    {}

// NewPerSecond returns a Throttler backed by a token bucket: capacity n
// tokens, refilled one token every 1/n of a second (adapted from the
// teacher's pkg/ratelimit.Limiter, which drove the same ticker-paced
// production off a bare time.Ticker). Unlike a bare ticker, unclaimed
// tokens accumulate up to the n-token capacity instead of being dropped,
// so a caller that falls behind can catch up with a burst of up to n
// downloads, per spec.md §4.5's "n tokens/sec with capacity n".
func NewPerSecond(n int) Throttler {
	if n <= 0 {
		n = 1
	}
	b := &bucketThrottler{
		tokens: make(chan struct{}, n),
		done:   make(chan struct{}),
		ticker: time.NewTicker(time.Second / time.Duration(n)),
	}
	go b.refill()
	return b
}

type bucketThrottler struct {
	ticker *time.Ticker
	tokens chan struct{}
	done   chan struct{}
	once   sync.Once
}

// refill adds one token per tick, dropping the tick if the bucket is
// already at capacity.
func (t *bucketThrottler) refill() {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

func (t *bucketThrottler) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.tokens:
		return nil
	}
}

func (t *bucketThrottler) Release() {}

func (t *bucketThrottler) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// NewDelay returns a Throttler serializing starts so that no two downloads
// begin within d of each other.
func NewDelay(d time.Duration) Throttler {
	return &delayThrottler{delay: d}
}

type delayThrottler struct {
	mu        sync.Mutex
	delay     time.Duration
	lastStart time.Time
}

func (t *delayThrottler) Acquire(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	wait := t.delay - now.Sub(t.lastStart)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	t.lastStart = time.Now()
	return nil
}

func (t *delayThrottler) Release() {}
func (t *delayThrottler) Stop()    {}
