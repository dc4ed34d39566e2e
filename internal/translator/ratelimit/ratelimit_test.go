package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a limiter manually: sleeps advance the clock instead of
// blocking.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(tpm, rpm int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(tpm, rpm)
	l.now = clock.Now
	l.sleep = clock.Sleep
	l.lastRefill = clock.now
	return l, clock
}

func TestWaitWithinLimitsReturnsImmediately(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(1000, 10)
	before := clock.now

	if err := l.Wait(context.Background(), 100); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !clock.now.Equal(before) {
		t.Fatalf("expected no sleep, clock advanced by %v", clock.now.Sub(before))
	}

	tokens, requests := l.Remaining()
	if tokens != 900 {
		t.Fatalf("unexpected token balance: got %d want 900", tokens)
	}
	if requests != 9 {
		t.Fatalf("unexpected request balance: got %d want 9", requests)
	}
}

func TestWaitBlocksUntilTokensRefill(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(600, 100)
	ctx := context.Background()
	start := clock.now

	// Drain the token bucket entirely.
	if err := l.Wait(ctx, 600); err != nil {
		t.Fatalf("initial wait failed: %v", err)
	}

	// 300 tokens refill in 30s at 600 TPM.
	if err := l.Wait(ctx, 300); err != nil {
		t.Fatalf("second wait failed: %v", err)
	}

	elapsed := clock.now.Sub(start)
	if elapsed < 30*time.Second {
		t.Fatalf("expected at least 30s of simulated waiting, got %v", elapsed)
	}
	if elapsed > 35*time.Second {
		t.Fatalf("waited longer than refill requires: %v", elapsed)
	}
}

func TestWaitBlocksOnRequestBucket(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(100000, 2)
	ctx := context.Background()
	start := clock.now

	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, 100); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
	if clock.now.Sub(start) != 0 {
		t.Fatalf("first two requests should not wait")
	}

	// The third request needs one request credit: 30s at 2 RPM.
	if err := l.Wait(ctx, 100); err != nil {
		t.Fatalf("third wait failed: %v", err)
	}
	if elapsed := clock.now.Sub(start); elapsed < 30*time.Second {
		t.Fatalf("expected request-bucket wait of at least 30s, got %v", elapsed)
	}
}

func TestWaitClampsOversizedRequestToCapacity(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(600, 100)
	ctx := context.Background()
	start := clock.now

	// A request bigger than the whole bucket proceeds on a full bucket
	// instead of waiting forever for a balance that cannot exist.
	if err := l.Wait(ctx, 5000); err != nil {
		t.Fatalf("oversized wait failed: %v", err)
	}
	if !clock.now.Equal(start) {
		t.Fatalf("full bucket should cover a clamped request, clock advanced by %v", clock.now.Sub(start))
	}

	tokens, _ := l.Remaining()
	if tokens != 0 {
		t.Fatalf("expected drained token bucket, got %d", tokens)
	}

	// The next oversized request waits one full refill, not forever.
	if err := l.Wait(ctx, 5000); err != nil {
		t.Fatalf("second oversized wait failed: %v", err)
	}
	if elapsed := clock.now.Sub(start); elapsed < time.Minute || elapsed > 70*time.Second {
		t.Fatalf("expected about one minute of simulated waiting, got %v", elapsed)
	}
}

func TestWaitDebitsBothBuckets(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(1000, 10)
	if err := l.Wait(context.Background(), 250); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	tokens, requests := l.Remaining()
	if tokens != 750 || requests != 9 {
		t.Fatalf("unexpected balances: tokens=%d requests=%d", tokens, requests)
	}
}

func TestWaitReturnsContextError(t *testing.T) {
	t.Parallel()

	l := NewLimiter(100, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, 100); err != nil {
		t.Fatalf("initial wait failed: %v", err)
	}

	cancel()
	if err := l.Wait(ctx, 100); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSetTPMClampsBalance(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(1000, 10)
	l.SetTPM(200)

	tokens, _ := l.Remaining()
	if tokens > 200 {
		t.Fatalf("expected balance clamped to 200, got %d", tokens)
	}
}

func TestConcurrentWaiters(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(100000, 1000)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- l.Wait(ctx, 100)
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent wait failed: %v", err)
		}
	}

	tokens, requests := l.Remaining()
	if tokens != 100000-800 {
		t.Fatalf("unexpected token balance: %d", tokens)
	}
	if requests != 1000-8 {
		t.Fatalf("unexpected request balance: %d", requests)
	}
}
