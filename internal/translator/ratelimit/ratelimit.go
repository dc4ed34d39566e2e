package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ownlingo/ownlingo/internal/globaltime"
)

// maxWaitSlice bounds one sleep iteration so cancellation and limit updates
// are observed promptly.
const maxWaitSlice = time.Second

// Limiter enforces tokens-per-minute (TPM) and requests-per-minute (RPM)
// budgets for one provider. Both buckets refill continuously in proportion to
// elapsed wall-clock time, capped at capacity. One limiter may be shared by
// every job using the same provider.
type Limiter struct {
	mu         sync.Mutex
	tpm        int
	rpm        int
	tokens     float64
	requests   float64
	lastRefill time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter with both buckets full.
func NewLimiter(tpm, rpm int) *Limiter {
	l := &Limiter{
		tpm:      tpm,
		rpm:      rpm,
		tokens:   float64(tpm),
		requests: float64(rpm),
		now:      globaltime.Now,
		sleep:    sleepContext,
	}
	l.lastRefill = l.now()
	return l
}

// Wait blocks until both buckets can cover one request consuming
// tokensNeeded tokens, then debits both atomically. It returns the context
// error when the caller is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, tokensNeeded int) error {
	for {
		l.mu.Lock()
		l.refillLocked()

		// A request larger than the whole bucket can never be covered;
		// clamp the debit so it proceeds once the bucket is full instead
		// of waiting until the context dies.
		need := tokensNeeded
		if l.tpm > 0 && need > l.tpm {
			need = l.tpm
		}

		if l.tokens >= float64(need) && l.requests >= 1 {
			l.tokens -= float64(need)
			l.requests--
			l.mu.Unlock()
			return nil
		}

		wait := l.shortfallWaitLocked(need)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining reports the current token and request balances.
func (l *Limiter) Remaining() (tokens, requests int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return int(l.tokens), int(l.requests)
}

// SetTPM updates the tokens-per-minute limit, clamping the current balance to
// the new capacity.
func (l *Limiter) SetTPM(tpm int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	l.tpm = tpm
	if l.tokens > float64(tpm) {
		l.tokens = float64(tpm)
	}
}

// SetRPM updates the requests-per-minute limit, clamping the current balance
// to the new capacity.
func (l *Limiter) SetRPM(rpm int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	l.rpm = rpm
	if l.requests > float64(rpm) {
		l.requests = float64(rpm)
	}
}

// refillLocked credits both buckets proportionally to elapsed time.
// Caller must hold l.mu.
func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.lastRefill = now

	minutes := elapsed.Minutes()
	l.tokens += minutes * float64(l.tpm)
	if l.tokens > float64(l.tpm) {
		l.tokens = float64(l.tpm)
	}
	l.requests += minutes * float64(l.rpm)
	if l.requests > float64(l.rpm) {
		l.requests = float64(l.rpm)
	}
}

// shortfallWaitLocked estimates how long until both buckets cover the need,
// bounded at maxWaitSlice. Caller must hold l.mu.
func (l *Limiter) shortfallWaitLocked(tokensNeeded int) time.Duration {
	wait := maxWaitSlice

	if deficit := float64(tokensNeeded) - l.tokens; deficit > 0 && l.tpm > 0 {
		if d := time.Duration(deficit / float64(l.tpm) * float64(time.Minute)); d < wait {
			wait = d
		}
	}
	if l.requests < 1 && l.rpm > 0 {
		if d := time.Duration((1 - l.requests) / float64(l.rpm) * float64(time.Minute)); d < wait {
			wait = d
		}
	}

	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
