// Package ratelimit bounds how often one client identity may submit telemetry.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/httprate"
)

// ErrLimitExceeded is returned by Consume once an identity has spent its
// budget for the current window.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Result describes the identity's bucket after a Consume call.
type Result struct {
	Limit     int
	Remaining int

	// ResetAt is when the current window ends and the budget refills.
	ResetAt time.Time
}

// RetryAfter is the time left until ResetAt, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Limiter admits or rejects units of work per identity.
type Limiter interface {
	// Consume spends one point from identity's budget. It returns
	// ErrLimitExceeded without spending when the budget is exhausted.
	Consume(ctx context.Context, identity string) (Result, error)

	// Size reports the number of tracked identities.
	Size() int64
}

// fixedWindow implements Limiter on httprate's in-memory counter. Windows are
// aligned to the clock, so every identity's budget refills at the same instant
// and the counter evicts the previous window's keys as it rolls over.
type fixedWindow struct {
	mu      sync.Mutex
	counter httprate.LimitCounter
	points  int
	window  time.Duration
	now     func() time.Time

	// active counts identities admitted in activeWindow.
	activeWindow time.Time
	active       atomic.Int64
}

// NewFixedWindow creates an in-memory fixed-window limiter.
func NewFixedWindow(opts ...Option) Limiter {
	l := &fixedWindow{
		points: 60,
		window: time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.counter = httprate.NewLocalLimitCounter(l.window)
	return l
}

// Consume implements Limiter.
func (l *fixedWindow) Consume(ctx context.Context, identity string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// The counter compares window instants with ==, so normalize to UTC.
	current := l.now().UTC().Truncate(l.window)
	res := Result{Limit: l.points, ResetAt: current.Add(l.window)}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !current.Equal(l.activeWindow) {
		l.activeWindow = current
		l.active.Store(0)
	}

	used, _, err := l.counter.Get(identity, current, current.Add(-l.window))
	if err != nil {
		return res, err
	}
	if used >= l.points {
		return res, ErrLimitExceeded
	}
	if err := l.counter.Increment(identity, current); err != nil {
		return res, err
	}
	if used == 0 {
		l.active.Add(1)
	}
	res.Remaining = l.points - used - 1
	return res, nil
}

// Size implements Limiter. It counts identities admitted in the most recent
// window.
func (l *fixedWindow) Size() int64 {
	return l.active.Load()
}
