package ratelimit

import "time"

// Option applies a configuration option to the fixed-window limiter.
type Option func(*fixedWindow)

// WithPoints sets the budget per identity per window. Values <= 0 are ignored.
func WithPoints(points int) Option {
	return func(l *fixedWindow) {
		if points > 0 {
			l.points = points
		}
	}
}

// WithWindow sets the window length. Values <= 0 are ignored.
func WithWindow(window time.Duration) Option {
	return func(l *fixedWindow) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *fixedWindow) {
		if now != nil {
			l.now = now
		}
	}
}
