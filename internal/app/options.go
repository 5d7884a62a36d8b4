package service

import (
	"time"

	"github.com/okian/footprint/internal/adapters/sink"
	"github.com/okian/footprint/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of pageview writer goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the pageview queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIPHashSecret sets the key used to anonymize client addresses.
func WithIPHashSecret(secret string) Option {
	return func(s *Service) {
		s.secret = secret
	}
}

// WithConsentRequired controls what GET /config reports to the browser.
func WithConsentRequired(required bool) Option {
	return func(s *Service) {
		s.consentRequired = required
	}
}

// WithRateLimit sets the /collect budget per client per window.
func WithRateLimit(points int, window time.Duration) Option {
	return func(s *Service) {
		if points > 0 {
			s.ratePoints = points
		}
		if window > 0 {
			s.rateWindow = window
		}
	}
}

// WithSinkOptions configures the record writer built on Start.
func WithSinkOptions(opts ...sink.Option) Option {
	return func(s *Service) {
		s.sinkOpts = append(s.sinkOpts, opts...)
	}
}

// WithRecordWriter replaces the sink built on Start.
func WithRecordWriter(w RecordWriter) Option {
	return func(s *Service) {
		if w != nil {
			s.writer = w
		}
	}
}

// WithClock replaces time.Now for record timestamps and the limiter.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
