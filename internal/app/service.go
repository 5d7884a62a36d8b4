// Package service wires the ingestion pipeline behind the HTTP API:
// anonymize, enrich, rate-limit and persist visit records.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/footprint/internal/adapters/mq/queue"
	workerpool "github.com/okian/footprint/internal/adapters/mq/worker"
	"github.com/okian/footprint/internal/adapters/sink"
	"github.com/okian/footprint/internal/domain/anonymize"
	"github.com/okian/footprint/internal/domain/device"
	"github.com/okian/footprint/internal/domain/model"
	"github.com/okian/footprint/internal/domain/payload"
	"github.com/okian/footprint/internal/domain/ratelimit"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 10000
	defaultRatePoints  = 60
	defaultRateWindow  = time.Minute
	drainTimeout       = 30 * time.Second
)

// RecordWriter persists records. *sink.Writer implements it.
type RecordWriter interface {
	Write(ctx context.Context, rec model.Record) error
	Close() error
}

// PageviewInput is what the HTTP layer observed about a page request.
type PageviewInput struct {
	RemoteIP  string
	Method    string
	Path      string
	Host      string
	UserAgent string
	Header    http.Header
}

// ClientInput is a validated /collect submission plus request metadata.
type ClientInput struct {
	RemoteIP  string
	UserAgent string
	Referer   string
	Payload   payload.ClientPayload
}

// Service implements the API dependencies for the visit collector.
type Service struct {
	mu sync.RWMutex

	// Core components
	hasher  *anonymize.Hasher
	parser  *device.Parser
	limiter ratelimit.Limiter
	writer  RecordWriter
	queue   eventqueue.Queue
	pool    *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	secret          string
	consentRequired bool
	ratePoints      int
	rateWindow      time.Duration
	sinkOpts        []sink.Option
	now             func() time.Time

	// State
	started    bool
	ownsWriter bool

	logger logger.Logger
}

// New constructs a new Service. Components are built on Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		ratePoints:  defaultRatePoints,
		rateWindow:  defaultRateWindow,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the pipeline and starts the pageview writers.
// Workers outlive ctx; they stop when Stop drains the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting visit collector service...")

	s.hasher = anonymize.New(s.secret)
	s.parser = device.Default()
	s.limiter = ratelimit.NewFixedWindow(
		ratelimit.WithPoints(s.ratePoints),
		ratelimit.WithWindow(s.rateWindow),
		ratelimit.WithClock(s.now),
	)
	if s.writer == nil {
		s.writer = sink.NewWriter(s.sinkOpts...)
		s.ownsWriter = true
	}
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.writer)
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "visit collector service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("rateLimitPoints", s.ratePoints),
		logger.String("rateLimitWindow", s.rateWindow.String()),
	)

	return nil
}

// Stop drains queued pageviews, then closes the writer.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping visit collector service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "pageview queue did not drain", logger.Error(err))
	}
	// Injected writers belong to the caller and stay open.
	if s.ownsWriter {
		if err := s.writer.Close(); err != nil {
			s.logger.Error(ctx, "closing record writer failed", logger.Error(err))
		}
		s.writer = nil
		s.ownsWriter = false
	}

	s.started = false
	s.logger.Info(ctx, "visit collector service stopped")
}

// ConsentRequired reports whether the browser must ask before submitting telemetry.
func (s *Service) ConsentRequired() bool {
	return s.consentRequired
}

// Allow spends one unit of rawIP's /collect budget. The limiter is keyed by
// the anonymized token so raw addresses are never retained.
func (s *Service) Allow(ctx context.Context, rawIP string) (ratelimit.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ratelimit.Result{}, ErrNotStarted
	}

	res, err := s.limiter.Consume(ctx, s.hasher.Hash(rawIP))
	metrics.UpdateRateLimitBuckets(int(s.limiter.Size()))
	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		metrics.RecordRateLimited()
	}
	return res, err
}

// CapturePageview records a page request. It never blocks on disk: the
// record is queued, and written inline only when the queue cannot take it.
func (s *Service) CapturePageview(ctx context.Context, in PageviewInput) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		s.logger.Warn(ctx, "pageview dropped, service not started")
		return
	}

	rec := model.PageviewRecord{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Path:      in.Path,
		Method:    in.Method,
		IPHash:    s.hasher.Hash(in.RemoteIP),
		UserAgent: in.UserAgent,
		Device:    s.describe(in.UserAgent),
		Headers:   allowListed(in.Host, in.Header),
	}
	metrics.RecordEventCaptured(string(model.KindPageview))

	// Detach from the request: the record outlives the response.
	ctx = context.WithoutCancel(ctx)
	err := s.queue.Enqueue(ctx, rec)
	if err == nil {
		return
	}

	metrics.RecordQueueOverflowWrite()
	s.logger.Debug(ctx, "pageview queue unavailable, writing inline", logger.Error(err))
	if werr := s.writer.Write(ctx, rec); werr != nil {
		s.logger.Error(ctx, "pageview write failed",
			logger.String("id", rec.ID),
			logger.Error(werr),
		)
	}
}

// CollectClient records a validated /collect submission and returns once it
// is durable.
func (s *Service) CollectClient(ctx context.Context, in ClientInput) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	rec := model.ClientRecord{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Path:      referrer(in.Referer, deref(in.Payload.Ref)),
		IPHash:    s.hasher.Hash(in.RemoteIP),
		UserAgent: in.UserAgent,
		Client:    in.Payload,
	}
	if ua := deref(in.Payload.UA); ua != "" {
		rec.UserAgent = ua
	}
	rec.Device = s.describe(rec.UserAgent)
	metrics.RecordEventCaptured(string(model.KindClient))

	if err := s.writer.Write(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("persist client record: %w", err)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"consentRequired": s.consentRequired,
		"rateLimitPoints": s.ratePoints,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["rateLimitBuckets"] = s.limiter.Size()
		stats["pageviewsWritten"] = s.pool.Processed()
		stats["pageviewWriteFailures"] = s.pool.Failed()
		if fw, ok := s.writer.(interface {
			FileEnabled() bool
			CurrentFile() string
		}); ok {
			stats["fileLogging"] = fw.FileEnabled()
			stats["currentLogFile"] = fw.CurrentFile()
		}
	}

	return stats
}

func (s *Service) describe(ua string) *model.Device {
	if ua == "" {
		return nil
	}
	return s.parser.Parse(ua).Device()
}

func allowListed(host string, h http.Header) map[string]string {
	out := make(map[string]string, len(model.HeaderAllowList))
	for _, name := range model.HeaderAllowList {
		v := h.Get(name)
		if name == "host" && host != "" {
			v = host
		}
		if v != "" {
			out[name] = v
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func referrer(header, ref string) *string {
	switch {
	case header != "":
		return &header
	case ref != "":
		return &ref
	default:
		return nil
	}
}
