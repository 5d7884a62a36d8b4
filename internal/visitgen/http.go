package visitgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/footprint/pkg/logger"
)

// Outcome buckets a response.
type Outcome string

// Response outcomes.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeBadRequest  Outcome = "bad_request"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeOther       Outcome = "other"
	OutcomeFailed      Outcome = "failed"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Do issues one job and returns the status code.
func (c *HTTPClient) Do(ctx context.Context, job Job) (int, error) {
	var (
		req *http.Request
		err error
	)
	switch job.Kind {
	case KindPage:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+job.Path, nil)
		if err == nil {
			req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+job.Path, bytes.NewReader(job.Body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if job.UserAgent != "" {
		req.Header.Set("User-Agent", job.UserAgent)
	}
	if job.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", job.ClientIP)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// classify maps a status code to an outcome.
func classify(status int, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeFailed
	case status == http.StatusOK:
		return OutcomeOK
	case status == http.StatusBadRequest:
		return OutcomeBadRequest
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	default:
		return OutcomeOther
	}
}

// latencyTracker aggregates request latencies across workers.
type latencyTracker struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func (l *latencyTracker) observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
	l.count++
	l.total += d
}

func (l *latencyTracker) snapshot() (minLatency, maxLatency, avgLatency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0, 0, 0
	}
	return l.min, l.max, l.total / time.Duration(l.count)
}

// submitJobs issues jobs concurrently using a worker pool.
func submitJobs(ctx context.Context, config *Config, jobs []Job, stats *Stats) {
	logger.Get().Info(ctx, "submitting jobs", logger.Int("count", len(jobs)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	var (
		submitted   int64
		ok          int64
		badRequest  int64
		rateLimited int64
		other       int64
		failed      int64
		lastReport  atomic.Int64
		latencies   latencyTracker
	)

	jobChan := make(chan Job, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for job := range jobChan {
				if ctx.Err() != nil {
					continue
				}

				start := time.Now()
				status, err := client.Do(ctx, job)
				latencies.observe(time.Since(start))

				atomic.AddInt64(&submitted, 1)
				switch classify(status, err) {
				case OutcomeOK:
					atomic.AddInt64(&ok, 1)
				case OutcomeBadRequest:
					atomic.AddInt64(&badRequest, 1)
				case OutcomeRateLimited:
					atomic.AddInt64(&rateLimited, 1)
				case OutcomeOther:
					atomic.AddInt64(&other, 1)
				case OutcomeFailed:
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						logger.Get().Debug(ctx, "request failed", logger.String("path", job.Path), logger.Error(err))
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if config.Verbose && now-last >= int64(ProgressInterval) && lastReport.CompareAndSwap(last, now) {
					logger.Get().Info(ctx, "progress",
						logger.Int64("submitted", atomic.LoadInt64(&submitted)),
						logger.Int("total", len(jobs)),
						logger.Int64("ok", atomic.LoadInt64(&ok)),
						logger.Int64("badRequest", atomic.LoadInt64(&badRequest)),
						logger.Int64("rateLimited", atomic.LoadInt64(&rateLimited)))
				}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case jobChan <- job:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.OK = int(atomic.LoadInt64(&ok))
	stats.BadRequest = int(atomic.LoadInt64(&badRequest))
	stats.RateLimited = int(atomic.LoadInt64(&rateLimited))
	stats.Other = int(atomic.LoadInt64(&other))
	stats.Failed = int(atomic.LoadInt64(&failed))
	stats.MinLatency, stats.MaxLatency, stats.AvgLatency = latencies.snapshot()
}
