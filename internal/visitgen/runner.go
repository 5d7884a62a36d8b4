package visitgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/footprint/pkg/logger"
)

// ErrInvalidConfig reports an unusable run configuration.
var ErrInvalidConfig = errors.New("invalid generator config")

// Validate checks the run configuration.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.NumEvents < 1:
		return fmt.Errorf("%w: events must be at least 1", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.InvalidRatio < 0 || c.InvalidRatio > 1:
		return fmt.Errorf("%w: invalid ratio must be within [0,1]", ErrInvalidConfig)
	case c.PageRatio < 0 || c.PageRatio > 1:
		return fmt.Errorf("%w: page ratio must be within [0,1]", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Run executes a complete generator run and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting footprint visit generator",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.Float64("invalidRatio", config.InvalidRatio),
		logger.String("timeout", config.Timeout.String()),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate jobs
	jobs, err := generateJobs(ctx, config, stats)
	if err != nil {
		return nil, fmt.Errorf("job generation failed: %w", err)
	}

	// Step 3: Submit jobs concurrently
	submitJobs(ctx, config, jobs, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	logger.Get().Info(ctx, "run completed")
	return stats, nil
}

// checkServiceHealth verifies the collector is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.BaseURL, config.Timeout)
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var okRate, requestsPerSecond float64

	if stats.Submitted > 0 {
		okRate = float64(stats.OK) / float64(stats.Submitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("status200", stats.OK),
		logger.Int("status400", stats.BadRequest),
		logger.Int("status429", stats.RateLimited),
		logger.Int("statusOther", stats.Other),
		logger.Int("transportErrors", stats.Failed),
		logger.String("minLatency", stats.MinLatency.String()),
		logger.String("avgLatency", stats.AvgLatency.String()),
		logger.String("maxLatency", stats.MaxLatency.String()),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("okRate", okRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
