package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cast"

	"github.com/okian/footprint/internal/adapters/http/api"
	"github.com/okian/footprint/internal/adapters/sink"
	app "github.com/okian/footprint/internal/app"
	"github.com/okian/footprint/internal/config"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	os.Exit(run())
}

func run() int {
	// Bootstrap logging on stderr; reconfigured once the config is known.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Error(ctx, "failed to load config", logger.Error(err))
		return 1
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		logger.Get().Error(ctx, "invalid log_format", logger.String("log_format", cfg.LogFormat), logger.Error(err))
		return 1
	}
	loggerInstance := logger.Named("main")

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if cfg.UsesDefaultSalt() {
		loggerInstance.Warn(ctx, "IP_HASH_SALT is not set; anonymized tokens are guessable with the public default")
	}

	metrics.Configure(metrics.WithConstLabels(map[string]string{"instance": cfg.Instance()}))

	svc := newService(cfg)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return 1
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	apiServer := api.NewServer(svc,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithLogger(logger.Named("http")),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiServer.Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr()),
			logger.Bool("fileLogging", cfg.LogToFile),
			logger.String("logDir", cfg.LogDir),
			logger.Bool("consentRequired", cfg.ConsentRequired),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			exitCode = 1
		}
	}
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop intake first, then drain queued pageviews and close the day file.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	svc.Stop()

	loggerInstance.Info(ctx, "server stopped")
	return exitCode
}

// newService maps configuration onto service options.
func newService(cfg *config.Config) *app.Service {
	return app.New(
		app.WithLogger(logger.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithIPHashSecret(cfg.IPHashSalt),
		app.WithConsentRequired(cfg.ConsentRequired),
		app.WithRateLimit(cfg.RateLimitPoints, cfg.RateLimitWindow()),
		app.WithSinkOptions(
			sink.WithFileEnabled(cfg.LogToFile),
			sink.WithDir(cfg.LogDir),
			sink.WithFsync(cfg.LogFsync),
			sink.WithLocation(cfg.Location()),
			sink.WithLogger(logger.Named("sink")),
		),
	)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc.GetStats())
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics pushes the stats snapshot into gauges. Values are
// loosely typed, so they go through cast.
func updateServiceMetrics(stats map[string]interface{}) {
	if !cast.ToBool(stats["started"]) {
		metrics.UpdateWorkerCount(0)
		return
	}

	queueLen := cast.ToInt(stats["queueLength"])
	queueCap := cast.ToInt(stats["queueSize"])
	metrics.UpdateQueueSize(queueLen)
	if queueCap > 0 {
		metrics.UpdateQueueUtilization(float64(queueLen) / float64(queueCap))
	}

	metrics.UpdateRateLimitBuckets(cast.ToInt(stats["rateLimitBuckets"]))
	metrics.UpdateWorkerCount(cast.ToInt(stats["workerCount"]))
}
