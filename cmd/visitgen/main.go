package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/footprint/internal/visitgen"
	"github.com/okian/footprint/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumEvents    = 1000
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultInvalidRatio = 0.1
	defaultPageRatio    = 0.3
	defaultTimeout      = 10 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL   = flag.String("url", "http://localhost:10000", "Base URL of the collector")
		numEvents = flag.Int("events", defaultNumEvents, "Number of requests to issue")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		invalid   = flag.Float64("invalid", defaultInvalidRatio, "Share of /collect bodies that are deliberately invalid")
		pages     = flag.Float64("pages", defaultPageRatio, "Share of requests that are HTML page loads")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		visitgen.ShowHelp()
		return 0
	}

	if err := visitgen.SetupLogging(*verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := &visitgen.Config{
		BaseURL:      *baseURL,
		NumEvents:    *numEvents,
		Workers:      *workers,
		InvalidRatio: *invalid,
		PageRatio:    *pages,
		Timeout:      *timeout,
		Verbose:      *verbose,
	}

	if _, err := visitgen.Run(ctx, config); err != nil {
		logger.Get().Error(ctx, "run failed", logger.Error(err))
		return 1
	}
	return 0
}
