package visitgen

import (
	"fmt"
	"os"

	"github.com/okian/footprint/pkg/logger"
)

// SetupLogging initializes the logger for the generator.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the visit generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Footprint Visit Generator
=========================

A concurrent load and smoke tool for the footprint collector.

Usage:
  go run ./cmd/visitgen [options]

Options:
  -url string
        Base URL of the collector (default "http://localhost:10000")
  -events int
        Number of requests to issue (default 1000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -invalid float
        Share of /collect bodies that are deliberately invalid (default 0.1)
  -pages float
        Share of requests that are HTML page loads (default 0.3)
  -timeout duration
        HTTP request timeout (default 10s)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Smoke test a local collector
  go run ./cmd/visitgen -events 50

  # Heavier run with a third of the bodies rejected
  go run ./cmd/visitgen -events 20000 -workers 32 -invalid 0.33
`)
}
