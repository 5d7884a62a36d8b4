package visitgen

import "time"

// Config holds configuration for a generator run.
type Config struct {
	BaseURL      string        // Base URL of the collector
	NumEvents    int           // Number of requests to issue
	Workers      int           // Number of concurrent workers
	InvalidRatio float64       // Share of /collect bodies that must be rejected, 0..1
	PageRatio    float64       // Share of requests that are HTML page loads, 0..1
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool          // Enable verbose logging
}

// JobKind distinguishes the two request shapes.
type JobKind string

const (
	// KindCollect is a POST /collect with a JSON body.
	KindCollect JobKind = "collect"

	// KindPage is a GET of an HTML page.
	KindPage JobKind = "page"
)

// Job is one request to issue.
type Job struct {
	Kind      JobKind
	Path      string
	Body      []byte
	UserAgent string
	ClientIP  string // sent as X-Forwarded-For so each job gets its own rate limit bucket
	Invalid   bool
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Submitted   int
	OK          int
	BadRequest  int
	RateLimited int
	Other       int
	Failed      int // transport errors
	MinLatency  time.Duration
	MaxLatency  time.Duration
	AvgLatency  time.Duration
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
