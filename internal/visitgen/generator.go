package visitgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/footprint/internal/domain/payload"
	"github.com/okian/footprint/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	invalidShapes      = 4
	ipOctetRange       = 254
)

var userAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var timeZones = []string{"Europe/Berlin", "America/New_York", "Asia/Tokyo", "UTC"}

var pagePaths = []string{"/", "/?utm_source=visitgen"}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// randomIndex returns a value in [0, n).
func randomIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateJobs creates the request plan for a run.
func generateJobs(ctx context.Context, config *Config, stats *Stats) ([]Job, error) {
	logger.Get().Info(ctx, "generating jobs",
		logger.Int("numEvents", config.NumEvents),
		logger.Float64("invalidRatio", config.InvalidRatio),
		logger.Float64("pageRatio", config.PageRatio))

	jobs := make([]Job, 0, config.NumEvents)
	for i := 0; i < config.NumEvents; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during job generation: %w", err)
		}

		var (
			job Job
			err error
		)
		switch {
		case getRandomFloat() < config.PageRatio:
			job = generatePageJob()
		case getRandomFloat() < config.InvalidRatio:
			job = generateInvalidJob()
		default:
			job, err = generateCollectJob()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to generate job %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	stats.Generated = len(jobs)
	logger.Get().Info(ctx, "generated jobs successfully", logger.Int("count", len(jobs)))
	return jobs, nil
}

// generateCollectJob builds a body that passes payload validation.
func generateCollectJob() (Job, error) {
	ua := userAgents[randomIndex(len(userAgents))]
	tz := timeZones[randomIndex(len(timeZones))]
	lang := "en-US"
	platform := "Win32"
	ref := "https://example.com/?visit=" + uuid.NewString()
	consent := true
	cores := 1 + randomIndex(16)
	width := 320 + randomIndex(3520)
	height := 480 + randomIndex(1680)
	ratio := 1 + float64(randomIndex(3))

	body, err := json.Marshal(payload.ClientPayload{
		Consent:   &consent,
		TZ:        &tz,
		Lang:      &lang,
		Languages: []string{lang, "en"},
		Platform:  &platform,
		UA:        &ua,
		HW:        &payload.Hardware{Cores: &cores},
		Screen:    &payload.Screen{Width: &width, Height: &height, PixelRatio: &ratio},
		Ref:       &ref,
	})
	if err != nil {
		return Job{}, err
	}
	return Job{
		Kind:      KindCollect,
		Path:      "/collect",
		Body:      body,
		UserAgent: ua,
		ClientIP:  randomClientIP(),
	}, nil
}

// generateInvalidJob builds a body the collector must answer with 400.
func generateInvalidJob() Job {
	var body string
	switch randomIndex(invalidShapes) {
	case 0:
		body = `{"screen":{"width":-1}}`
	case 1:
		body = `{"consent":"yes"}`
	case 2:
		body = `[1,2,3]`
	default:
		body = `{"tz":`
	}
	return Job{
		Kind:      KindCollect,
		Path:      "/collect",
		Body:      []byte(body),
		UserAgent: userAgents[randomIndex(len(userAgents))],
		ClientIP:  randomClientIP(),
		Invalid:   true,
	}
}

// generatePageJob builds an HTML page load.
func generatePageJob() Job {
	return Job{
		Kind:      KindPage,
		Path:      pagePaths[randomIndex(len(pagePaths))],
		UserAgent: userAgents[randomIndex(len(userAgents))],
		ClientIP:  randomClientIP(),
	}
}

// randomClientIP returns an address from the 198.18.0.0/15 benchmarking range.
func randomClientIP() string {
	return "198." + strconv.Itoa(18+randomIndex(2)) + "." +
		strconv.Itoa(1+randomIndex(ipOctetRange)) + "." +
		strconv.Itoa(1+randomIndex(ipOctetRange))
}
