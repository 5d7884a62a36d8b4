package visitgen

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/footprint/internal/adapters/http/api"
	"github.com/okian/footprint/internal/adapters/sink"
	service "github.com/okian/footprint/internal/app"
	"github.com/okian/footprint/internal/domain/payload"
	"github.com/okian/footprint/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func newCollector(t *testing.T) *httptest.Server {
	svc := service.New(
		service.WithIPHashSecret("visitgen-test"),
		service.WithSinkOptions(sink.WithStream(io.Discard), sink.WithFileEnabled(false)),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("failed to start service: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(svc).Router())
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func TestGenerateJobs(t *testing.T) {
	Convey("Given a generator config", t, func() {
		ctx := context.Background()
		cfg := &Config{NumEvents: 200}

		Convey("When no invalid share is requested", func() {
			stats := &Stats{}
			jobs, err := generateJobs(ctx, cfg, stats)
			So(err, ShouldBeNil)
			So(len(jobs), ShouldEqual, 200)
			So(stats.Generated, ShouldEqual, 200)

			Convey("Then every body passes payload validation", func() {
				for _, job := range jobs {
					So(job.Kind, ShouldEqual, KindCollect)
					So(job.Invalid, ShouldBeFalse)
					_, err := payload.Validate(job.Body)
					So(err, ShouldBeNil)
				}
			})
		})

		Convey("When every body must be invalid", func() {
			cfg.InvalidRatio = 1
			jobs, err := generateJobs(ctx, cfg, &Stats{})
			So(err, ShouldBeNil)

			Convey("Then every body is rejected by validation", func() {
				for _, job := range jobs {
					So(job.Invalid, ShouldBeTrue)
					_, err := payload.Validate(job.Body)
					So(errors.Is(err, payload.ErrInvalidPayload), ShouldBeTrue)
				}
			})
		})

		Convey("When every request is a page load", func() {
			cfg.PageRatio = 1
			jobs, err := generateJobs(ctx, cfg, &Stats{})
			So(err, ShouldBeNil)

			Convey("Then no job carries a body", func() {
				for _, job := range jobs {
					So(job.Kind, ShouldEqual, KindPage)
					So(job.Body, ShouldBeNil)
					So(job.ClientIP, ShouldStartWith, "198.")
				}
			})
		})

		Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := generateJobs(cancelled, cfg, &Stats{})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given response statuses", t, func() {
		So(classify(http.StatusOK, nil), ShouldEqual, OutcomeOK)
		So(classify(http.StatusBadRequest, nil), ShouldEqual, OutcomeBadRequest)
		So(classify(http.StatusTooManyRequests, nil), ShouldEqual, OutcomeRateLimited)
		So(classify(http.StatusRequestEntityTooLarge, nil), ShouldEqual, OutcomeOther)
		So(classify(0, errors.New("dial failed")), ShouldEqual, OutcomeFailed)
	})
}

func TestLatencyTracker(t *testing.T) {
	Convey("Given a latency tracker", t, func() {
		var l latencyTracker

		Convey("When nothing was observed", func() {
			minLatency, maxLatency, avgLatency := l.snapshot()
			So(minLatency, ShouldEqual, time.Duration(0))
			So(maxLatency, ShouldEqual, time.Duration(0))
			So(avgLatency, ShouldEqual, time.Duration(0))
		})

		Convey("When several latencies were observed", func() {
			l.observe(30 * time.Millisecond)
			l.observe(10 * time.Millisecond)
			l.observe(20 * time.Millisecond)
			minLatency, maxLatency, avgLatency := l.snapshot()
			So(minLatency, ShouldEqual, 10*time.Millisecond)
			So(maxLatency, ShouldEqual, 30*time.Millisecond)
			So(avgLatency, ShouldEqual, 20*time.Millisecond)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given run configurations", t, func() {
		valid := Config{BaseURL: "http://x", NumEvents: 1, Workers: 1, Timeout: time.Second}
		So(valid.Validate(), ShouldBeNil)

		bad := []Config{
			{NumEvents: 1, Workers: 1, Timeout: time.Second},
			{BaseURL: "http://x", Workers: 1, Timeout: time.Second},
			{BaseURL: "http://x", NumEvents: 1, Timeout: time.Second},
			{BaseURL: "http://x", NumEvents: 1, Workers: 1, InvalidRatio: 1.5, Timeout: time.Second},
			{BaseURL: "http://x", NumEvents: 1, Workers: 1, PageRatio: -0.1, Timeout: time.Second},
			{BaseURL: "http://x", NumEvents: 1, Workers: 1},
		}
		for _, c := range bad {
			So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
		}
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running collector", t, func() {
		srv := newCollector(t)
		cfg := &Config{
			BaseURL:   srv.URL,
			NumEvents: 60,
			Workers:   4,
			PageRatio: 0.3,
			Timeout:   5 * time.Second,
		}

		Convey("When a mixed run is issued", func() {
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)

			Convey("Then every request is answered with 200", func() {
				So(stats.Submitted, ShouldEqual, 60)
				So(stats.OK, ShouldEqual, 60)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.MaxLatency, ShouldBeGreaterThanOrEqualTo, stats.MinLatency)
			})
		})

		Convey("When every body is invalid", func() {
			cfg.PageRatio = 0
			cfg.InvalidRatio = 1
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)

			Convey("Then every request is answered with 400", func() {
				So(stats.BadRequest, ShouldEqual, 60)
				So(stats.OK, ShouldEqual, 0)
			})
		})
	})

	Convey("Given no collector at the address", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		cfg := &Config{BaseURL: srv.URL, NumEvents: 1, Workers: 1, Timeout: time.Second}

		_, err := Run(context.Background(), cfg)
		So(err, ShouldNotBeNil)
	})
}
