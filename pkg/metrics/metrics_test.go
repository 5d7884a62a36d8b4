package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "footprint")
				So(manager.subsystem, ShouldEqual, "collector")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.rateLimited.Inc()

			Convey("Then the options are reflected in exported names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_sub_rate_limited_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating two managers on the same registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording ingestion outcomes", func() {
			before := testutil.ToFloat64(globalManager.validationFailures)
			RecordValidationFailure()
			RecordValidationFailure()

			limitedBefore := testutil.ToFloat64(globalManager.rateLimited)
			RecordRateLimited()

			clientBefore := testutil.ToFloat64(globalManager.eventsCaptured.WithLabelValues("client"))
			RecordEventCaptured("client")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.validationFailures)-before, ShouldEqual, 2.0)
				So(testutil.ToFloat64(globalManager.rateLimited)-limitedBefore, ShouldEqual, 1.0)
				So(testutil.ToFloat64(globalManager.eventsCaptured.WithLabelValues("client"))-clientBefore, ShouldEqual, 1.0)
			})
		})

		Convey("When recording sink metrics", func() {
			before := testutil.ToFloat64(globalManager.recordsWritten.WithLabelValues("file"))
			RecordRecordWritten("file")
			RecordRecordWriteError("file")
			RecordRecordWriteLatency("file", 1.5)
			RecordFileRotation()

			Convey("Then the written counter moves", func() {
				So(testutil.ToFloat64(globalManager.recordsWritten.WithLabelValues("file"))-before, ShouldEqual, 1.0)
			})
		})

		Convey("When updating gauges", func() {
			UpdateRateLimitBuckets(7)
			UpdateQueueSize(3)
			UpdateQueueCapacity(10)
			UpdateQueueUtilization(0.3)
			UpdateWorkerCount(4)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.rateLimitBuckets), ShouldEqual, 7.0)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3.0)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4.0)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordHTTPRequest("collect", "POST", "200")
					RecordHTTPRequestDuration("collect", "POST", "200", 2.0)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(0.2)
					RecordQueueOverflowWrite()
					RecordWorkerProcessingLatency(1.0)
					RecordWorkerError()
					RecordErrorByComponent("sink", "write_failed")
					RecordErrorByType("write_failed", "high")
					RecordErrorByEndpoint("collect", "POST", "client_error")
					RecordErrorLatency("http", "client_error", 3.0)
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.4)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordRateLimited()

		Convey("When gathering", func() {
			families, err := GetRegistry().Gather()

			Convey("Then only footprint metrics are exposed", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "footprint_collector_"), ShouldBeTrue)
				}
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.recordsWritten.WithLabelValues("stream"))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				RecordRecordWritten("stream")
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.recordsWritten.WithLabelValues("stream"))-before, ShouldEqual, 50.0)
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager configured with an instance label", t, func() {
		Configure(WithConstLabels(map[string]string{"instance": "edge-1"}))
		defer Configure()

		RecordRateLimited()

		Convey("Then exposed series carry the label", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)

			var found bool
			for _, mf := range families {
				if mf.GetName() != "footprint_collector_rate_limited_total" {
					continue
				}
				found = true
				labels := mf.GetMetric()[0].GetLabel()
				So(labels, ShouldHaveLength, 1)
				So(labels[0].GetName(), ShouldEqual, "instance")
				So(labels[0].GetValue(), ShouldEqual, "edge-1")
				So(mf.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1.0)
			}
			So(found, ShouldBeTrue)
		})
	})
}
