package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/footprint/internal/adapters/mq/queue"
	worker "github.com/okian/footprint/internal/adapters/mq/worker"
	model "github.com/okian/footprint/internal/domain/model"
	logging "github.com/okian/footprint/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan chan queue.Event
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	close(mq.eventChan)
	return nil
}

type mockWriter struct {
	mu      sync.Mutex
	written []string
	fail    map[string]error
	delay   time.Duration
}

func newMockWriter() *mockWriter {
	return &mockWriter{fail: make(map[string]error)}
}

func (mw *mockWriter) Write(ctx context.Context, rec queue.Event) error {
	if mw.delay > 0 {
		time.Sleep(mw.delay)
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if err, ok := mw.fail[rec.RecordID()]; ok {
		return err
	}
	mw.written = append(mw.written, rec.RecordID())
	return nil
}

func (mw *mockWriter) ids() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return append([]string(nil), mw.written...)
}

func pageview(id string) model.PageviewRecord {
	return model.PageviewRecord{ID: id, Timestamp: time.Now(), Path: "/", Method: "GET"}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := newMockQueue()
		w := newMockWriter()

		convey.Convey("When creating a worker with custom options", func() {
			wk := worker.NewInMemoryWorker(q, w, worker.WithName("test-worker"), worker.WithLogger(logging.Named("test")))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(wk, convey.ShouldNotBeNil)
				convey.So(wk.Processed(), convey.ShouldEqual, int64(0))
			})
		})

		convey.Convey("When running a worker", func() {
			wk := worker.NewInMemoryWorker(q, w)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go wk.Run(ctx)

			convey.Convey("And records arrive", func() {
				q.eventChan <- pageview("r1")
				q.eventChan <- pageview("r2")
				_ = q.Close()

				err := wk.Shutdown(context.Background())

				convey.Convey("Then they are written in order before Run returns", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.ids(), convey.ShouldResemble, []string{"r1", "r2"})
					convey.So(wk.Processed(), convey.ShouldEqual, int64(2))
				})
			})

			convey.Convey("And the writer fails", func() {
				w.fail["bad"] = errors.New("disk full")
				q.eventChan <- pageview("bad")
				q.eventChan <- pageview("good")
				_ = q.Close()
				_ = wk.Shutdown(context.Background())

				convey.Convey("Then the worker keeps going", func() {
					convey.So(w.ids(), convey.ShouldResemble, []string{"good"})
					convey.So(wk.Failed(), convey.ShouldEqual, int64(1))
				})
			})

			convey.Convey("And shutdown times out", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				defer shutdownCancel()

				err := wk.Shutdown(shutdownCtx)

				convey.Convey("Then a timeout error is returned", func() {
					convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				})
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool over an in-memory queue", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		w := newMockWriter()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, w)

			convey.Convey("Then the default size is used", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When records are queued and the pool shuts down", func() {
			w.delay = time.Millisecond
			pool := worker.NewPool(3, q, w)
			pool.Start(context.Background())

			for i := 0; i < 200; i++ {
				convey.So(q.Enqueue(context.Background(), pageview(fmt.Sprintf("r%d", i))), convey.ShouldBeNil)
			}

			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued record is written before Shutdown returns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.ids(), convey.ShouldHaveLength, 200)
				convey.So(pool.Processed(), convey.ShouldEqual, int64(200))
				convey.So(pool.Failed(), convey.ShouldEqual, int64(0))
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool context is canceled", func() {
			pool := worker.NewPool(2, q, w)
			ctx, cancel := context.WithCancel(context.Background())
			pool.Start(ctx)
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then shutdown still completes", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}
