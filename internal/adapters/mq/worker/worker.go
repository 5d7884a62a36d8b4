// Package worker drains queued records into the record writer.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/footprint/internal/adapters/mq/queue"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

const defaultWorkerCount = 4

// Event is what workers read off the queue.
type Event = queue.Event

// Writer persists one record.
type Writer interface {
	Write(ctx context.Context, rec Event) error
}

// Queue defines how workers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker consumes records and hands them to a Writer.
type Worker interface {
	// Run processes records until the queue is closed and drained or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	writer Writer
	name   string

	done chan struct{}

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  queue,
		writer: writer,
		name:   "worker",
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for event := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, event); err != nil {
			w.logger.Error(ctx, "record write failed",
				logger.String("id", event.RecordID()),
				logger.String("kind", string(event.Kind())),
				logger.Error(err),
			)
		}
	}
}

// Shutdown waits for the worker to finish draining or ctx to expire.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of records written successfully.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of records the writer rejected.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, event Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.writer.Write(ctx, event); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "write_error")
		metrics.RecordErrorByType("write_error", "high")
		return fmt.Errorf("write %s record %s: %w", event.Kind(), event.RecordID(), err)
	}
	w.processed.Add(1)
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a worker pool. A count below 1 selects the default.
func NewPool(workerCount int, queue Queue, writer Writer) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, writer, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the total number of records written by the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns the total number of write failures seen by the pool.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			return err
		}
	}

	metrics.UpdateWorkerCount(0)
	return nil
}
