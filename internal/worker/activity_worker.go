// Package worker runs background jobs for the Estrella service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
)

// ActivitySink persists a batch of activity events
type ActivitySink interface {
	RecordBatch(ctx context.Context, events []models.ActivityEvent) error
}

// ActivityWorkerConfig holds configuration for the activity worker
type ActivityWorkerConfig struct {
	Sink          ActivitySink
	BufferSize    int           // Events held in memory before Enqueue starts dropping (default: 1024)
	BatchSize     int           // Events per insert (default: 200)
	FlushInterval time.Duration // Maximum time an event waits in the buffer (default: 2s)
}

// ActivityWorker batches activity events off the request path and flushes them to the sink.
// The activity log is informational: a full buffer or a failed flush drops events and
// never blocks or fails a quota operation.
type ActivityWorker struct {
	sink          ActivitySink
	events        chan models.ActivityEvent
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	dropped int64
	flushed int64
}

// NewActivityWorker creates a new activity worker
func NewActivityWorker(cfg *ActivityWorkerConfig) (*ActivityWorker, error) {
	if cfg == nil || cfg.Sink == nil {
		return nil, errors.New("activity sink is required")
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	return &ActivityWorker{
		sink:          cfg.Sink,
		events:        make(chan models.ActivityEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Record enqueues an event without blocking. It reports false when the buffer is full.
func (w *ActivityWorker) Record(event models.ActivityEvent) bool {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case w.events <- event:
		return true
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		return false
	}
}

// Start begins the flush loop
func (w *ActivityWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("activity worker is already running")
	}
	w.running = true

	go w.loop(ctx)
	return nil
}

// Stop flushes buffered events and stops the loop
func (w *ActivityWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("activity worker is not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns how many events were flushed and dropped so far
func (w *ActivityWorker) Stats() (flushed, dropped int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed, w.dropped
}

func (w *ActivityWorker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]models.ActivityEvent, 0, w.batchSize)

	for {
		select {
		case event := <-w.events:
			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				batch = w.flush(ctx, batch)
			}

		case <-ticker.C:
			batch = w.flush(ctx, batch)

		case <-w.stopCh:
			w.drain(ctx, batch)
			return

		case <-ctx.Done():
			w.drain(context.Background(), batch)
			return
		}
	}
}

// drain flushes whatever is still buffered
func (w *ActivityWorker) drain(ctx context.Context, batch []models.ActivityEvent) {
	for {
		select {
		case event := <-w.events:
			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				batch = w.flush(ctx, batch)
			}
		default:
			w.flush(ctx, batch)
			return
		}
	}
}

func (w *ActivityWorker) flush(ctx context.Context, batch []models.ActivityEvent) []models.ActivityEvent {
	if len(batch) == 0 {
		return batch
	}

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.sink.RecordBatch(flushCtx, batch); err != nil {
		logging.WithError(err).WithField("events", len(batch)).Warn("Failed to flush activity events")
		w.mu.Lock()
		w.dropped += int64(len(batch))
		w.mu.Unlock()
	} else {
		w.mu.Lock()
		w.flushed += int64(len(batch))
		w.mu.Unlock()
	}

	return batch[:0]
}
