package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/estrella/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.ActivityEvent
	err     error
}

func (s *recordingSink) RecordBatch(ctx context.Context, events []models.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]models.ActivityEvent, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestNewActivityWorker_RequiresSink(t *testing.T) {
	_, err := NewActivityWorker(&ActivityWorkerConfig{})
	assert.Error(t, err)
}

func TestActivityWorker_FlushesOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	w, err := NewActivityWorker(&ActivityWorkerConfig{Sink: sink, BatchSize: 3, FlushInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i := 0; i < 3; i++ {
		assert.True(t, w.Record(models.ActivityEvent{UserID: "u1", Day: "2026-01-01", Kind: models.ActivityMessageSent, Amount: 1}))
	}

	assert.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))
}

func TestActivityWorker_StopDrainsBuffer(t *testing.T) {
	sink := &recordingSink{}
	w, err := NewActivityWorker(&ActivityWorkerConfig{Sink: sink, BatchSize: 100, FlushInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i := 0; i < 5; i++ {
		w.Record(models.ActivityEvent{UserID: "u1", Day: "2026-01-01", Kind: models.ActivityBeerSent, Amount: 10})
	}
	require.NoError(t, w.Stop(context.Background()))

	assert.Equal(t, 5, sink.total())
	flushed, dropped := w.Stats()
	assert.Equal(t, int64(5), flushed)
	assert.Equal(t, int64(0), dropped)
}

func TestActivityWorker_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	w, err := NewActivityWorker(&ActivityWorkerConfig{Sink: sink, BufferSize: 2})
	require.NoError(t, err)

	assert.True(t, w.Record(models.ActivityEvent{UserID: "u1"}))
	assert.True(t, w.Record(models.ActivityEvent{UserID: "u1"}))
	assert.False(t, w.Record(models.ActivityEvent{UserID: "u1"}))

	_, dropped := w.Stats()
	assert.Equal(t, int64(1), dropped)
}

func TestActivityWorker_SinkFailureCountsAsDropped(t *testing.T) {
	sink := &recordingSink{err: errors.New("clickhouse down")}
	w, err := NewActivityWorker(&ActivityWorkerConfig{Sink: sink, FlushInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Record(models.ActivityEvent{UserID: "u1"})
	require.NoError(t, w.Stop(context.Background()))

	flushed, dropped := w.Stats()
	assert.Equal(t, int64(0), flushed)
	assert.Equal(t, int64(1), dropped)
}

func TestActivityWorker_DoubleStart(t *testing.T) {
	w, err := NewActivityWorker(&ActivityWorkerConfig{Sink: &recordingSink{}})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	assert.Error(t, w.Stop(context.Background()))
}
