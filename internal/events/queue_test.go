package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"sak/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingPublisher holds every delivery until release is closed.
type blockingPublisher struct {
	release chan struct{}

	mu  sync.Mutex
	got []domain.KYCStatusEvent
}

func (p *blockingPublisher) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	p.got = append(p.got, event)
	p.mu.Unlock()
	return nil
}

func (p *blockingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestQueue_PublishDoesNotBlock(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	q := NewQueue(sink, QueueConfig{Size: 4, Workers: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Publish(context.Background(), testEvent()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, sink.count())

	close(sink.release)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 3, sink.count())
}

func TestQueue_FullDrops(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	q := NewQueue(sink, QueueConfig{Size: 1, Workers: 1})

	// One event is held by the worker, one fills the buffer.
	require.NoError(t, q.Publish(context.Background(), testEvent()))
	require.Eventually(t, func() bool { return len(q.events) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Publish(context.Background(), testEvent()))

	assert.ErrorIs(t, q.Publish(context.Background(), testEvent()), ErrQueueFull)

	close(sink.release)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestQueue_CloseRejectsAndTimesOut(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	q := NewQueue(sink, QueueConfig{Size: 2, Workers: 1, Timeout: time.Hour})
	require.NoError(t, q.Publish(context.Background(), testEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
	assert.Error(t, q.Publish(context.Background(), testEvent()))

	close(sink.release)
	require.NoError(t, q.Close(context.Background()))
}
