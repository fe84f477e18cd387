package events

import (
	"context"
	"sync"
	"time"

	"sak/internal/metrics"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
)

// ErrQueueFull is returned when an event cannot be buffered.
var ErrQueueFull = errors.New("event queue full")

var errQueueClosed = errors.New("event queue closed")

// Queue hands events to a Publisher from background workers so callers are
// not held up by slow sinks. Close drains what is buffered.
type Queue struct {
	next    Publisher
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics

	events chan domain.KYCStatusEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type QueueConfig struct {
	Size    int
	Workers int
	// Timeout bounds a single delivery to the wrapped publisher.
	Timeout time.Duration
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

func NewQueue(next Publisher, cfg QueueConfig) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NopMetrics()
	}

	q := &Queue{
		next:    next,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		events:  make(chan domain.KYCStatusEvent, cfg.Size),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Publish buffers the event. It never blocks; a full queue drops the event
// and reports ErrQueueFull.
func (q *Queue) Publish(_ context.Context, event domain.KYCStatusEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		q.metrics.EventDeliveries.With("sink", "queue", "result", "dropped").Add(1)
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for event := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.next.Publish(ctx, event); err != nil {
			q.logger.Warn("Status event delivery failed", map[string]interface{}{
				"event":  "kyc_event_delivery_failed",
				"type":   event.Event,
				"wallet": event.Wallet,
				"tier":   string(event.Tier),
				"error":  err.Error(),
			})
		}
		cancel()
	}
}

// Close stops accepting events and waits for buffered ones until ctx ends.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
