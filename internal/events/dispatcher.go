package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned by Dispatcher.Publish when the buffer is full.
var ErrQueueFull = errors.New("event queue full")

// ErrDispatcherClosed is returned by Publish after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher decouples decision handling from a slow Publisher: Publish
// enqueues and returns, one worker drains the queue in order.
type Dispatcher struct {
	next    Publisher
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan DecisionEvent
	done   chan struct{}
}

// NewDispatcher starts the worker. size bounds the queue.
func NewDispatcher(next Publisher, size int) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	d := &Dispatcher{
		next:    next,
		timeout: 30 * time.Second,
		queue:   make(chan DecisionEvent, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, ev DecisionEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Str("fingerprint", ev.Fingerprint).Msg("decision event not delivered")
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued events are handed to
// the next publisher or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
