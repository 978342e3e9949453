package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	DefaultWorkers      = 4
	queueSlotsPerWorker = 16
)

var ErrBusClosed = errors.New("event bus is closed")

type Handler func(ctx context.Context, event Event) error

type delivery struct {
	ctx      context.Context
	event    Event
	handlers []Handler
}

// EventBus fans committed payment events out to subscribers. Publish hands
// events to a fixed set of workers; Close stops intake and waits for queued
// events to be handled.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	queue  chan delivery
	done   sync.WaitGroup
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger, workers int) *EventBus {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	b := &EventBus{
		handlers: make(map[string][]Handler),
		queue:    make(chan delivery, workers*queueSlotsPerWorker),
		logger:   logger,
	}
	b.done.Add(workers)
	for i := 0; i < workers; i++ {
		go b.work()
	}
	return b
}

func (b *EventBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("event handler registered",
		"event_type", eventType,
		"total_handlers", len(b.handlers[eventType]))
}

// Publish queues event for the subscribers registered at the time of the
// call. It blocks while the queue is full and fails once the bus is closed.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	handlers := b.subscribers(event.EventType())
	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event type", eventAttrs(event)...)
		return nil
	}

	select {
	case b.queue <- delivery{ctx: ctx, event: event, handlers: handlers}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue event %s: %w", event.EventID(), ctx.Err())
	}
}

// PublishSync runs every subscriber in the caller's goroutine and stops at
// the first error.
func (b *EventBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.subscribers(event.EventType())
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := b.run(ctx, event, h); err != nil {
			return fmt.Errorf("handler failed for event %s: %w", event.EventType(), err)
		}
	}
	return nil
}

// Close stops accepting events and waits until the queue is drained or ctx
// is done.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		b.done.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus closed with events still queued", "queued", len(b.queue))
		return ctx.Err()
	}
}

func (b *EventBus) subscribers(eventType string) []Handler {
	return append([]Handler(nil), b.handlers[eventType]...)
}

func (b *EventBus) work() {
	defer b.done.Done()
	for d := range b.queue {
		for _, h := range d.handlers {
			_ = b.run(d.ctx, d.event, h)
		}
	}
}

func (b *EventBus) run(ctx context.Context, event Event, h Handler) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("handler panic: %v", v)
		}
		if err != nil {
			b.logger.Error("event handler failed", append(eventAttrs(event), "error", err)...)
		}
	}()
	return h(ctx, event)
}

func eventAttrs(event Event) []any {
	attrs := []any{"event_type", event.EventType(), "event_id", event.EventID()}
	if p, ok := event.(*PaymentEvent); ok {
		attrs = append(attrs,
			"payment_id", p.PaymentID,
			"user_id", p.UserID,
			"external_id", p.ExternalID)
	}
	return attrs
}
