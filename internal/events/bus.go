// internal/events/bus.go
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes events of a single type. It should not block.
type Handler func(ctx context.Context, event Event) error

// Subscription undoes a Subscribe call.
type Subscription struct {
	id  string
	typ Type
	bus *Bus
}

// Unsubscribe removes the handler from the bus.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}

// Bus is a small in-memory pub/sub used to decouple the trading core from
// anything that merely observes it (metrics, the session trail, the summary).
// Delivery is asynchronous; a full buffer drops the event rather than
// blocking the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type]map[string]Handler

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewBus creates a bus with the given delivery buffer and starts the
// dispatch loop.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers: make(map[Type]map[string]Handler),
		events:   make(chan Event, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("event_bus"),
	}

	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Subscribe registers handler for events of type t.
func (b *Bus) Subscribe(t Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[string]Handler)
	}
	b.handlers[t][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(t)),
		zap.String("subscription_id", id))

	return &Subscription{id: id, typ: t, bus: b}
}

// Publish queues event for delivery. Events published while the buffer is
// full are dropped with a warning.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is shut down")
	case b.events <- event:
		return nil
	default:
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("event_type", string(event.Type())))
		return fmt.Errorf("event buffer full")
	}
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			for {
				select {
				case event := <-b.events:
					b.deliver(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.events:
			b.deliver(b.ctx, event)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type()]))
	for _, h := range b.handlers[event.Type()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Error("Event handler failed",
				zap.String("event_type", string(event.Type())),
				zap.Error(err))
		}
	}
}

func (b *Bus) unsubscribe(id string, t Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[t]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, t)
		}
	}
}

// Shutdown stops the dispatch loop after draining queued events.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}
