// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler consumes events. Handlers run on the bus dispatcher and should return quickly.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
	once     sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.eventBus.unsubscribe(s.id, s.typ) })
}

// TradeHandler adapts a closed-trade callback, ignoring other events.
func TradeHandler(fn func(ctx context.Context, e PositionClosedEvent) error) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		if e, ok := event.(PositionClosedEvent); ok {
			return fn(ctx, e)
		}
		return nil
	})
}
