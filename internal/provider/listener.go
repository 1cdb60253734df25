package provider

import (
	"context"

	"midgardFeed/internal/model"
)

// Listener consumes the event stream. Calls are synchronous and serial; an
// implementation must return quickly. It may call Pause on the provider that
// is delivering to it.
type Listener interface {
	ReceiveEvent(event model.DomainEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(event model.DomainEvent)

func (f ListenerFunc) ReceiveEvent(event model.DomainEvent) {
	f(event)
}

// MultiListener hands every event to each listener in order.
type MultiListener []Listener

func (m MultiListener) ReceiveEvent(event model.DomainEvent) {
	for _, listener := range m {
		if listener != nil {
			listener.ReceiveEvent(event)
		}
	}
}

// SnapshotSource returns the current pools and pages of recent actions.
type SnapshotSource interface {
	PoolState(ctx context.Context) ([]model.PoolState, error)
	Transactions(ctx context.Context, offset, limit int) (model.TxBatch, error)
}
