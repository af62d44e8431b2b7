package events

import (
	"context"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

// Bus carries events between the process that produced them and the hubs
// holding subscriptions. It satisfies domain.Publisher.
type Bus interface {
	Publish(ctx context.Context, ev domain.Event) error
	// StartForwarder delivers every bus message to onEvent until ctx ends.
	StartForwarder(ctx context.Context, onEvent func(domain.Event)) error
	Close() error
}

// LocalBus delivers in-process only; enough for a single API instance.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, ev domain.Event) error {
	b.hub.Broadcast(ev)
	return nil
}

// StartForwarder is a no-op: Publish already reaches the hub.
func (b *LocalBus) StartForwarder(context.Context, func(domain.Event)) error { return nil }

func (b *LocalBus) Close() error { return nil }
