package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

type memorySubscription struct {
	name    string
	handler ports.MessageHandler
}

// MemoryTransport delivers synchronously inside Publish to every
// subscription of the topic. A subscription name registered twice keeps
// the latest handler. Envelopes a handler never acks within MaxAttempts
// are parked and can be inspected with Undelivered.
type MemoryTransport struct {
	logger      *slog.Logger
	maxAttempts int

	mu          sync.Mutex
	subs        map[contracts.Topic][]memorySubscription
	undelivered []contracts.Envelope
	published   int
	closed      bool
}

func NewMemoryTransport(logger *slog.Logger, maxAttempts int) *MemoryTransport {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryTransport{
		logger:      logger,
		maxAttempts: maxAttempts,
		subs:        map[contracts.Topic][]memorySubscription{},
	}
}

func (t *MemoryTransport) Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	t.published++
	subs := slices.Clone(t.subs[topic])
	t.mu.Unlock()

	for _, sub := range subs {
		if t.deliver(ctx, sub, env) {
			continue
		}
		t.logger.WarnContext(ctx, "message parked after repeated nacks",
			"module", "events.memory",
			"layer", "adapter",
			"operation", "deliver",
			"outcome", "undelivered",
			"subscription", sub.name,
			"event_id", env.EventID,
		)
		t.mu.Lock()
		t.undelivered = append(t.undelivered, env)
		t.mu.Unlock()
	}
	return nil
}

func (t *MemoryTransport) deliver(ctx context.Context, sub memorySubscription, env contracts.Envelope) bool {
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if sub.handler(ctx, env) == ports.Ack {
			return true
		}
	}
	return false
}

func (t *MemoryTransport) Subscribe(_ context.Context, topic contracts.Topic, subscription string, handler ports.MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	subs := t.subs[topic]
	for i := range subs {
		if subs[i].name == subscription {
			subs[i].handler = handler
			return nil
		}
	}
	t.subs[topic] = append(subs, memorySubscription{name: subscription, handler: handler})
	return nil
}

func (t *MemoryTransport) TestConnection(context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *MemoryTransport) Undelivered() []contracts.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.undelivered)
}

func (t *MemoryTransport) Published() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}
