package ports

import (
	"context"

	"github.com/groovy/replicasync/internal/contracts"
)

type Outcome int

const (
	Ack Outcome = iota
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

type MessageHandler func(ctx context.Context, env contracts.Envelope) Outcome

// Transport is the process-scoped event transport client. Subscribe
// registers a durable subscription and starts delivery in the background
// until ctx is done or the transport is closed.
type Transport interface {
	Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) error
	Subscribe(ctx context.Context, topic contracts.Topic, subscription string, handler MessageHandler) error
	TestConnection(ctx context.Context) bool
	Close() error
}
