package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type HandlerFunc func(ctx context.Context, env contracts.Envelope) error

// Dispatcher routes envelopes from a subscription to the handler of their
// event type and decides between acknowledging and redelivery. Only errors
// other than malformed input or unknown types lead to a nack.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[contracts.EventType]HandlerFunc
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   loggerOrDefault(logger),
		handlers: make(map[contracts.EventType]HandlerFunc),
	}
}

func (d *Dispatcher) Register(eventType contracts.EventType, handler HandlerFunc) {
	d.handlers[eventType] = handler
}

func (d *Dispatcher) OnMessage(ctx context.Context, env contracts.Envelope) ports.Outcome {
	handler, ok := d.handlers[env.EventType]
	if !ok {
		d.logger.WarnContext(ctx, "unknown event type acknowledged",
			"module", "events.dispatcher",
			"layer", "application",
			"operation", "dispatch",
			"outcome", "ignored",
			"event_type", env.EventType,
			"event_id", env.EventID,
		)
		return ports.Ack
	}
	err := handler(ctx, env)
	switch {
	case err == nil:
		return ports.Ack
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownEvent):
		d.logger.WarnContext(ctx, "malformed event acknowledged",
			"module", "events.dispatcher",
			"layer", "application",
			"operation", "dispatch",
			"outcome", "poison",
			"event_type", env.EventType,
			"event_id", env.EventID,
			"error", err,
		)
		return ports.Ack
	default:
		d.logger.ErrorContext(ctx, "event handling failed, requesting redelivery",
			"module", "events.dispatcher",
			"layer", "application",
			"operation", "dispatch",
			"outcome", "failure",
			"event_type", env.EventType,
			"event_id", env.EventID,
			"correlation_id", env.Metadata.CorrelationID,
			"error", err,
		)
		return ports.Nack
	}
}
