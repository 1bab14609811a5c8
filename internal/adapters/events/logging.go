package events

import (
	"context"
	"log/slog"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

// LoggingTransport records publications in the log and never delivers.
type LoggingTransport struct {
	logger *slog.Logger
}

func NewLoggingTransport(logger *slog.Logger) *LoggingTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTransport{logger: logger}
}

func (t *LoggingTransport) Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) error {
	t.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"topic", topic,
		"event_type", env.EventType,
		"event_id", env.EventID,
		"partition_key", env.Metadata.SubjectID,
		"payload_bytes", len(env.Data),
	)
	return nil
}

func (t *LoggingTransport) Subscribe(ctx context.Context, topic contracts.Topic, subscription string, _ ports.MessageHandler) error {
	t.logger.InfoContext(ctx, "subscription idle on logging transport",
		"module", "events.logging",
		"layer", "adapter",
		"operation", "subscribe",
		"outcome", "noop",
		"topic", topic,
		"subscription", subscription,
	)
	return nil
}

func (t *LoggingTransport) TestConnection(context.Context) bool { return true }

func (t *LoggingTransport) Close() error { return nil }
