package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

type Subscription struct {
	Topic contracts.Topic
	Name  string
}

// Subscriptions derives this service's durable subscription per topic.
func Subscriptions(service string, topics []contracts.Topic) []Subscription {
	out := make([]Subscription, 0, len(topics))
	for _, topic := range topics {
		out = append(out, Subscription{Topic: topic, Name: contracts.SubscriptionName(service, topic)})
	}
	return out
}

type SubscriptionWorker struct {
	logger        *slog.Logger
	transport     ports.Transport
	dispatcher    *application.Dispatcher
	subscriptions []Subscription
}

func NewSubscriptionWorker(logger *slog.Logger, transport ports.Transport, dispatcher *application.Dispatcher, subscriptions []Subscription) *SubscriptionWorker {
	return &SubscriptionWorker{
		logger: logger, transport: transport, dispatcher: dispatcher, subscriptions: subscriptions,
	}
}

func (w *SubscriptionWorker) Run(ctx context.Context) error {
	for _, sub := range w.subscriptions {
		if !contracts.KnownTopic(string(sub.Topic)) {
			return fmt.Errorf("unknown topic %q", sub.Topic)
		}
		if err := w.transport.Subscribe(ctx, sub.Topic, sub.Name, w.dispatcher.OnMessage); err != nil {
			w.logger.ErrorContext(ctx, "subscription failed",
				"module", "events.subscription_worker",
				"layer", "adapter",
				"operation", "subscribe",
				"outcome", "failure",
				"topic", sub.Topic,
				"subscription", sub.Name,
				"error", err,
			)
			return fmt.Errorf("subscribe %s: %w", sub.Name, err)
		}
		w.logger.InfoContext(ctx, "subscription started",
			"module", "events.subscription_worker",
			"layer", "adapter",
			"operation", "subscribe",
			"outcome", "success",
			"topic", sub.Topic,
			"subscription", sub.Name,
		)
	}
	<-ctx.Done()
	return ctx.Err()
}
