package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

type PublishOutcome int

const (
	Published PublishOutcome = iota
	Dropped
)

// ErrorSink observes publications the transport refused.
type ErrorSink func(topic contracts.Topic, env contracts.Envelope, err error)

// Publisher hands envelopes to the transport. A failed publication is
// logged and dropped: the domain write already committed and
// reconciliation repairs the replicas that missed the event.
type Publisher struct {
	transport ports.Transport
	logger    *slog.Logger
	timeout   time.Duration
	sink      ErrorSink
	wg        sync.WaitGroup
}

type PublisherOption func(*Publisher)

func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithErrorSink(sink ErrorSink) PublisherOption {
	return func(p *Publisher) { p.sink = sink }
}

func NewPublisher(transport ports.Transport, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		transport: transport,
		logger:    loggerOrDefault(logger),
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) PublishOutcome {
	if err := p.transport.Publish(ctx, topic, env); err != nil {
		p.logger.ErrorContext(ctx, "event publish failed",
			"module", "events.publisher",
			"layer", "application",
			"operation", "publish",
			"outcome", "failure",
			"topic", topic,
			"event_type", env.EventType,
			"event_id", env.EventID,
			"error", err,
		)
		if p.sink != nil {
			p.sink(topic, env, err)
		}
		return Dropped
	}
	p.logger.DebugContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "application",
		"operation", "publish",
		"outcome", "success",
		"topic", topic,
		"event_type", env.EventType,
		"event_id", env.EventID,
	)
	return Published
}

// Go publishes in the background. The caller's cancellation does not
// reach the publication; it is bounded by the publish timeout instead.
func (p *Publisher) Go(ctx context.Context, topic contracts.Topic, env contracts.Envelope) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		p.Publish(pubCtx, topic, env)
	}()
}

func (p *Publisher) Emit(ctx context.Context, env contracts.Envelope) {
	topic, ok := contracts.TopicFor(env.EventType)
	if !ok {
		p.logger.WarnContext(ctx, "no topic registered for event type",
			"module", "events.publisher",
			"layer", "application",
			"operation", "emit",
			"outcome", "dropped",
			"event_type", env.EventType,
		)
		return
	}
	p.Go(ctx, topic, env)
}

// Wait blocks until every background publication has finished.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
