package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

type RabbitConfig struct {
	URL            string
	ExchangePrefix string
	Prefetch       int
	RetryDelay     time.Duration
}

// RabbitTransport declares one durable topic exchange per Topic and one
// durable queue per subscription bound to every routing key of it.
type RabbitTransport struct {
	logger *slog.Logger
	cfg    RabbitConfig
	conn   *amqp091.Connection

	pubMu     sync.Mutex
	pubCh     *amqp091.Channel
	exchanges map[contracts.Topic]bool

	wg sync.WaitGroup
}

func NewRabbitTransport(logger *slog.Logger, cfg RabbitConfig) (*RabbitTransport, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 16
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &RabbitTransport{
		logger:    logger,
		cfg:       cfg,
		conn:      conn,
		pubCh:     ch,
		exchanges: map[contracts.Topic]bool{},
	}, nil
}

func (t *RabbitTransport) exchange(topic contracts.Topic) string {
	return t.cfg.ExchangePrefix + string(topic)
}

func declareExchange(ch *amqp091.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

func (t *RabbitTransport) Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) error {
	body, err := contracts.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	if !t.exchanges[topic] {
		if err := declareExchange(t.pubCh, t.exchange(topic)); err != nil {
			return err
		}
		t.exchanges[topic] = true
	}
	return t.pubCh.PublishWithContext(ctx, t.exchange(topic), string(env.EventType), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.EventID,
		Type:         string(env.EventType),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (t *RabbitTransport) Subscribe(ctx context.Context, topic contracts.Topic, subscription string, handler ports.MessageHandler) error {
	if subscription == "" {
		return fmt.Errorf("rabbitmq subscription requires a queue name")
	}
	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}
	exchange := t.exchange(topic)
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return err
	}
	if _, err := ch.QueueDeclare(subscription, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue %s: %w", subscription, err)
	}
	if err := ch.QueueBind(subscription, "#", exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue %s: %w", subscription, err)
	}
	deliveries, err := ch.Consume(subscription, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue %s: %w", subscription, err)
	}

	t.wg.Add(1)
	go t.consume(ctx, ch, deliveries, subscription, handler)
	return nil
}

func (t *RabbitTransport) consume(ctx context.Context, ch *amqp091.Channel, deliveries <-chan amqp091.Delivery, subscription string, handler ports.MessageHandler) {
	defer t.wg.Done()
	defer ch.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			t.process(ctx, d, subscription, handler)
		}
	}
}

func (t *RabbitTransport) process(ctx context.Context, d amqp091.Delivery, subscription string, handler ports.MessageHandler) {
	env, err := contracts.DecodeEnvelope(d.Body)
	if err != nil {
		t.logger.WarnContext(ctx, "undecodable message dropped",
			"module", "events.rabbitmq",
			"layer", "adapter",
			"operation", "decode",
			"outcome", "poison",
			"subscription", subscription,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}
	if handler(ctx, env) == ports.Ack {
		_ = d.Ack(false)
		return
	}
	t.logger.WarnContext(ctx, "message nacked, requeueing",
		"module", "events.rabbitmq",
		"layer", "adapter",
		"operation", "redeliver",
		"outcome", "retry",
		"subscription", subscription,
		"event_id", env.EventID,
		"redelivered", d.Redelivered,
	)
	select {
	case <-ctx.Done():
	case <-time.After(t.cfg.RetryDelay):
	}
	_ = d.Nack(false, true)
}

func (t *RabbitTransport) TestConnection(context.Context) bool {
	return t.conn != nil && !t.conn.IsClosed()
}

func (t *RabbitTransport) Close() error {
	var errs []error
	t.pubMu.Lock()
	if t.pubCh != nil {
		if err := t.pubCh.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
	}
	t.pubMu.Unlock()
	if err := t.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		errs = append(errs, err)
	}
	t.wg.Wait()
	return errors.Join(errs...)
}
