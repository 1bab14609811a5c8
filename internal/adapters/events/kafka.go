package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

type KafkaConfig struct {
	Brokers      []string
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// KafkaTransport maps a subscription to a consumer group. Kafka has no
// per-message negative acknowledgement, so a nacked envelope is handed to
// the handler again in-process with exponential backoff and its offset is
// committed only once the handler acks.
type KafkaTransport struct {
	logger  *slog.Logger
	brokers []string
	writer  *kafka.Writer
	retry   RetryPolicy
	closed  atomic.Bool

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewKafkaTransport(logger *slog.Logger, cfg KafkaConfig) (*KafkaTransport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka transport requires at least one broker")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaTransport{
		logger:  logger,
		brokers: cfg.Brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		retry: RetryPolicy{Initial: cfg.RetryInitial, Max: cfg.RetryMax},
	}, nil
}

func (t *KafkaTransport) Publish(ctx context.Context, topic contracts.Topic, env contracts.Envelope) error {
	payload, err := contracts.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(ctx, kafka.Message{
		Topic: string(topic),
		Key:   []byte(env.Metadata.SubjectID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(env.EventType)},
			{Key: "eventId", Value: []byte(env.EventID)},
		},
	})
}

func (t *KafkaTransport) Subscribe(ctx context.Context, topic contracts.Topic, subscription string, handler ports.MessageHandler) error {
	if subscription == "" {
		return fmt.Errorf("kafka subscription requires a group id")
	}
	if t.closed.Load() {
		return errTransportClosed
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.brokers,
		GroupID:  subscription,
		Topic:    string(topic),
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	t.mu.Lock()
	t.readers = append(t.readers, reader)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.consume(ctx, reader, topic, subscription, handler)
	return nil
}

func (t *KafkaTransport) consume(ctx context.Context, reader *kafka.Reader, topic contracts.Topic, subscription string, handler ports.MessageHandler) {
	defer t.wg.Done()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || t.closed.Load() {
				return
			}
			t.logger.WarnContext(ctx, "kafka fetch failed",
				"module", "events.kafka",
				"layer", "adapter",
				"operation", "fetch",
				"outcome", "failure",
				"topic", topic,
				"subscription", subscription,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		env, err := contracts.DecodeEnvelope(msg.Value)
		if err != nil {
			t.logger.WarnContext(ctx, "undecodable message skipped",
				"module", "events.kafka",
				"layer", "adapter",
				"operation", "decode",
				"outcome", "poison",
				"topic", topic,
				"subscription", subscription,
				"offset", msg.Offset,
				"error", err,
			)
		} else if err := deliverUntilAck(ctx, t.retry, handler, env, t.logNack(ctx, subscription)); err != nil {
			// shutting down: leave the offset uncommitted for redelivery.
			return
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			t.logger.WarnContext(ctx, "kafka commit failed",
				"module", "events.kafka",
				"layer", "adapter",
				"operation", "commit",
				"outcome", "failure",
				"subscription", subscription,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (t *KafkaTransport) logNack(ctx context.Context, subscription string) func(env contracts.Envelope, attempt int, wait time.Duration) {
	return func(env contracts.Envelope, attempt int, wait time.Duration) {
		t.logger.WarnContext(ctx, "message nacked, redelivering",
			"module", "events.kafka",
			"layer", "adapter",
			"operation", "redeliver",
			"outcome", "retry",
			"subscription", subscription,
			"event_id", env.EventID,
			"attempt", attempt,
			"wait", wait.String(),
		)
	}
}

func (t *KafkaTransport) TestConnection(ctx context.Context) bool {
	for _, broker := range t.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return true
		}
	}
	return false
}

func (t *KafkaTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	t.mu.Lock()
	for _, reader := range t.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.mu.Unlock()
	t.wg.Wait()
	if err := t.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
