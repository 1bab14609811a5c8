package events

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

var (
	errNacked          = errors.New("message nacked")
	errTransportClosed = errors.New("transport closed")
)

type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	// redelivery continues until the handler acks or the consumer stops.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// deliverUntilAck hands env to handler until it acks. It returns only the
// context error when the consumer is stopping.
func deliverUntilAck(ctx context.Context, policy RetryPolicy, handler ports.MessageHandler, env contracts.Envelope, onNack func(env contracts.Envelope, attempt int, wait time.Duration)) error {
	attempt := 0
	op := func() error {
		attempt++
		if handler(ctx, env) == ports.Ack {
			return nil
		}
		return errNacked
	}
	notify := func(_ error, wait time.Duration) {
		if onNack != nil {
			onNack(env, attempt, wait)
		}
	}
	return backoff.RetryNotify(op, backoff.WithContext(policy.backOff(), ctx), notify)
}
