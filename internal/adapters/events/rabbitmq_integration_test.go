package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/ports"
)

func runRabbitMQ(t *testing.T) string {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker/container runtime unavailable: %v", r)
		}
	}()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("rabbitmq container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestRabbitTransportRequeuesNackedMessages(t *testing.T) {
	url := runRabbitMQ(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var transport *RabbitTransport
	var err error
	deadline := time.Now().Add(30 * time.Second)
	for {
		transport, err = NewRabbitTransport(discardLogger(), RabbitConfig{URL: url, RetryDelay: 10 * time.Millisecond})
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect rabbitmq: %v", err)
	}
	defer transport.Close()

	var attempts atomic.Int32
	acked := make(chan contracts.Envelope, 1)
	err = transport.Subscribe(ctx, contracts.TopicUserEvents, contracts.SubscriptionName("search", contracts.TopicUserEvents), func(_ context.Context, env contracts.Envelope) ports.Outcome {
		if attempts.Add(1) == 1 {
			return ports.Nack
		}
		acked <- env
		return ports.Ack
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !transport.TestConnection(ctx) {
		t.Fatalf("expected healthy connection")
	}

	env := envelope(t, contracts.UserDeleted, "u1", contracts.UserRef{ID: "u1"})
	if err := transport.Publish(ctx, contracts.TopicUserEvents, env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-acked:
		if got.EventID != env.EventID || got.EventType != contracts.UserDeleted {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("message was not redelivered")
	}
	if attempts.Load() < 2 {
		t.Fatalf("expected redelivery after nack, attempts=%d", attempts.Load())
	}
}
