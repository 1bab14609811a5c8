package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func TestPublishDropsOnTransportFailure(t *testing.T) {
	t.Parallel()
	transport := &recordingTransport{err: domain.ErrDependencyUnavailable}
	var (
		mu     sync.Mutex
		failed []contracts.Envelope
	)
	publisher := application.NewPublisher(transport, nil, application.WithErrorSink(func(_ contracts.Topic, env contracts.Envelope, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !errors.Is(err, domain.ErrDependencyUnavailable) {
			t.Errorf("unexpected sink error: %v", err)
		}
		failed = append(failed, env)
	}))

	env := mustEnvelope(contracts.SongCreated, "s1", contracts.SongPayload{ID: "s1", Title: "One"})
	if got := publisher.Publish(context.Background(), contracts.TopicSongEvents, env); got != application.Dropped {
		t.Fatalf("expected dropped outcome, got %v", got)
	}
	if len(failed) != 1 || failed[0].EventID != env.EventID {
		t.Fatalf("expected failure reported to sink, got %+v", failed)
	}
}

func TestPublishHandsEnvelopeToTransport(t *testing.T) {
	t.Parallel()
	transport := &recordingTransport{}
	publisher := application.NewPublisher(transport, nil)

	env := mustEnvelope(contracts.UserCreated, "u1", contracts.UserPayload{ID: "u1"})
	if got := publisher.Publish(context.Background(), contracts.TopicUserEvents, env); got != application.Published {
		t.Fatalf("expected published outcome, got %v", got)
	}
	messages := transport.Messages()
	if len(messages) != 1 || messages[0].topic != contracts.TopicUserEvents || messages[0].env.EventID != env.EventID {
		t.Fatalf("unexpected transport messages: %+v", messages)
	}
}

func TestEmitSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()
	transport := &recordingTransport{}
	publisher := application.NewPublisher(transport, nil, application.WithPublishTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	publisher.Emit(ctx, mustEnvelope(contracts.SongLiked, "s1", contracts.SongReaction{SongID: "s1", UserID: "u1"}))
	cancel()
	publisher.Wait()

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(messages))
	}
	if messages[0].topic != contracts.TopicPreferencesAndAnalyticsEvents {
		t.Fatalf("unexpected topic: %s", messages[0].topic)
	}
}

func TestEmitDropsUnregisteredEventType(t *testing.T) {
	t.Parallel()
	transport := &recordingTransport{}
	publisher := application.NewPublisher(transport, nil)

	publisher.Emit(context.Background(), contracts.Envelope{EventType: "PLAYLIST_CREATED", EventID: "x"})
	publisher.Wait()

	if got := len(transport.Messages()); got != 0 {
		t.Fatalf("expected nothing published, got %d", got)
	}
}
