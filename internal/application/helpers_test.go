package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/groovy/replicasync/internal/adapters/memory"
	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type published struct {
	topic contracts.Topic
	env   contracts.Envelope
}

type recordingTransport struct {
	mu       sync.Mutex
	err      error
	messages []published
}

func (t *recordingTransport) Publish(_ context.Context, topic contracts.Topic, env contracts.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.messages = append(t.messages, published{topic: topic, env: env})
	return nil
}

func (t *recordingTransport) Subscribe(context.Context, contracts.Topic, string, ports.MessageHandler) error {
	return nil
}

func (t *recordingTransport) TestConnection(context.Context) bool { return t.err == nil }

func (t *recordingTransport) Close() error { return nil }

func (t *recordingTransport) Messages() []published {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]published, len(t.messages))
	copy(out, t.messages)
	return out
}

type recordingEmitter struct {
	mu        sync.Mutex
	envelopes []contracts.Envelope
}

func (e *recordingEmitter) Emit(_ context.Context, env contracts.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envelopes = append(e.envelopes, env)
}

func (e *recordingEmitter) Envelopes() []contracts.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]contracts.Envelope, len(e.envelopes))
	copy(out, e.envelopes)
	return out
}

// pagedSource serves a fixed item set through the sync protocol.
type pagedSource struct {
	mu       sync.Mutex
	items    []json.RawMessage
	ids      []string
	failPage int
	calls    []contracts.SyncQuery
}

func newUserSource(n int) *pagedSource {
	src := &pagedSource{}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("u%03d", i)
		raw, _ := json.Marshal(contracts.UserPayload{ID: id, Email: id + "@example.com", DisplayName: "User " + id})
		src.items = append(src.items, raw)
		src.ids = append(src.ids, id)
	}
	return src
}

func (s *pagedSource) FetchPage(_ context.Context, _ string, query contracts.SyncQuery) (contracts.SyncPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, query)
	if s.failPage == query.Page {
		return contracts.SyncPage{}, fmt.Errorf("%w: remote unavailable", domain.ErrDependencyUnavailable)
	}
	start := (query.Page - 1) * query.Limit
	end := start + query.Limit
	if start > len(s.items) {
		start = len(s.items)
	}
	if end > len(s.items) {
		end = len(s.items)
	}
	return contracts.SyncPage{
		Items:      s.items[start:end],
		Pagination: contracts.NewPagination(query.Page, query.Limit, int64(len(s.items))),
	}, nil
}

func (s *pagedSource) FetchActiveIDs(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...), nil
}

func (s *pagedSource) Calls() []contracts.SyncQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.SyncQuery(nil), s.calls...)
}

// catalogSource reads a Catalog the way a replica reads the owner's
// sync endpoint.
type catalogSource struct {
	catalog *application.Catalog
}

func (s catalogSource) FetchPage(ctx context.Context, _ string, query contracts.SyncQuery) (contracts.SyncPage, error) {
	return s.catalog.SyncSongs(ctx, query)
}

func (s catalogSource) FetchActiveIDs(ctx context.Context, _ string) ([]string, error) {
	return s.catalog.SongIDs(ctx)
}

type unavailableUsers struct {
	*memory.UserReplicaRepository
}

func (unavailableUsers) Insert(context.Context, domain.User) error {
	return fmt.Errorf("%w: connection refused", domain.ErrStorageUnavailable)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(at time.Time) *clock {
	return &clock{now: at}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

func at(seconds int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
}

func mustEnvelope(eventType contracts.EventType, subject string, data any) contracts.Envelope {
	env, err := contracts.NewEnvelope(eventType, subject, data, contracts.Metadata{CorrelationID: "corr-1", Source: "test"})
	if err != nil {
		panic(err)
	}
	return env
}

func ptr[T any](v T) *T {
	return &v
}
