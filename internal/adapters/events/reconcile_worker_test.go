package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/groovy/replicasync/internal/adapters/memory"
	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
)

type staticSource struct {
	items []json.RawMessage
	ids   []string
}

func (s staticSource) FetchPage(_ context.Context, _ string, query contracts.SyncQuery) (contracts.SyncPage, error) {
	return contracts.SyncPage{Items: s.items, Pagination: contracts.NewPagination(query.Page, query.Limit, int64(len(s.items)))}, nil
}

func (s staticSource) FetchActiveIDs(context.Context, string) ([]string, error) {
	return s.ids, nil
}

func TestReconcileWorkerSchedulesModes(t *testing.T) {
	t.Parallel()
	raw, _ := json.Marshal(contracts.UserPayload{ID: "u1", Email: "u1@example.com"})
	repos := memory.NewRepositories()
	engine := application.NewEngine(discardLogger(), staticSource{items: []json.RawMessage{raw}, ids: []string{"u1"}}, repos.Checkpoints,
		application.EngineConfig{},
		application.NewUserTarget("users", "users", repos.Users),
	)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	worker := NewReconcileWorker(discardLogger(), engine, ReconcileSchedule{Interval: time.Minute, FullInterval: time.Hour})
	worker.nowFn = func() time.Time { return now }
	worker.lastFull = now

	// no checkpoint yet: the first tick seeds the target with a full run.
	worker.processOnce(context.Background())
	status, _ := engine.Status("users")
	if status.LastReport == nil || status.LastReport.Mode != application.ModeFull {
		t.Fatalf("expected seeding full run, got %+v", status.LastReport)
	}
	if _, err := repos.Users.GetByID(context.Background(), "u1"); err != nil {
		t.Fatalf("expected user pulled by seeding run: %v", err)
	}
	if _, err := repos.Checkpoints.Get(context.Background(), "users"); err != nil {
		t.Fatalf("expected checkpoint after seeding run: %v", err)
	}

	now = now.Add(time.Minute)
	worker.processOnce(context.Background())
	status, _ = engine.Status("users")
	if status.LastReport == nil || status.LastReport.Mode != application.ModeIncremental {
		t.Fatalf("expected incremental run once seeded, got %+v", status.LastReport)
	}

	now = now.Add(time.Hour)
	worker.processOnce(context.Background())
	status, _ = engine.Status("users")
	if status.LastReport == nil || status.LastReport.Mode != application.ModeFull {
		t.Fatalf("expected full run after full interval, got %+v", status.LastReport)
	}
	if !worker.lastFull.Equal(now) {
		t.Fatalf("expected full run time recorded")
	}
}
