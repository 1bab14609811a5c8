package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/groovy/replicasync/internal/adapters/memory"
	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func newUserEngine(src *pagedSource, repos *memory.Repositories, clk *clock) *application.Engine {
	return application.NewEngine(nil, src, repos.Checkpoints, application.EngineConfig{PageSize: contracts.DefaultSyncPageSize, Clock: clk.Now},
		application.NewUserTarget("users", "users", repos.Users),
	)
}

func TestFullRunFetchesEveryPage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		items    int
		requests int
		writes   int
	}{
		{items: 0, requests: 1, writes: 0},
		{items: 1, requests: 1, writes: 1},
		{items: 100, requests: 1, writes: 1},
		{items: 101, requests: 2, writes: 2},
		{items: 250, requests: 3, writes: 3},
	}
	for _, tc := range cases {
		src := newUserSource(tc.items)
		repos := memory.NewRepositories()
		engine := newUserEngine(src, repos, newClock(at(500)))

		report, err := engine.RunFull(context.Background(), "users")
		if err != nil {
			t.Fatalf("items=%d: run full: %v", tc.items, err)
		}
		calls := src.Calls()
		if len(calls) != tc.requests || report.Pages != tc.requests {
			t.Fatalf("items=%d: expected %d page requests, got calls=%d pages=%d", tc.items, tc.requests, len(calls), report.Pages)
		}
		for i, call := range calls {
			if call.Page != i+1 || call.Limit != 100 || call.Since != nil {
				t.Fatalf("items=%d: unexpected query %d: %+v", tc.items, i, call)
			}
		}
		if got := repos.Users.BulkWrites(); got != tc.writes {
			t.Fatalf("items=%d: expected %d bulk writes, got %d", tc.items, tc.writes, got)
		}
		ids, _ := repos.Users.ListIDs(context.Background())
		if len(ids) != tc.items || report.Upserted != tc.items {
			t.Fatalf("items=%d: expected every item replicated, got ids=%d upserted=%d", tc.items, len(ids), report.Upserted)
		}
		checkpoint, err := repos.Checkpoints.Get(context.Background(), "users")
		if err != nil || !checkpoint.LastSyncAt.Equal(at(500)) {
			t.Fatalf("items=%d: expected checkpoint at run start, got %+v err=%v", tc.items, checkpoint, err)
		}
	}
}

func TestRunPrunesOrphans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(3)
	repos := memory.NewRepositories()
	if err := repos.Users.BulkUpsert(ctx, []domain.User{{ID: "u001"}, {ID: "gone-1"}, {ID: "gone-2"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	engine := newUserEngine(src, repos, newClock(at(10)))

	report, err := engine.RunFull(ctx, "users")
	if err != nil {
		t.Fatalf("run full: %v", err)
	}
	if report.Deleted != 2 {
		t.Fatalf("expected 2 orphans deleted, got %d", report.Deleted)
	}
	ids, _ := repos.Users.ListIDs(ctx)
	want := []string{"u001", "u002", "u003"}
	if len(ids) != len(want) {
		t.Fatalf("unexpected ids: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected ids: %v", ids)
		}
	}
}

func TestEmptyRemoteIDSetPrunesEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(0)
	repos := memory.NewRepositories()
	_ = repos.Users.BulkUpsert(ctx, []domain.User{{ID: "a"}, {ID: "b"}})
	engine := newUserEngine(src, repos, newClock(at(10)))

	if _, err := engine.RunFull(ctx, "users"); err != nil {
		t.Fatalf("run full: %v", err)
	}
	if ids, _ := repos.Users.ListIDs(ctx); len(ids) != 0 {
		t.Fatalf("expected all local records pruned, got %v", ids)
	}
}

func TestFailedRunKeepsCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(150)
	src.failPage = 2
	repos := memory.NewRepositories()
	_ = repos.Checkpoints.Save(ctx, domain.Checkpoint{Type: "users", LastSyncAt: at(90)})
	engine := newUserEngine(src, repos, newClock(at(200)))

	report, err := engine.RunIncremental(ctx, "users")
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency failure, got %v", err)
	}
	if report.Checkpointed {
		t.Fatalf("failed run must not checkpoint")
	}
	checkpoint, err := repos.Checkpoints.Get(ctx, "users")
	if err != nil || !checkpoint.LastSyncAt.Equal(at(90)) {
		t.Fatalf("expected checkpoint untouched, got %+v err=%v", checkpoint, err)
	}
	status, err := engine.Status("users")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != application.StateIdle || status.LastError == "" {
		t.Fatalf("unexpected status after failure: %+v", status)
	}
}

func TestFailedFullRunLeavesNoCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(150)
	src.failPage = 2
	repos := memory.NewRepositories()
	_ = repos.Checkpoints.Save(ctx, domain.Checkpoint{Type: "users", LastSyncAt: at(90)})
	engine := newUserEngine(src, repos, newClock(at(200)))

	if _, err := engine.RunFull(ctx, "users"); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err := repos.Checkpoints.Get(ctx, "users"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected checkpoint reset by full run, got %v", err)
	}
}

func TestIncrementalRunUsesCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(5)
	repos := memory.NewRepositories()
	_ = repos.Checkpoints.Save(ctx, domain.Checkpoint{Type: "users", LastSyncAt: at(90)})
	engine := newUserEngine(src, repos, newClock(at(200)))

	report, err := engine.RunIncremental(ctx, "users")
	if err != nil {
		t.Fatalf("run incremental: %v", err)
	}
	calls := src.Calls()
	if len(calls) != 1 || calls[0].Since == nil || !calls[0].Since.Equal(at(90)) {
		t.Fatalf("expected since from checkpoint, got %+v", calls)
	}
	if report.Since == nil || !report.Since.Equal(at(90)) || report.Upserted != 5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	checkpoint, _ := repos.Checkpoints.Get(ctx, "users")
	if !checkpoint.LastSyncAt.Equal(at(200)) {
		t.Fatalf("expected checkpoint advanced to run start, got %s", checkpoint.LastSyncAt)
	}
}

func TestIncrementalRunWithoutCheckpointOnlyPrunes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(2)
	repos := memory.NewRepositories()
	_ = repos.Users.BulkUpsert(ctx, []domain.User{{ID: "u001"}, {ID: "orphan"}})
	engine := newUserEngine(src, repos, newClock(at(200)))

	report, err := engine.RunIncremental(ctx, "users")
	if err != nil {
		t.Fatalf("run incremental: %v", err)
	}
	if calls := src.Calls(); len(calls) != 0 {
		t.Fatalf("expected no page requests, got %d", len(calls))
	}
	if report.Deleted != 1 || report.Checkpointed {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := repos.Checkpoints.Get(ctx, "users"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no checkpoint created, got %v", err)
	}
	if _, err := repos.Users.GetByID(ctx, "u002"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no pull without checkpoint, got %v", err)
	}
}

func TestMalformedItemsAreSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newUserSource(2)
	src.items = append(src.items, json.RawMessage(`{"_id":""}`), json.RawMessage(`[1,2]`))
	repos := memory.NewRepositories()
	engine := newUserEngine(src, repos, newClock(at(1)))

	report, err := engine.RunFull(ctx, "users")
	if err != nil {
		t.Fatalf("run full: %v", err)
	}
	if report.Upserted != 2 || report.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestUnknownTargetIsNotFound(t *testing.T) {
	t.Parallel()
	engine := newUserEngine(newUserSource(0), memory.NewRepositories(), newClock(at(1)))

	if _, err := engine.RunIncremental(context.Background(), "playlists"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := engine.Status("playlists"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found status, got %v", err)
	}
}

// An update whose event never arrived is repaired by the next incremental
// run, and the watermark moves to that run's start.
func TestLostEventConvergesOnNextIncrementalRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ownerClock := newClock(at(50))
	owner := memory.NewRepositories()
	catalog := application.NewCatalog(application.Config{ServiceName: "songs", Clock: ownerClock.Now}, owner.Catalog, nil, nil)
	if _, err := catalog.CreateSong(ctx, domain.Song{ID: "s1", Title: "Draft", ArtistName: "A"}); err != nil {
		t.Fatalf("create song: %v", err)
	}

	replica := memory.NewRepositories()
	_ = replica.Songs.BulkUpsert(ctx, []domain.Song{{ID: "s1", Title: "Draft", ArtistName: "A", UpdatedAt: at(50)}})
	_ = replica.Checkpoints.Save(ctx, domain.Checkpoint{Type: "songs", LastSyncAt: at(90)})

	ownerClock.Set(at(100))
	if _, err := catalog.UpdateSong(ctx, "s1", domain.SongPatch{Title: ptr("Final")}); err != nil {
		t.Fatalf("update song: %v", err)
	}

	engine := application.NewEngine(nil, catalogSource{catalog: catalog}, replica.Checkpoints,
		application.EngineConfig{Clock: newClock(at(200)).Now},
		application.NewSongTarget("songs", "songs", replica.Songs),
	)
	report, err := engine.RunIncremental(ctx, "songs")
	if err != nil {
		t.Fatalf("run incremental: %v", err)
	}
	if report.Upserted != 1 {
		t.Fatalf("expected the changed song fetched, got %+v", report)
	}
	song, _ := replica.Songs.GetByID(ctx, "s1")
	if song.Title != "Final" {
		t.Fatalf("expected replica converged, got %q", song.Title)
	}
	checkpoint, _ := replica.Checkpoints.Get(ctx, "songs")
	if !checkpoint.LastSyncAt.Equal(at(200)) {
		t.Fatalf("expected checkpoint at run start, got %s", checkpoint.LastSyncAt)
	}
}

func TestStatusReportsLastRun(t *testing.T) {
	t.Parallel()
	engine := newUserEngine(newUserSource(3), memory.NewRepositories(), newClock(at(7)))

	status, err := engine.Status("users")
	if err != nil || status.State != application.StateIdle || status.LastReport != nil {
		t.Fatalf("unexpected initial status: %+v err=%v", status, err)
	}
	if _, err := engine.RunFull(context.Background(), "users"); err != nil {
		t.Fatalf("run full: %v", err)
	}
	status, _ = engine.Status("users")
	if status.LastReport == nil || status.LastReport.Mode != application.ModeFull || status.LastReport.Upserted != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if names := engine.Targets(); len(names) != 1 || names[0] != "users" {
		t.Fatalf("unexpected targets: %v", names)
	}
}

// racingSource creates a replica record while the id list is in flight, as
// a live USER_CREATED event would.
type racingSource struct {
	*pagedSource
	users *memory.UserReplicaRepository
}

func (s racingSource) FetchActiveIDs(ctx context.Context, resource string) ([]string, error) {
	if err := s.users.Insert(ctx, domain.User{ID: "u-live"}); err != nil {
		return nil, err
	}
	return s.pagedSource.FetchActiveIDs(ctx, resource)
}

func TestPruneKeepsRecordsCreatedDuringIDFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := memory.NewRepositories()
	src := racingSource{pagedSource: newUserSource(2), users: repos.Users}
	engine := application.NewEngine(nil, src, repos.Checkpoints, application.EngineConfig{Clock: newClock(at(5)).Now},
		application.NewUserTarget("users", "users", repos.Users),
	)

	report, err := engine.RunFull(ctx, "users")
	if err != nil {
		t.Fatalf("run full: %v", err)
	}
	if report.Deleted != 0 {
		t.Fatalf("expected nothing pruned, got %d", report.Deleted)
	}
	if _, err := repos.Users.GetByID(ctx, "u-live"); err != nil {
		t.Fatalf("record created during the id fetch was pruned: %v", err)
	}
}

func TestHasCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := memory.NewRepositories()
	engine := newUserEngine(newUserSource(1), repos, newClock(at(1)))

	if ok, err := engine.HasCheckpoint(ctx, "users"); err != nil || ok {
		t.Fatalf("expected no checkpoint, got ok=%v err=%v", ok, err)
	}
	if _, err := engine.RunFull(ctx, "users"); err != nil {
		t.Fatalf("run full: %v", err)
	}
	if ok, err := engine.HasCheckpoint(ctx, "users"); err != nil || !ok {
		t.Fatalf("expected checkpoint after full run, got ok=%v err=%v", ok, err)
	}
	if _, err := engine.HasCheckpoint(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown target, got %v", err)
	}
}
