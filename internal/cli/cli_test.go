package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/groovy/replicasync/internal/adapters/http"
	"github.com/groovy/replicasync/internal/adapters/memory"
	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
)

type emptySource struct{}

func (emptySource) FetchPage(context.Context, string, contracts.SyncQuery) (contracts.SyncPage, error) {
	return contracts.SyncPage{Pagination: contracts.NewPagination(1, 100, 0)}, nil
}

func (emptySource) FetchActiveIDs(context.Context, string) ([]string, error) {
	return []string{}, nil
}

func newAPI(t *testing.T) string {
	t.Helper()
	repos := memory.NewRepositories()
	engine := application.NewEngine(nil, emptySource{}, repos.Checkpoints, application.EngineConfig{},
		application.NewSongTarget("songs", "songs", repos.Songs))
	srv := httptest.NewServer(httpadapter.NewRouter(httpadapter.NewHandler(httpadapter.Dependencies{Engine: engine})))
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileThroughAPI(t *testing.T) {
	t.Parallel()
	api := newAPI(t)

	out, err := execute(t, "reconcile", "songs", "--full", "--api", api, "--format", "json")
	if err != nil {
		t.Fatalf("reconcile: %v (%s)", err, out)
	}
	var report application.RunReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if report.Target != "songs" || report.Mode != application.ModeFull || !report.Checkpointed {
		t.Fatalf("unexpected report: %+v", report)
	}

	out, err = execute(t, "status", "--api", api)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "songs") || !strings.Contains(out, "IDLE") || !strings.Contains(out, "checkpointed=true") {
		t.Fatalf("unexpected status output: %q", out)
	}
}

func TestReconcileUnknownTargetFails(t *testing.T) {
	t.Parallel()
	api := newAPI(t)
	if _, err := execute(t, "reconcile", "albums", "--api", api); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestPingThroughAPI(t *testing.T) {
	t.Parallel()
	api := newAPI(t)
	out, err := execute(t, "ping", "--api", api)
	if err != nil || strings.TrimSpace(out) != "ready" {
		t.Fatalf("unexpected ping result: %q err=%v", out, err)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, "status", "--format", "yaml"); err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Fatalf("expected invalid format error, got %v", err)
	}
}
