package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchPageSendsQueryAndDecodes(t *testing.T) {
	t.Parallel()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/users" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		raw, _ := contracts.EncodeSyncPage("users", contracts.SyncPage{
			Items:      []json.RawMessage{json.RawMessage(`{"_id":"u1"}`)},
			Pagination: contracts.NewPagination(2, 1, 3),
		})
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	client := New(discardLogger(), Config{Endpoints: map[string]string{"users": srv.URL + "/"}})
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	page, err := client.FetchPage(context.Background(), "users", contracts.SyncQuery{Page: 2, Limit: 1, Since: &since})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if gotQuery != "limit=1&page=2&since=2024-05-01T12%3A00%3A00Z" {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if len(page.Items) != 1 || page.Pagination.TotalPages != 3 || page.Pagination.Total != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetchActiveIDs(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("getAllIds") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, _ := contracts.EncodeSyncIDs("songs", []string{"s1", "s2"})
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	client := New(discardLogger(), Config{Endpoints: map[string]string{"songs": srv.URL}})
	ids, err := client.FetchActiveIDs(context.Background(), "songs")
	if err != nil {
		t.Fatalf("fetch ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestUnknownResourceIsRejected(t *testing.T) {
	t.Parallel()
	client := New(discardLogger(), Config{})
	if _, err := client.FetchActiveIDs(context.Background(), "playlists"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMalformedBodyIsDependencyFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	client := New(discardLogger(), Config{Endpoints: map[string]string{"users": srv.URL}})
	if _, err := client.FetchPage(context.Background(), "users", contracts.SyncQuery{Page: 1, Limit: 10}); !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency failure, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(discardLogger(), Config{
		Endpoints:        map[string]string{"users": srv.URL},
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	for i := 0; i < 3; i++ {
		if _, err := client.FetchActiveIDs(context.Background(), "users"); !errors.Is(err, domain.ErrDependencyUnavailable) {
			t.Fatalf("call %d: expected dependency failure, got %v", i, err)
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("expected breaker to short-circuit third call, server saw %d", hits.Load())
	}
}
