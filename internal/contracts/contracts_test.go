package contracts_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func TestEveryEventTypeHasOneTopic(t *testing.T) {
	t.Parallel()
	seen := map[contracts.EventType]bool{}
	for _, topic := range contracts.Topics() {
		for _, et := range contracts.EventTypesFor(topic) {
			if seen[et] {
				t.Fatalf("%s registered on more than one topic", et)
			}
			seen[et] = true
			got, ok := contracts.TopicFor(et)
			if !ok || got != topic {
				t.Fatalf("TopicFor(%s) = %s, want %s", et, got, topic)
			}
		}
	}
	if len(seen) != 9 {
		t.Fatalf("expected 9 event types, got %d", len(seen))
	}
	if contracts.KnownEventType("SONG_SHARED") || contracts.KnownTopic("billing-events") {
		t.Fatalf("unexpected registry entries")
	}
	if got := contracts.SubscriptionName("playlist-service", contracts.TopicSongEvents); got != "song-events.playlist-service" {
		t.Fatalf("unexpected subscription name: %s", got)
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()
	at := time.UnixMilli(1717236000123).UTC()
	env, err := contracts.NewEnvelope(contracts.SongUpdated, "s1", contracts.SongRef{ID: "s1"}, contracts.Metadata{
		CorrelationID: "c1",
		Source:        "songs-service",
		OccurredAt:    at,
	})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.EventID != "song_updated:s1:1717236000123" || env.Metadata.SubjectID != "s1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	raw, err := contracts.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, key := range []string{`"eventType":"SONG_UPDATED"`, `"correlationId":"c1"`, `"data":{"_id":"s1"}`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("encoded envelope missing %s: %s", key, raw)
		}
	}

	if _, err := contracts.NewEnvelope("SONG_SHARED", "s1", nil, contracts.Metadata{}); !errors.Is(err, domain.ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	if _, err := contracts.NewEnvelope(contracts.SongDeleted, " ", nil, contracts.Metadata{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEnvelopeValidateRequiresSource(t *testing.T) {
	t.Parallel()
	env, err := contracts.NewEnvelope(contracts.UserDeleted, "u1", contracts.SongRef{ID: "u1"}, contracts.Metadata{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if err := env.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var out contracts.SongRef
	if err := (contracts.Envelope{EventType: contracts.UserDeleted}).Decode(&out); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty data, got %v", err)
	}
}

func TestPagination(t *testing.T) {
	t.Parallel()
	cases := []struct {
		total     int64
		limit     int
		wantPages int
	}{
		{total: 0, limit: 100, wantPages: 0},
		{total: 1, limit: 100, wantPages: 1},
		{total: 100, limit: 100, wantPages: 1},
		{total: 101, limit: 100, wantPages: 2},
		{total: 250, limit: 100, wantPages: 3},
	}
	for _, tc := range cases {
		p := contracts.NewPagination(1, tc.limit, tc.total)
		if p.TotalPages != tc.wantPages {
			t.Fatalf("total=%d: expected %d pages, got %d", tc.total, tc.wantPages, p.TotalPages)
		}
		if p.HasNextPage != (tc.wantPages > 1) {
			t.Fatalf("total=%d: unexpected hasNextPage %t", tc.total, p.HasNextPage)
		}
	}
}

func TestSyncWireLayout(t *testing.T) {
	t.Parallel()
	raw, err := contracts.EncodeSyncPage("users", contracts.SyncPage{Pagination: contracts.NewPagination(1, 50, 0)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var body map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["data"]["users"]) != "[]" {
		t.Fatalf("expected empty items array, got %s", body["data"]["users"])
	}
	if !strings.Contains(string(body["data"]["pagination"]), `"totalUsers":0`) {
		t.Fatalf("expected resource total key: %s", body["data"]["pagination"])
	}

	ids, err := contracts.DecodeSyncIDs("songs", []byte(`{"data":{"songIds":["a","b"]}}`))
	if err != nil || len(ids) != 2 {
		t.Fatalf("unexpected ids %v err=%v", ids, err)
	}
	if _, err := contracts.DecodeSyncIDs("songs", []byte(`{"data":{"userIds":[]}}`)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for wrong key, got %v", err)
	}
	if _, err := contracts.DecodeSyncPage("songs", []byte(`{"data":{"songs":[]}}`)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected missing pagination error, got %v", err)
	}
}

func TestDecodeTranscodeCallback(t *testing.T) {
	t.Parallel()
	cb, err := contracts.DecodeTranscodeCallback([]byte(`{"subjectId":" s1 ","status":"completed","durationSeconds":12}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cb.SubjectID != "s1" || cb.Status != "completed" || cb.DurationSeconds == nil || *cb.DurationSeconds != 12 {
		t.Fatalf("unexpected callback: %+v", cb)
	}
	for _, body := range []string{`not json`, `{"status":"completed"}`, `{"subjectId":"s1"}`} {
		if _, err := contracts.DecodeTranscodeCallback([]byte(body)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", body, err)
		}
	}
}
