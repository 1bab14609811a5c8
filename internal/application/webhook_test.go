package application_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func TestWebhookGuardVerify(t *testing.T) {
	t.Parallel()
	const secret = "shared-secret"
	now := time.UnixMilli(1_700_000_000_000)
	body := []byte(`{"subjectId":"s1","status":"completed"}`)
	guard := application.NewWebhookGuard("transcoder", secret, application.WithGuardClock(func() time.Time { return now }))

	signed := func(service string, sentAt time.Time, payload []byte) http.Header {
		return application.SignedHeaders(service, secret, payload, sentAt)
	}

	unsupported := signed("transcoder", now, body)
	unsupported.Set(contracts.HeaderSignature, "md5=abcd")
	badTimestamp := signed("transcoder", now, body)
	badTimestamp.Set(contracts.HeaderTimestamp, "yesterday")

	cases := []struct {
		name    string
		headers http.Header
		body    []byte
		ok      bool
	}{
		{name: "valid", headers: signed("transcoder", now, body), body: body, ok: true},
		{name: "window edge", headers: signed("transcoder", now.Add(-300000*time.Millisecond), body), body: body, ok: true},
		{name: "future within window", headers: signed("transcoder", now.Add(2*time.Minute), body), body: body, ok: true},
		{name: "stale", headers: signed("transcoder", now.Add(-301000*time.Millisecond), body), body: body},
		{name: "too far in future", headers: signed("transcoder", now.Add(301000*time.Millisecond), body), body: body},
		{name: "wrong service", headers: signed("billing", now, body), body: body},
		{name: "tampered body", headers: signed("transcoder", now, body), body: []byte(`{"subjectId":"s2","status":"completed"}`)},
		{name: "missing headers", headers: http.Header{}, body: body},
		{name: "wrong secret", headers: application.SignedHeaders("transcoder", "other-secret", body, now), body: body},
		{name: "unsupported scheme", headers: unsupported, body: body},
		{name: "malformed timestamp", headers: badTimestamp, body: body},
	}
	for _, tc := range cases {
		err := guard.Verify(tc.headers, tc.body)
		if tc.ok {
			if err != nil {
				t.Fatalf("%s: expected accepted, got %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", tc.name, err)
		}
		var rejection *application.RejectionError
		if !errors.As(err, &rejection) || rejection.Reason == "" {
			t.Fatalf("%s: expected rejection reason, got %v", tc.name, err)
		}
	}
}

func TestWebhookGuardWithoutSecretRejects(t *testing.T) {
	t.Parallel()
	body := []byte(`{}`)
	guard := application.NewWebhookGuard("transcoder", "")

	err := guard.Verify(application.SignedHeaders("transcoder", "", body, time.Now()), body)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSignFormat(t *testing.T) {
	t.Parallel()
	got := application.Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Fatalf("unexpected signature: got=%s want=%s", got, want)
	}
}
