package application

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

const (
	DefaultReplayWindow = 300000 * time.Millisecond
	signaturePrefix     = "sha256="
)

// RejectionError carries the internal reason a webhook call was refused.
// Callers must not echo the reason to the remote side.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "webhook rejected: " + e.Reason
}

func (e *RejectionError) Unwrap() error {
	return domain.ErrUnauthorized
}

// WebhookGuard authenticates calls from one expected internal service.
type WebhookGuard struct {
	service string
	secret  []byte
	window  time.Duration
	nowFn   func() time.Time
}

type GuardOption func(*WebhookGuard)

func WithReplayWindow(window time.Duration) GuardOption {
	return func(g *WebhookGuard) {
		if window > 0 {
			g.window = window
		}
	}
}

func WithGuardClock(nowFn func() time.Time) GuardOption {
	return func(g *WebhookGuard) {
		if nowFn != nil {
			g.nowFn = nowFn
		}
	}
}

func NewWebhookGuard(expectedService, secret string, opts ...GuardOption) *WebhookGuard {
	g := &WebhookGuard{
		service: strings.TrimSpace(expectedService),
		secret:  []byte(secret),
		window:  DefaultReplayWindow,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *WebhookGuard) Verify(headers http.Header, body []byte) error {
	if len(g.secret) == 0 {
		return reject("webhook secret is not configured")
	}
	signature := strings.TrimSpace(headers.Get(contracts.HeaderSignature))
	timestamp := strings.TrimSpace(headers.Get(contracts.HeaderTimestamp))
	service := strings.TrimSpace(headers.Get(contracts.HeaderService))
	if signature == "" || timestamp == "" || service == "" {
		return reject("missing authentication headers")
	}
	if service != g.service {
		return reject("unexpected caller " + strconv.Quote(service))
	}
	sentMillis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return reject("malformed timestamp")
	}
	skew := g.nowFn().UnixMilli() - sentMillis
	if skew < 0 {
		skew = -skew
	}
	if skew > g.window.Milliseconds() {
		return reject("timestamp outside replay window")
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return reject("unsupported signature scheme")
	}
	given, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return reject("malformed signature")
	}
	if !hmac.Equal(given, computeMAC(g.secret, body)) {
		return reject("signature mismatch")
	}
	return nil
}

// Sign returns the x-signature header value for body.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(computeMAC([]byte(secret), body))
}

// SignedHeaders builds the full header set a caller attaches to a webhook.
func SignedHeaders(service, secret string, body []byte, at time.Time) http.Header {
	h := make(http.Header)
	h.Set(contracts.HeaderSignature, Sign(secret, body))
	h.Set(contracts.HeaderTimestamp, strconv.FormatInt(at.UnixMilli(), 10))
	h.Set(contracts.HeaderService, service)
	return h
}

func computeMAC(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func reject(reason string) error {
	return &RejectionError{Reason: reason}
}
