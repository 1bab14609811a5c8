package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookIntegration pairs the guard for one caller with the state change
// its callbacks feed.
type WebhookIntegration struct {
	Guard *application.WebhookGuard
	Apply func(ctx context.Context, body []byte) error
}

// TranscodeIntegration feeds transcoding callbacks into the song catalog.
func TranscodeIntegration(guard *application.WebhookGuard, catalog *application.Catalog) WebhookIntegration {
	return WebhookIntegration{
		Guard: guard,
		Apply: func(ctx context.Context, body []byte) error {
			cb, err := contracts.DecodeTranscodeCallback(body)
			if err != nil {
				return err
			}
			_, err = catalog.ApplyTranscodeStatus(ctx, cb)
			return err
		},
	}
}

func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	const operation = "receive_webhook"
	name := strings.ToLower(chi.URLParam(r, "integration"))

	integration, ok := h.webhooks[name]
	if !ok || integration.Guard == nil || integration.Apply == nil {
		h.rejectWebhook(w, r, name, "unknown integration")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		logHTTPOperationError(r.Context(), operation, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable body", err)
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable body")
		return
	}
	if err := integration.Guard.Verify(r.Header, body); err != nil {
		reason := err.Error()
		var rejection *application.RejectionError
		if errors.As(err, &rejection) {
			reason = rejection.Reason
		}
		h.rejectWebhook(w, r, name, reason)
		return
	}

	if err := integration.Apply(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			logHTTPOperationError(r.Context(), operation, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		case errors.Is(err, domain.ErrNotFound):
			logHTTPOperationError(r.Context(), operation, http.StatusNotFound, "NOT_FOUND", "unknown subject", err)
			writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		default:
			logHTTPOperationError(r.Context(), operation, http.StatusInternalServerError, "INTERNAL_ERROR", "webhook apply failed", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}
	writeMessage(w, http.StatusOK, "accepted")
}

// rejectWebhook answers every authentication failure identically; only the
// log carries the real reason.
func (h *Handler) rejectWebhook(w http.ResponseWriter, r *http.Request, integration, reason string) {
	httpLogger().WarnContext(r.Context(), "webhook rejected",
		"operation", "receive_webhook",
		"outcome", "rejected",
		"integration", integration,
		"caller", r.Header.Get(contracts.HeaderService),
		"reason", reason,
		"request_id", requestIDFromContext(r.Context()),
	)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
}
