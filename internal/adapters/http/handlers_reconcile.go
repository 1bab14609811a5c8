package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groovy/replicasync/internal/application"
	"github.com/groovy/replicasync/internal/domain"
)

func (h *Handler) triggerReconcile(w http.ResponseWriter, r *http.Request) {
	const operation = "trigger_reconcile"
	if h.engine == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "reconciliation is not enabled")
		return
	}
	target := chi.URLParam(r, "target")
	mode, err := application.ParseRunMode(r.URL.Query().Get("mode"))
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	status, err := h.engine.Status(target)
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	// only runs of this process are visible here; the worker's schedule is not.
	if status.State == application.StateRunning {
		failWith(w, r, operation, domain.ErrRunInProgress)
		return
	}
	report, err := h.engine.Run(r.Context(), target, mode)
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (h *Handler) getReconcileStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "reconciliation is not enabled")
		return
	}
	status, err := h.engine.Status(chi.URLParam(r, "target"))
	if err != nil {
		failWith(w, r, "get_reconcile_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) listReconcileStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "reconciliation is not enabled")
		return
	}
	out := make([]application.TargetStatus, 0)
	for _, name := range h.engine.Targets() {
		status, err := h.engine.Status(name)
		if err != nil {
			failWith(w, r, "list_reconcile_status", err)
			return
		}
		out = append(out, status)
	}
	writeSuccess(w, http.StatusOK, out)
}
