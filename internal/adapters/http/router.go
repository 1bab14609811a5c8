package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groovy/replicasync/internal/application"
)

// Dependencies lists what the router can expose. Nil members switch the
// corresponding routes to 404.
type Dependencies struct {
	Catalog  *application.Catalog
	Engine   *application.Engine
	Reader   *application.ReplicaReader
	Webhooks map[string]WebhookIntegration
	Ready    func(context.Context) bool
}

type Handler struct {
	catalog  *application.Catalog
	engine   *application.Engine
	reader   *application.ReplicaReader
	webhooks map[string]WebhookIntegration
	ready    func(context.Context) bool
}

func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		reader:   deps.Reader,
		webhooks: deps.Webhooks,
		ready:    deps.Ready,
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.readyz)

	r.Post("/webhook/{integration}", handler.receiveWebhook)
	r.Get("/sync/{resource}", handler.syncFeed)

	r.Route("/internal/reconcile", func(r chi.Router) {
		r.Get("/", handler.listReconcileStatus)
		r.Get("/{target}", handler.getReconcileStatus)
		r.Post("/{target}", handler.triggerReconcile)
	})

	r.Route("/v1/replicas", func(r chi.Router) {
		r.Get("/users/{id}", handler.getReplicaUser)
		r.Get("/songs/{id}", handler.getReplicaSong)
	})
	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "event transport unreachable")
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}
