package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

const syncResourceSongs = "songs"

// syncFeed serves the owner side of GET /sync/{resource}.
func (h *Handler) syncFeed(w http.ResponseWriter, r *http.Request) {
	const operation = "sync_feed"
	resource := chi.URLParam(r, "resource")
	if resource != syncResourceSongs || h.catalog == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown sync resource")
		return
	}

	values := r.URL.Query()
	if values.Get("getAllIds") == "true" {
		ids, err := h.catalog.SongIDs(r.Context())
		if err != nil {
			failWith(w, r, operation, err)
			return
		}
		raw, err := contracts.EncodeSyncIDs(resource, ids)
		if err != nil {
			failWith(w, r, operation, err)
			return
		}
		writeRaw(w, http.StatusOK, raw)
		return
	}

	query, err := parseSyncQuery(values.Get("page"), values.Get("limit"), values.Get("since"))
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	page, err := h.catalog.SyncSongs(r.Context(), query)
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	raw, err := contracts.EncodeSyncPage(resource, page)
	if err != nil {
		failWith(w, r, operation, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// parseSyncQuery accepts since as RFC 3339 or as epoch milliseconds.
func parseSyncQuery(page, limit, since string) (contracts.SyncQuery, error) {
	query := contracts.SyncQuery{Page: 1, Limit: contracts.DefaultSyncPageSize}
	if page = strings.TrimSpace(page); page != "" {
		v, err := strconv.Atoi(page)
		if err != nil || v < 1 {
			return contracts.SyncQuery{}, fmt.Errorf("%w: page must be a positive integer", domain.ErrInvalidInput)
		}
		query.Page = v
	}
	if limit = strings.TrimSpace(limit); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 {
			return contracts.SyncQuery{}, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
		}
		query.Limit = v
	}
	if since = strings.TrimSpace(since); since != "" {
		if ts, err := time.Parse(time.RFC3339Nano, since); err == nil {
			ts = ts.UTC()
			query.Since = &ts
		} else if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			ts := time.UnixMilli(ms).UTC()
			query.Since = &ts
		} else {
			return contracts.SyncQuery{}, fmt.Errorf("%w: since must be RFC 3339 or epoch milliseconds", domain.ErrInvalidInput)
		}
	}
	return query, nil
}
