package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func (h *Handler) getReplicaUser(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	user, err := h.reader.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, "get_replica_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, userView(user))
}

func (h *Handler) getReplicaSong(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	song, err := h.reader.GetSong(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		failWith(w, r, "get_replica_song", err)
		return
	}
	writeSuccess(w, http.StatusOK, songView(song))
}

func userView(u domain.User) contracts.UserPayload {
	return contracts.UserPayload{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		UpdatedAt:   u.UpdatedAt,
	}
}

func songView(s domain.Song) contracts.SongPayload {
	return contracts.SongPayload{
		ID:              s.ID,
		Title:           s.Title,
		ArtistID:        s.ArtistID,
		ArtistName:      s.ArtistName,
		Genre:           s.Genre,
		DurationSeconds: s.DurationSeconds,
		CoverURL:        s.CoverURL,
		HLSURL:          s.HLSURL,
		TranscodeStatus: string(s.TranscodeStatus),
		StreamCount:     s.StreamCount,
		LikeCount:       s.LikeCount,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
