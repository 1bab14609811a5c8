package postgres

import (
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

func toUserModel(u domain.User, syncedAt time.Time) replicaUserModel {
	return replicaUserModel{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		UpdatedAt:   u.UpdatedAt.UTC(),
		SyncedAt:    syncedAt,
	}
}

func toDomainUser(m replicaUserModel) domain.User {
	return domain.User{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func toSongColumns(s domain.Song) SongColumns {
	return SongColumns{
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
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

func toDomainSong(c SongColumns) domain.Song {
	return domain.Song{
		ID:              c.ID,
		Title:           c.Title,
		ArtistID:        c.ArtistID,
		ArtistName:      c.ArtistName,
		Genre:           c.Genre,
		DurationSeconds: c.DurationSeconds,
		CoverURL:        c.CoverURL,
		HLSURL:          c.HLSURL,
		TranscodeStatus: domain.TranscodeStatus(c.TranscodeStatus),
		StreamCount:     c.StreamCount,
		LikeCount:       c.LikeCount,
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
	}
}

func userPatchColumns(p domain.UserPatch) map[string]any {
	out := map[string]any{}
	if p.Email != nil {
		out["email"] = *p.Email
	}
	if p.DisplayName != nil {
		out["display_name"] = *p.DisplayName
	}
	if !p.UpdatedAt.IsZero() {
		out["updated_at"] = p.UpdatedAt.UTC()
	}
	return out
}

func songPatchColumns(p domain.SongPatch) map[string]any {
	out := map[string]any{}
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.ArtistName != nil {
		out["artist_name"] = *p.ArtistName
	}
	if p.Genre != nil {
		out["genre"] = *p.Genre
	}
	if p.DurationSeconds != nil {
		out["duration_seconds"] = *p.DurationSeconds
	}
	if p.CoverURL != nil {
		out["cover_url"] = *p.CoverURL
	}
	if p.HLSURL != nil {
		out["hls_url"] = *p.HLSURL
	}
	if p.TranscodeStatus != nil {
		out["transcode_status"] = string(*p.TranscodeStatus)
	}
	if !p.UpdatedAt.IsZero() {
		out["updated_at"] = p.UpdatedAt.UTC()
	}
	return out
}
