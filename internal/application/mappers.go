package application

import (
	"fmt"
	"strings"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
)

func userFromPayload(p contracts.UserPayload) (domain.User, error) {
	user := domain.User{
		ID:          strings.TrimSpace(p.ID),
		Email:       p.Email,
		DisplayName: p.DisplayName,
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	if err := domain.ValidateUser(user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func userToPayload(u domain.User) contracts.UserPayload {
	return contracts.UserPayload{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userPatchFromUpdate(u contracts.UserUpdate) domain.UserPatch {
	return domain.UserPatch{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		UpdatedAt:   u.UpdatedAt.UTC(),
	}
}

func songFromPayload(p contracts.SongPayload) (domain.Song, error) {
	status := domain.TranscodeStatus(strings.ToLower(strings.TrimSpace(p.TranscodeStatus)))
	switch status {
	case "":
		status = domain.TranscodePending
	case domain.TranscodePending, domain.TranscodeProcessing, domain.TranscodeCompleted, domain.TranscodeFailed:
	default:
		return domain.Song{}, fmt.Errorf("%w: unsupported transcode status %q", domain.ErrInvalidInput, p.TranscodeStatus)
	}
	song := domain.Song{
		ID:              strings.TrimSpace(p.ID),
		Title:           p.Title,
		ArtistID:        p.ArtistID,
		ArtistName:      p.ArtistName,
		Genre:           p.Genre,
		DurationSeconds: p.DurationSeconds,
		CoverURL:        p.CoverURL,
		HLSURL:          p.HLSURL,
		TranscodeStatus: status,
		StreamCount:     p.StreamCount,
		LikeCount:       p.LikeCount,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	if err := domain.ValidateSong(song); err != nil {
		return domain.Song{}, err
	}
	return song, nil
}

func songToPayload(s domain.Song) contracts.SongPayload {
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

func songPatchFromUpdate(u contracts.SongUpdate) (domain.SongPatch, error) {
	patch := domain.SongPatch{
		Title:           u.Title,
		ArtistName:      u.ArtistName,
		Genre:           u.Genre,
		DurationSeconds: u.DurationSeconds,
		CoverURL:        u.CoverURL,
		HLSURL:          u.HLSURL,
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
	if u.TranscodeStatus != nil {
		status := domain.TranscodeStatus(strings.ToLower(strings.TrimSpace(*u.TranscodeStatus)))
		switch status {
		case domain.TranscodePending, domain.TranscodeProcessing, domain.TranscodeCompleted, domain.TranscodeFailed:
			patch.TranscodeStatus = &status
		default:
			return domain.SongPatch{}, fmt.Errorf("%w: unsupported transcode status %q", domain.ErrInvalidInput, *u.TranscodeStatus)
		}
	}
	return patch, nil
}

func songUpdateFromPatch(id string, p domain.SongPatch) contracts.SongUpdate {
	update := contracts.SongUpdate{
		ID:              id,
		Title:           p.Title,
		ArtistName:      p.ArtistName,
		Genre:           p.Genre,
		DurationSeconds: p.DurationSeconds,
		CoverURL:        p.CoverURL,
		HLSURL:          p.HLSURL,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.TranscodeStatus != nil {
		status := string(*p.TranscodeStatus)
		update.TranscodeStatus = &status
	}
	return update
}
