package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type EventEmitter interface {
	Emit(ctx context.Context, env contracts.Envelope)
}

// Catalog is the owner side of the song resource. Mutations persist first
// and emit afterwards; a lost event is repaired by reconciliation.
type Catalog struct {
	cfg     Config
	songs   ports.SongCatalogRepository
	emitter EventEmitter
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewCatalog(cfg Config, songs ports.SongCatalogRepository, emitter EventEmitter, logger *slog.Logger) *Catalog {
	cfg = cfg.withDefaults()
	return &Catalog{
		cfg:     cfg,
		songs:   songs,
		emitter: emitter,
		logger:  loggerOrDefault(logger),
		nowFn:   cfg.Clock,
	}
}

func (c *Catalog) CreateSong(ctx context.Context, song domain.Song) (domain.Song, error) {
	if strings.TrimSpace(song.ID) == "" {
		song.ID = uuid.NewString()
	}
	if song.TranscodeStatus == "" {
		song.TranscodeStatus = domain.TranscodePending
	}
	if err := domain.ValidateSong(song); err != nil {
		return domain.Song{}, err
	}
	now := c.nowFn()
	song.CreatedAt = now
	song.UpdatedAt = now
	if err := c.songs.Create(ctx, song); err != nil {
		return domain.Song{}, err
	}
	c.emit(ctx, contracts.SongCreated, song.ID, songToPayload(song))
	return song, nil
}

func (c *Catalog) UpdateSong(ctx context.Context, id string, patch domain.SongPatch) (domain.Song, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.Song{}, err
	}
	if patch.Empty() {
		return domain.Song{}, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	patch.UpdatedAt = c.nowFn()
	updated, err := c.songs.Update(ctx, id, patch)
	if err != nil {
		return domain.Song{}, err
	}
	c.emit(ctx, contracts.SongUpdated, id, songUpdateFromPatch(id, patch))
	return updated, nil
}

func (c *Catalog) DeleteSong(ctx context.Context, id string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}
	if err := c.songs.Delete(ctx, id); err != nil {
		return err
	}
	c.emit(ctx, contracts.SongDeleted, id, contracts.SongRef{ID: id})
	return nil
}

func (c *Catalog) RecordStream(ctx context.Context, songID, userID string) (domain.Song, error) {
	songID, err := requireID(songID)
	if err != nil {
		return domain.Song{}, err
	}
	now := c.nowFn()
	song, err := c.songs.Increment(ctx, songID, domain.CounterStreams, 1, now)
	if err != nil {
		return domain.Song{}, err
	}
	c.emit(ctx, contracts.SongStreamed, songID, contracts.SongStreamedPayload{
		StreamID:   uuid.NewString(),
		SongID:     songID,
		UserID:     userID,
		StreamedAt: now,
	})
	return song, nil
}

func (c *Catalog) RecordReaction(ctx context.Context, songID, userID string, liked bool) (domain.Song, error) {
	songID, err := requireID(songID)
	if err != nil {
		return domain.Song{}, err
	}
	eventType, delta := contracts.SongLiked, int64(1)
	if !liked {
		eventType, delta = contracts.SongUnliked, -1
	}
	song, err := c.songs.Increment(ctx, songID, domain.CounterLikes, delta, c.nowFn())
	if err != nil {
		return domain.Song{}, err
	}
	c.emit(ctx, eventType, songID, contracts.SongReaction{
		ReactionID: uuid.NewString(),
		SongID:     songID,
		UserID:     userID,
	})
	return song, nil
}

// ApplyTranscodeStatus records a transcoding callback and announces only
// the fields it changed.
func (c *Catalog) ApplyTranscodeStatus(ctx context.Context, cb contracts.TranscodeCallback) (domain.Song, error) {
	status, err := domain.ParseTranscodeStatus(cb.Status)
	if err != nil {
		return domain.Song{}, err
	}
	patch := domain.SongPatch{TranscodeStatus: &status}
	if hls := strings.TrimSpace(cb.HLSURL); hls != "" {
		patch.HLSURL = &hls
	}
	if cb.DurationSeconds != nil {
		if *cb.DurationSeconds < 0 {
			return domain.Song{}, fmt.Errorf("%w: duration must be >= 0", domain.ErrInvalidInput)
		}
		duration := *cb.DurationSeconds
		patch.DurationSeconds = &duration
	}
	if status == domain.TranscodeFailed && cb.Error != "" {
		c.logger.WarnContext(ctx, "transcode reported failure",
			"module", "catalog",
			"layer", "application",
			"operation", "apply_transcode_status",
			"outcome", "failed",
			"song_id", cb.SubjectID,
			"reason", cb.Error,
		)
	}
	return c.UpdateSong(ctx, cb.SubjectID, patch)
}

func (c *Catalog) SyncSongs(ctx context.Context, query contracts.SyncQuery) (contracts.SyncPage, error) {
	page, limit := query.Page, query.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = contracts.DefaultSyncPageSize
	}
	if limit > contracts.MaxSyncPageSize {
		limit = contracts.MaxSyncPageSize
	}
	songs, total, err := c.songs.ListChangedSince(ctx, query.Since, (page-1)*limit, limit)
	if err != nil {
		return contracts.SyncPage{}, err
	}
	items := make([]json.RawMessage, 0, len(songs))
	for _, song := range songs {
		raw, err := json.Marshal(songToPayload(song))
		if err != nil {
			return contracts.SyncPage{}, fmt.Errorf("encode song %s: %w", song.ID, err)
		}
		items = append(items, raw)
	}
	return contracts.SyncPage{
		Items:      items,
		Pagination: contracts.NewPagination(page, limit, total),
	}, nil
}

func (c *Catalog) SongIDs(ctx context.Context) ([]string, error) {
	return c.songs.ListActiveIDs(ctx)
}

func (c *Catalog) GetSong(ctx context.Context, id string) (domain.Song, error) {
	return c.songs.GetByID(ctx, id)
}

func (c *Catalog) emit(ctx context.Context, eventType contracts.EventType, subject string, data any) {
	if c.emitter == nil {
		return
	}
	correlationID := CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	env, err := contracts.NewEnvelope(eventType, subject, data, contracts.Metadata{
		CorrelationID: correlationID,
		Source:        c.cfg.ServiceName,
		OccurredAt:    c.nowFn(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "event envelope build failed",
			"module", "catalog",
			"layer", "application",
			"operation", "emit",
			"outcome", "failure",
			"event_type", eventType,
			"subject_id", subject,
			"error", err,
		)
		return
	}
	c.emitter.Emit(ctx, env)
}
