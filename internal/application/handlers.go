package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type ReplicaDependencies struct {
	Users  ports.UserReplicaRepository
	Songs  ports.SongReplicaRepository
	Dedup  ports.EventDedupRepository
	Cache  ports.Cache
	Logger *slog.Logger
}

// ReplicaHandlers apply owner events to the local replicas. Every handler
// tolerates being applied more than once with the same final state,
// except the counter deltas which rely on the dedup table keyed by the
// owner's per-action id.
type ReplicaHandlers struct {
	cfg    Config
	users  ports.UserReplicaRepository
	songs  ports.SongReplicaRepository
	dedup  ports.EventDedupRepository
	cache  ports.Cache
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewReplicaHandlers(cfg Config, deps ReplicaDependencies) *ReplicaHandlers {
	cfg = cfg.withDefaults()
	cache := deps.Cache
	if cache == nil {
		cache = noopCache{}
	}
	return &ReplicaHandlers{
		cfg:    cfg,
		users:  deps.Users,
		songs:  deps.Songs,
		dedup:  deps.Dedup,
		cache:  cache,
		logger: loggerOrDefault(deps.Logger),
		nowFn:  cfg.Clock,
	}
}

// NewReplicaDispatcher returns a dispatcher with a handler for every event
// type whose replica is configured.
func NewReplicaDispatcher(cfg Config, deps ReplicaDependencies) *Dispatcher {
	h := NewReplicaHandlers(cfg, deps)
	d := NewDispatcher(deps.Logger)
	h.Register(d)
	return d
}

func (h *ReplicaHandlers) Register(d *Dispatcher) {
	if h.users != nil {
		d.Register(contracts.UserCreated, h.userCreated)
		d.Register(contracts.UserUpdated, h.userUpdated)
		d.Register(contracts.UserDeleted, h.userDeleted)
	}
	if h.songs != nil {
		d.Register(contracts.SongCreated, h.songCreated)
		d.Register(contracts.SongUpdated, h.songUpdated)
		d.Register(contracts.SongDeleted, h.songDeleted)
		d.Register(contracts.SongStreamed, h.songStreamed)
		d.Register(contracts.SongLiked, h.songLiked)
		d.Register(contracts.SongUnliked, h.songUnliked)
	}
}

func (h *ReplicaHandlers) userCreated(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.UserPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	user, err := userFromPayload(payload)
	if err != nil {
		return err
	}
	if err := h.users.Insert(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		h.logSkipped(ctx, env, user.ID, "already present")
	}
	h.invalidate(ctx, cacheKeyUser(user.ID))
	return nil
}

func (h *ReplicaHandlers) userUpdated(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.UserUpdate
	if err := env.Decode(&payload); err != nil {
		return err
	}
	id, err := requireID(payload.ID)
	if err != nil {
		return err
	}
	if err := h.users.Update(ctx, id, userPatchFromUpdate(payload)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logSkipped(ctx, env, id, "target absent")
			return nil
		}
		return err
	}
	h.invalidate(ctx, cacheKeyUser(id))
	return nil
}

func (h *ReplicaHandlers) userDeleted(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.UserRef
	if err := env.Decode(&payload); err != nil {
		return err
	}
	id, err := requireID(payload.ID)
	if err != nil {
		return err
	}
	if _, err := h.users.Delete(ctx, id); err != nil {
		return err
	}
	h.invalidate(ctx, cacheKeyUser(id))
	return nil
}

func (h *ReplicaHandlers) songCreated(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	song, err := songFromPayload(payload)
	if err != nil {
		return err
	}
	if err := h.songs.Insert(ctx, song); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		h.logSkipped(ctx, env, song.ID, "already present")
	}
	h.invalidate(ctx, cacheKeySong(song.ID))
	return nil
}

func (h *ReplicaHandlers) songUpdated(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongUpdate
	if err := env.Decode(&payload); err != nil {
		return err
	}
	id, err := requireID(payload.ID)
	if err != nil {
		return err
	}
	patch, err := songPatchFromUpdate(payload)
	if err != nil {
		return err
	}
	if err := h.songs.Update(ctx, id, patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logSkipped(ctx, env, id, "target absent")
			return nil
		}
		return err
	}
	h.invalidate(ctx, cacheKeySong(id))
	return nil
}

func (h *ReplicaHandlers) songDeleted(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongRef
	if err := env.Decode(&payload); err != nil {
		return err
	}
	id, err := requireID(payload.ID)
	if err != nil {
		return err
	}
	if _, err := h.songs.Delete(ctx, id); err != nil {
		return err
	}
	h.invalidate(ctx, cacheKeySong(id))
	return nil
}

func (h *ReplicaHandlers) songStreamed(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongStreamedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return h.applyCounter(ctx, env, payload.SongID, payload.StreamID, domain.CounterStreams, 1)
}

func (h *ReplicaHandlers) songLiked(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongReaction
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return h.applyCounter(ctx, env, payload.SongID, payload.ReactionID, domain.CounterLikes, 1)
}

func (h *ReplicaHandlers) songUnliked(ctx context.Context, env contracts.Envelope) error {
	var payload contracts.SongReaction
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return h.applyCounter(ctx, env, payload.SongID, payload.ReactionID, domain.CounterLikes, -1)
}

// applyCounter claims the action id before applying the delta. Payloads
// without an action id are applied unguarded: the envelope id is shared by
// distinct actions emitted in the same millisecond and cannot key them.
func (h *ReplicaHandlers) applyCounter(ctx context.Context, env contracts.Envelope, songID, actionID string, counter domain.Counter, delta int64) error {
	id, err := requireID(songID)
	if err != nil {
		return err
	}
	key := counterDedupKey(env.EventType, actionID)
	if h.dedup != nil && key != "" {
		now := h.nowFn()
		claimed, err := h.dedup.Claim(ctx, key, string(env.EventType), now, now.Add(h.cfg.EventDedupTTL))
		if err != nil {
			return err
		}
		if !claimed {
			h.logSkipped(ctx, env, id, "duplicate action "+actionID)
			return nil
		}
	}
	if err := h.songs.Increment(ctx, id, counter, delta); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logSkipped(ctx, env, id, "target absent")
			return nil
		}
		h.release(ctx, key)
		return err
	}
	h.invalidate(ctx, cacheKeySong(id))
	return nil
}

func (h *ReplicaHandlers) release(ctx context.Context, key string) {
	if h.dedup == nil || key == "" {
		return
	}
	if err := h.dedup.Release(ctx, key); err != nil {
		h.logger.WarnContext(ctx, "event dedup release failed",
			"module", "replica.handlers",
			"layer", "application",
			"operation", "release_claim",
			"outcome", "failure",
			"dedup_key", key,
			"error", err,
		)
	}
}

func counterDedupKey(eventType contracts.EventType, actionID string) string {
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ""
	}
	return strings.ToLower(string(eventType)) + ":" + actionID
}

func (h *ReplicaHandlers) invalidate(ctx context.Context, key string) {
	_ = h.cache.Delete(ctx, key)
}

func (h *ReplicaHandlers) logSkipped(ctx context.Context, env contracts.Envelope, id, reason string) {
	h.logger.InfoContext(ctx, "replica event skipped",
		"module", "replica.handlers",
		"layer", "application",
		"operation", "apply",
		"outcome", "skipped",
		"event_type", env.EventType,
		"event_id", env.EventID,
		"subject_id", id,
		"reason", reason,
	)
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: _id is required", domain.ErrInvalidInput)
	}
	return id, nil
}
