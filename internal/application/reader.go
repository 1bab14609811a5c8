package application

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

// ReplicaReader serves local replica reads through a cache-aside layer.
// Cache failures fall through to the store.
type ReplicaReader struct {
	cfg    Config
	users  ports.UserReplicaRepository
	songs  ports.SongReplicaRepository
	cache  ports.Cache
	logger *slog.Logger
}

func NewReplicaReader(cfg Config, users ports.UserReplicaRepository, songs ports.SongReplicaRepository, cache ports.Cache, logger *slog.Logger) *ReplicaReader {
	if cache == nil {
		cache = noopCache{}
	}
	return &ReplicaReader{
		cfg:    cfg.withDefaults(),
		users:  users,
		songs:  songs,
		cache:  cache,
		logger: loggerOrDefault(logger),
	}
}

func (r *ReplicaReader) GetUser(ctx context.Context, id string) (domain.User, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.User{}, err
	}
	if r.users == nil {
		return domain.User{}, domain.ErrNotFound
	}
	key := cacheKeyUser(id)
	var cached contracts.UserPayload
	if r.readCache(ctx, key, &cached) {
		return userFromPayload(cached)
	}
	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	r.writeCache(ctx, key, userToPayload(user))
	return user, nil
}

func (r *ReplicaReader) GetSong(ctx context.Context, id string) (domain.Song, error) {
	id, err := requireID(id)
	if err != nil {
		return domain.Song{}, err
	}
	if r.songs == nil {
		return domain.Song{}, domain.ErrNotFound
	}
	key := cacheKeySong(id)
	var cached contracts.SongPayload
	if r.readCache(ctx, key, &cached) {
		return songFromPayload(cached)
	}
	song, err := r.songs.GetByID(ctx, id)
	if err != nil {
		return domain.Song{}, err
	}
	r.writeCache(ctx, key, songToPayload(song))
	return song, nil
}

func (r *ReplicaReader) readCache(ctx context.Context, key string, out any) bool {
	raw, err := r.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		_ = r.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (r *ReplicaReader) writeCache(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(raw), r.cfg.ReplicaCacheTTL); err != nil {
		r.logger.WarnContext(ctx, "replica cache write failed",
			"module", "replica.reader",
			"layer", "application",
			"operation", "cache_set",
			"outcome", "failure",
			"key", key,
			"error", err,
		)
	}
}
