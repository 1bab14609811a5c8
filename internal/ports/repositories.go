package ports

import (
	"context"
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

// BatchStore is the part of a replica store the reconciliation engine uses.
// BulkUpsert must execute as a single batch write keyed by record id.
type BatchStore[T any] interface {
	BulkUpsert(ctx context.Context, items []T) error
	ListIDs(ctx context.Context) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// UserReplicaRepository stores the local copy of users. Insert reports
// domain.ErrConflict for an id that already exists; Update reports
// domain.ErrNotFound for an unknown id.
type UserReplicaRepository interface {
	BatchStore[domain.User]
	Insert(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	Update(ctx context.Context, id string, patch domain.UserPatch) error
	Delete(ctx context.Context, id string) (bool, error)
}

type SongReplicaRepository interface {
	BatchStore[domain.Song]
	Insert(ctx context.Context, song domain.Song) error
	GetByID(ctx context.Context, id string) (domain.Song, error)
	Update(ctx context.Context, id string, patch domain.SongPatch) error
	Delete(ctx context.Context, id string) (bool, error)
	Increment(ctx context.Context, id string, counter domain.Counter, delta int64) error
}

// SongCatalogRepository is the owner's source of truth for songs.
type SongCatalogRepository interface {
	Create(ctx context.Context, song domain.Song) error
	GetByID(ctx context.Context, id string) (domain.Song, error)
	Update(ctx context.Context, id string, patch domain.SongPatch) (domain.Song, error)
	Delete(ctx context.Context, id string) error
	Increment(ctx context.Context, id string, counter domain.Counter, delta int64, at time.Time) (domain.Song, error)
	ListChangedSince(ctx context.Context, since *time.Time, offset, limit int) ([]domain.Song, int64, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type CheckpointRepository interface {
	Get(ctx context.Context, syncType string) (domain.Checkpoint, error)
	Save(ctx context.Context, checkpoint domain.Checkpoint) error
	Delete(ctx context.Context, syncType string) error
}

// EventDedupRepository remembers applied counter actions by key. Claim
// atomically records key and reports false when an unexpired claim already
// exists. Release drops a claim whose apply failed so a redelivery retries.
type EventDedupRepository interface {
	Claim(ctx context.Context, key, eventType string, now, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, key string) error
}
