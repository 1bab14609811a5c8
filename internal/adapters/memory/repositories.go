package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

type Repositories struct {
	Users       *UserReplicaRepository
	Songs       *SongReplicaRepository
	Catalog     *SongCatalogRepository
	Checkpoints *CheckpointRepository
	EventDedup  *EventDedupRepository
}

func NewRepositories() *Repositories {
	return &Repositories{
		Users:       &UserReplicaRepository{records: map[string]domain.User{}},
		Songs:       &SongReplicaRepository{records: map[string]domain.Song{}},
		Catalog:     &SongCatalogRepository{records: map[string]domain.Song{}},
		Checkpoints: &CheckpointRepository{records: map[string]domain.Checkpoint{}},
		EventDedup:  &EventDedupRepository{records: map[string]dedupRecord{}},
	}
}

type UserReplicaRepository struct {
	mu      sync.RWMutex
	records map[string]domain.User
	upserts int
}

func NewUserReplicaRepository() *UserReplicaRepository {
	return &UserReplicaRepository{records: map[string]domain.User{}}
}

func (r *UserReplicaRepository) BulkUpsert(_ context.Context, items []domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.records[item.ID] = item
	}
	r.upserts++
	return nil
}

func (r *UserReplicaRepository) ListIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.records), nil
}

func (r *UserReplicaRepository) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return deleteKeys(r.records, ids), nil
}

func (r *UserReplicaRepository) Insert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[user.ID]; ok {
		return fmt.Errorf("%w: user %s already exists", domain.ErrConflict, user.ID)
	}
	r.records[user.ID] = user
	return nil
}

func (r *UserReplicaRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.records[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *UserReplicaRepository) Update(_ context.Context, id string, patch domain.UserPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.Apply(patch)
	r.records[id] = user
	return nil
}

func (r *UserReplicaRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	delete(r.records, id)
	return ok, nil
}

// BulkWrites reports how many batch writes were executed.
func (r *UserReplicaRepository) BulkWrites() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upserts
}

type SongReplicaRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Song
	upserts int
}

func NewSongReplicaRepository() *SongReplicaRepository {
	return &SongReplicaRepository{records: map[string]domain.Song{}}
}

func (r *SongReplicaRepository) BulkUpsert(_ context.Context, items []domain.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.records[item.ID] = item
	}
	r.upserts++
	return nil
}

func (r *SongReplicaRepository) ListIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.records), nil
}

func (r *SongReplicaRepository) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return deleteKeys(r.records, ids), nil
}

func (r *SongReplicaRepository) Insert(_ context.Context, song domain.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[song.ID]; ok {
		return fmt.Errorf("%w: song %s already exists", domain.ErrConflict, song.ID)
	}
	r.records[song.ID] = song
	return nil
}

func (r *SongReplicaRepository) GetByID(_ context.Context, id string) (domain.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	song, ok := r.records[id]
	if !ok {
		return domain.Song{}, domain.ErrNotFound
	}
	return song, nil
}

func (r *SongReplicaRepository) Update(_ context.Context, id string, patch domain.SongPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	song.Apply(patch)
	r.records[id] = song
	return nil
}

func (r *SongReplicaRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	delete(r.records, id)
	return ok, nil
}

func (r *SongReplicaRepository) Increment(_ context.Context, id string, counter domain.Counter, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := applyCounter(&song, counter, delta); err != nil {
		return err
	}
	r.records[id] = song
	return nil
}

func (r *SongReplicaRepository) BulkWrites() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upserts
}

// SongCatalogRepository is the owner's song store.
type SongCatalogRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Song
}

func NewSongCatalogRepository() *SongCatalogRepository {
	return &SongCatalogRepository{records: map[string]domain.Song{}}
}

func (r *SongCatalogRepository) Create(_ context.Context, song domain.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[song.ID]; ok {
		return fmt.Errorf("%w: song %s already exists", domain.ErrConflict, song.ID)
	}
	r.records[song.ID] = song
	return nil
}

func (r *SongCatalogRepository) GetByID(_ context.Context, id string) (domain.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	song, ok := r.records[id]
	if !ok {
		return domain.Song{}, domain.ErrNotFound
	}
	return song, nil
}

func (r *SongCatalogRepository) Update(_ context.Context, id string, patch domain.SongPatch) (domain.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.records[id]
	if !ok {
		return domain.Song{}, domain.ErrNotFound
	}
	song.Apply(patch)
	r.records[id] = song
	return song, nil
}

func (r *SongCatalogRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *SongCatalogRepository) Increment(_ context.Context, id string, counter domain.Counter, delta int64, at time.Time) (domain.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.records[id]
	if !ok {
		return domain.Song{}, domain.ErrNotFound
	}
	if err := applyCounter(&song, counter, delta); err != nil {
		return domain.Song{}, err
	}
	song.UpdatedAt = at
	r.records[id] = song
	return song, nil
}

func (r *SongCatalogRepository) ListChangedSince(_ context.Context, since *time.Time, offset, limit int) ([]domain.Song, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]domain.Song, 0, len(r.records))
	for _, song := range r.records {
		if since != nil && song.UpdatedAt.Before(*since) {
			continue
		}
		matched = append(matched, song)
	}
	slices.SortFunc(matched, func(a, b domain.Song) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.Song{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return slices.Clone(matched[offset:end]), total, nil
}

func (r *SongCatalogRepository) ListActiveIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.records), nil
}

type CheckpointRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Checkpoint
}

func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{records: map[string]domain.Checkpoint{}}
}

func (r *CheckpointRepository) Get(_ context.Context, syncType string) (domain.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.records[syncType]
	if !ok {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	return cp, nil
}

func (r *CheckpointRepository) Save(_ context.Context, checkpoint domain.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[checkpoint.Type] = checkpoint
	return nil
}

func (r *CheckpointRepository) Delete(_ context.Context, syncType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, syncType)
	return nil
}

type dedupRecord struct {
	eventType string
	expiresAt time.Time
}

type EventDedupRepository struct {
	mu      sync.Mutex
	records map[string]dedupRecord
}

func NewEventDedupRepository() *EventDedupRepository {
	return &EventDedupRepository{records: map[string]dedupRecord{}}
}

func (r *EventDedupRepository) Claim(_ context.Context, key, eventType string, now, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[key]; ok && now.Before(record.expiresAt) {
		return false, nil
	}
	r.records[key] = dedupRecord{eventType: eventType, expiresAt: expiresAt}
	return true, nil
}

func (r *EventDedupRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

func applyCounter(song *domain.Song, counter domain.Counter, delta int64) error {
	switch counter {
	case domain.CounterStreams:
		song.StreamCount += delta
	case domain.CounterLikes:
		song.LikeCount += delta
	default:
		return fmt.Errorf("%w: unknown counter %q", domain.ErrInvalidInput, counter)
	}
	return nil
}

func sortedKeys[T any](records map[string]T) []string {
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func deleteKeys[T any](records map[string]T, ids []string) int64 {
	var deleted int64
	for _, id := range ids {
		if _, ok := records[id]; ok {
			delete(records, id)
			deleted++
		}
	}
	return deleted
}
