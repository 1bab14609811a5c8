package application

import (
	"context"
	"encoding/json"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

// Target is one local replica the engine reconciles against an owner's
// sync resource.
type Target interface {
	Name() string
	Resource() string
	Upsert(ctx context.Context, items []json.RawMessage) (upserted int, skipped int, err error)
	LocalIDs(ctx context.Context) ([]string, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

type identified interface {
	RecordID() string
}

type recordTarget[W any, T identified] struct {
	name     string
	resource string
	store    ports.BatchStore[T]
	convert  func(W) (T, error)
}

// NewTarget builds a Target that decodes wire items of type W, converts them
// to local records and writes each page with a single bulk upsert. Items
// that fail to decode or convert are skipped.
func NewTarget[W any, T identified](name, resource string, store ports.BatchStore[T], convert func(W) (T, error)) Target {
	return &recordTarget[W, T]{
		name:     name,
		resource: resource,
		store:    store,
		convert:  convert,
	}
}

func NewUserTarget(name, resource string, store ports.UserReplicaRepository) Target {
	return NewTarget[contracts.UserPayload, domain.User](name, resource, store, userFromPayload)
}

func NewSongTarget(name, resource string, store ports.SongReplicaRepository) Target {
	return NewTarget[contracts.SongPayload, domain.Song](name, resource, store, songFromPayload)
}

func (t *recordTarget[W, T]) Name() string { return t.name }

func (t *recordTarget[W, T]) Resource() string { return t.resource }

func (t *recordTarget[W, T]) Upsert(ctx context.Context, items []json.RawMessage) (int, int, error) {
	batch := make([]T, 0, len(items))
	position := make(map[string]int, len(items))
	skipped := 0
	for _, raw := range items {
		var wire W
		if err := json.Unmarshal(raw, &wire); err != nil {
			skipped++
			continue
		}
		record, err := t.convert(wire)
		if err != nil {
			skipped++
			continue
		}
		// a page may repeat an id; the later item wins.
		if i, ok := position[record.RecordID()]; ok {
			batch[i] = record
			continue
		}
		position[record.RecordID()] = len(batch)
		batch = append(batch, record)
	}
	if len(batch) == 0 {
		return 0, skipped, nil
	}
	if err := t.store.BulkUpsert(ctx, batch); err != nil {
		return 0, skipped, err
	}
	return len(batch), skipped, nil
}

func (t *recordTarget[W, T]) LocalIDs(ctx context.Context) ([]string, error) {
	return t.store.ListIDs(ctx)
}

func (t *recordTarget[W, T]) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	return t.store.DeleteByIDs(ctx, ids)
}
