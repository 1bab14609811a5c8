package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type songReplicaRepository struct {
	db *gorm.DB
}

func (r *songReplicaRepository) BulkUpsert(ctx context.Context, items []domain.Song) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]replicaSongModel, 0, len(items))
	for _, item := range items {
		rows = append(rows, replicaSongModel{SongColumns: toSongColumns(item), SyncedAt: now})
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	return translate(err)
}

func (r *songReplicaRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&replicaSongModel{}).Order("id").Pluck("id", &ids).Error
	return ids, translate(err)
}

func (r *songReplicaRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for _, part := range chunk(ids, deleteChunkSize) {
		res := r.db.WithContext(ctx).Where("id IN ?", part).Delete(&replicaSongModel{})
		if res.Error != nil {
			return deleted, translate(res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

func (r *songReplicaRepository) Insert(ctx context.Context, song domain.Song) error {
	row := replicaSongModel{SongColumns: toSongColumns(song), SyncedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: song %s already exists", domain.ErrConflict, song.ID)
		}
		return translate(err)
	}
	return nil
}

func (r *songReplicaRepository) GetByID(ctx context.Context, id string) (domain.Song, error) {
	var row replicaSongModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Song{}, translate(err)
	}
	return toDomainSong(row.SongColumns), nil
}

func (r *songReplicaRepository) Update(ctx context.Context, id string, patch domain.SongPatch) error {
	columns := songPatchColumns(patch)
	if len(columns) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	columns["synced_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&replicaSongModel{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *songReplicaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&replicaSongModel{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *songReplicaRepository) Increment(ctx context.Context, id string, counter domain.Counter, delta int64) error {
	column, err := counterColumn(counter)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&replicaSongModel{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ ports.SongReplicaRepository = (*songReplicaRepository)(nil)
