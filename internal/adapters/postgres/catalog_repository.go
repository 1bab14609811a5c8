package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type songCatalogRepository struct {
	db *gorm.DB
}

func (r *songCatalogRepository) Create(ctx context.Context, song domain.Song) error {
	row := catalogSongModel{SongColumns: toSongColumns(song)}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: song %s already exists", domain.ErrConflict, song.ID)
		}
		return translate(err)
	}
	return nil
}

func (r *songCatalogRepository) GetByID(ctx context.Context, id string) (domain.Song, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *songCatalogRepository) get(tx *gorm.DB, id string) (domain.Song, error) {
	var row catalogSongModel
	if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Song{}, translate(err)
	}
	return toDomainSong(row.SongColumns), nil
}

func (r *songCatalogRepository) Update(ctx context.Context, id string, patch domain.SongPatch) (domain.Song, error) {
	var out domain.Song
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		columns := songPatchColumns(patch)
		if len(columns) > 0 {
			res := tx.Model(&catalogSongModel{}).Where("id = ?", id).Updates(columns)
			if res.Error != nil {
				return translate(res.Error)
			}
			if res.RowsAffected == 0 {
				return domain.ErrNotFound
			}
		}
		song, err := r.get(tx, id)
		if err != nil {
			return err
		}
		out = song
		return nil
	})
	return out, err
}

func (r *songCatalogRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&catalogSongModel{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Increment also moves updated_at so that the next incremental sync hands
// the new counter values to every replica.
func (r *songCatalogRepository) Increment(ctx context.Context, id string, counter domain.Counter, delta int64, at time.Time) (domain.Song, error) {
	column, err := counterColumn(counter)
	if err != nil {
		return domain.Song{}, err
	}
	var out domain.Song
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&catalogSongModel{}).Where("id = ?", id).Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", delta),
			"updated_at": at.UTC(),
		})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		song, err := r.get(tx, id)
		if err != nil {
			return err
		}
		out = song
		return nil
	})
	return out, err
}

func (r *songCatalogRepository) ListChangedSince(ctx context.Context, since *time.Time, offset, limit int) ([]domain.Song, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&catalogSongModel{})
		if since != nil {
			q = q.Where("updated_at >= ?", since.UTC())
		}
		return q
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var rows []catalogSongModel
	if err := scope().Order("updated_at asc, id asc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, translate(err)
	}
	out := make([]domain.Song, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainSong(row.SongColumns))
	}
	return out, total, nil
}

func (r *songCatalogRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&catalogSongModel{}).Order("id").Pluck("id", &ids).Error
	return ids, translate(err)
}

var _ ports.SongCatalogRepository = (*songCatalogRepository)(nil)
