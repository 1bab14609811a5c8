package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type checkpointRepository struct {
	db *gorm.DB
}

func (r *checkpointRepository) Get(ctx context.Context, syncType string) (domain.Checkpoint, error) {
	var row checkpointModel
	if err := r.db.WithContext(ctx).Where("sync_type = ?", syncType).Take(&row).Error; err != nil {
		return domain.Checkpoint{}, translate(err)
	}
	return domain.Checkpoint{Type: row.SyncType, LastSyncAt: row.LastSyncAt.UTC()}, nil
}

func (r *checkpointRepository) Save(ctx context.Context, checkpoint domain.Checkpoint) error {
	row := checkpointModel{
		SyncType:   checkpoint.Type,
		LastSyncAt: checkpoint.LastSyncAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sync_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sync_at", "updated_at"}),
		}).
		Create(&row).Error
	return translate(err)
}

func (r *checkpointRepository) Delete(ctx context.Context, syncType string) error {
	return translate(r.db.WithContext(ctx).Where("sync_type = ?", syncType).Delete(&checkpointModel{}).Error)
}

var _ ports.CheckpointRepository = (*checkpointRepository)(nil)
