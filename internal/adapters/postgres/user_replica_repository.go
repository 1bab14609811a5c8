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

type userReplicaRepository struct {
	db *gorm.DB
}

// BulkUpsert writes the whole batch as one INSERT ... ON CONFLICT (id)
// DO UPDATE statement.
func (r *userReplicaRepository) BulkUpsert(ctx context.Context, items []domain.User) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]replicaUserModel, 0, len(items))
	for _, item := range items {
		rows = append(rows, toUserModel(item, now))
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	return translate(err)
}

func (r *userReplicaRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&replicaUserModel{}).Order("id").Pluck("id", &ids).Error
	return ids, translate(err)
}

func (r *userReplicaRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for _, part := range chunk(ids, deleteChunkSize) {
		res := r.db.WithContext(ctx).Where("id IN ?", part).Delete(&replicaUserModel{})
		if res.Error != nil {
			return deleted, translate(res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

func (r *userReplicaRepository) Insert(ctx context.Context, user domain.User) error {
	row := toUserModel(user, time.Now().UTC())
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", domain.ErrConflict, user.ID)
		}
		return translate(err)
	}
	return nil
}

func (r *userReplicaRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	var row replicaUserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.User{}, translate(err)
	}
	return toDomainUser(row), nil
}

func (r *userReplicaRepository) Update(ctx context.Context, id string, patch domain.UserPatch) error {
	columns := userPatchColumns(patch)
	if len(columns) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	columns["synced_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&replicaUserModel{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userReplicaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&replicaUserModel{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

var _ ports.UserReplicaRepository = (*userReplicaRepository)(nil)
