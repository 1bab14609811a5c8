package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/groovy/replicasync/internal/ports"
)

type eventDedupRepository struct {
	db *gorm.DB
}

// Claim inserts the key, or takes over an expired row for it, in a single
// statement. A live row leaves the insert without effect.
func (r *eventDedupRepository) Claim(ctx context.Context, key, eventType string, now, expiresAt time.Time) (bool, error) {
	row := eventDedupModel{
		DedupKey:  key,
		EventType: eventType,
		ClaimedAt: now.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"event_type", "claimed_at", "expires_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "replica_event_dedup.expires_at <= ?", Vars: []any{now.UTC()}},
			}},
		}).
		Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *eventDedupRepository) Release(ctx context.Context, key string) error {
	return translate(r.db.WithContext(ctx).Where("dedup_key = ?", key).Delete(&eventDedupModel{}).Error)
}

var _ ports.EventDedupRepository = (*eventDedupRepository)(nil)
