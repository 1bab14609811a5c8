package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS sync_checkpoints (
	sync_type TEXT PRIMARY KEY,
	last_sync_at_utc_ns INTEGER NOT NULL,
	updated_at_utc_ns INTEGER NOT NULL
);
`

// CheckpointStore keeps reconciliation watermarks in a local SQLite file,
// for replicas whose main store cannot hold them.
type CheckpointStore struct {
	db *sql.DB
}

func OpenCheckpointStore(ctx context.Context, path string) (*CheckpointStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		checkpointSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init checkpoint store: %w", err)
		}
	}
	return &CheckpointStore{db: db}, nil
}

func (s *CheckpointStore) Get(ctx context.Context, syncType string) (domain.Checkpoint, error) {
	var lastSyncNs int64
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_at_utc_ns FROM sync_checkpoints WHERE sync_type = ?`, syncType).Scan(&lastSyncNs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("%w: read checkpoint: %v", domain.ErrStorageUnavailable, err)
	}
	return domain.Checkpoint{Type: syncType, LastSyncAt: time.Unix(0, lastSyncNs).UTC()}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, checkpoint domain.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_checkpoints (sync_type, last_sync_at_utc_ns, updated_at_utc_ns)
VALUES (?, ?, ?)
ON CONFLICT(sync_type) DO UPDATE SET
	last_sync_at_utc_ns = excluded.last_sync_at_utc_ns,
	updated_at_utc_ns = excluded.updated_at_utc_ns`,
		checkpoint.Type, checkpoint.LastSyncAt.UTC().UnixNano(), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: save checkpoint: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CheckpointStore) Delete(ctx context.Context, syncType string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_checkpoints WHERE sync_type = ?`, syncType); err != nil {
		return fmt.Errorf("%w: delete checkpoint: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

var _ ports.CheckpointRepository = (*CheckpointStore)(nil)
