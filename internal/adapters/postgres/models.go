package postgres

import "time"

type replicaUserModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Email       string    `gorm:"column:email"`
	DisplayName string    `gorm:"column:display_name"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	SyncedAt    time.Time `gorm:"column:synced_at"`
}

func (replicaUserModel) TableName() string { return "replica_users" }

type SongColumns struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Title           string    `gorm:"column:title"`
	ArtistID        string    `gorm:"column:artist_id"`
	ArtistName      string    `gorm:"column:artist_name"`
	Genre           string    `gorm:"column:genre"`
	DurationSeconds int       `gorm:"column:duration_seconds"`
	CoverURL        string    `gorm:"column:cover_url"`
	HLSURL          string    `gorm:"column:hls_url"`
	TranscodeStatus string    `gorm:"column:transcode_status"`
	StreamCount     int64     `gorm:"column:stream_count"`
	LikeCount       int64     `gorm:"column:like_count"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

type replicaSongModel struct {
	SongColumns `gorm:"embedded"`
	SyncedAt    time.Time `gorm:"column:synced_at"`
}

func (replicaSongModel) TableName() string { return "replica_songs" }

type catalogSongModel struct {
	SongColumns `gorm:"embedded"`
}

func (catalogSongModel) TableName() string { return "catalog_songs" }

type checkpointModel struct {
	SyncType   string    `gorm:"column:sync_type;primaryKey"`
	LastSyncAt time.Time `gorm:"column:last_sync_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (checkpointModel) TableName() string { return "sync_checkpoints" }

type eventDedupModel struct {
	DedupKey  string    `gorm:"column:dedup_key;primaryKey"`
	EventType string    `gorm:"column:event_type"`
	ClaimedAt time.Time `gorm:"column:claimed_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (eventDedupModel) TableName() string { return "replica_event_dedup" }
