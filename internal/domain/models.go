package domain

import "time"

// User is the replica of an account owned by the users service.
type User struct {
	ID          string
	Email       string
	DisplayName string
	UpdatedAt   time.Time
}

func (u User) RecordID() string { return u.ID }

type UserPatch struct {
	Email       *string
	DisplayName *string
	UpdatedAt   time.Time
}

func (u *User) Apply(p UserPatch) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if !p.UpdatedAt.IsZero() {
		u.UpdatedAt = p.UpdatedAt
	}
}

type TranscodeStatus string

const (
	TranscodePending    TranscodeStatus = "pending"
	TranscodeProcessing TranscodeStatus = "processing"
	TranscodeCompleted  TranscodeStatus = "completed"
	TranscodeFailed     TranscodeStatus = "failed"
)

// Song is shared by the owner catalog and by song replicas in consuming
// services. StreamCount and LikeCount are analytics counters: events apply
// deltas, reconciliation overwrites them with the owner's absolute values.
type Song struct {
	ID              string
	Title           string
	ArtistID        string
	ArtistName      string
	Genre           string
	DurationSeconds int
	CoverURL        string
	HLSURL          string
	TranscodeStatus TranscodeStatus
	StreamCount     int64
	LikeCount       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Song) RecordID() string { return s.ID }

type SongPatch struct {
	Title           *string
	ArtistName      *string
	Genre           *string
	DurationSeconds *int
	CoverURL        *string
	HLSURL          *string
	TranscodeStatus *TranscodeStatus
	UpdatedAt       time.Time
}

func (p SongPatch) Empty() bool {
	return p.Title == nil && p.ArtistName == nil && p.Genre == nil && p.DurationSeconds == nil &&
		p.CoverURL == nil && p.HLSURL == nil && p.TranscodeStatus == nil
}

func (s *Song) Apply(p SongPatch) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.ArtistName != nil {
		s.ArtistName = *p.ArtistName
	}
	if p.Genre != nil {
		s.Genre = *p.Genre
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = *p.DurationSeconds
	}
	if p.CoverURL != nil {
		s.CoverURL = *p.CoverURL
	}
	if p.HLSURL != nil {
		s.HLSURL = *p.HLSURL
	}
	if p.TranscodeStatus != nil {
		s.TranscodeStatus = *p.TranscodeStatus
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
}

type Counter string

const (
	CounterStreams Counter = "stream_count"
	CounterLikes   Counter = "like_count"
)

// Checkpoint is the reconciliation watermark of one sync target.
type Checkpoint struct {
	Type       string
	LastSyncAt time.Time
}
