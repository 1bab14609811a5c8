package contracts

import "time"

type UserPayload struct {
	ID          string    `json:"_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserUpdate carries only the fields that changed.
type UserUpdate struct {
	ID          string    `json:"_id"`
	Email       *string   `json:"email,omitempty"`
	DisplayName *string   `json:"displayName,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type UserRef struct {
	ID string `json:"_id"`
}

type SongPayload struct {
	ID              string    `json:"_id"`
	Title           string    `json:"title"`
	ArtistID        string    `json:"artistId"`
	ArtistName      string    `json:"artistName"`
	Genre           string    `json:"genre,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`
	CoverURL        string    `json:"coverUrl,omitempty"`
	HLSURL          string    `json:"hlsUrl,omitempty"`
	TranscodeStatus string    `json:"transcodeStatus"`
	StreamCount     int64     `json:"streamCount"`
	LikeCount       int64     `json:"likeCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SongUpdate struct {
	ID              string    `json:"_id"`
	Title           *string   `json:"title,omitempty"`
	ArtistName      *string   `json:"artistName,omitempty"`
	Genre           *string   `json:"genre,omitempty"`
	DurationSeconds *int      `json:"durationSeconds,omitempty"`
	CoverURL        *string   `json:"coverUrl,omitempty"`
	HLSURL          *string   `json:"hlsUrl,omitempty"`
	TranscodeStatus *string   `json:"transcodeStatus,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SongRef struct {
	ID string `json:"_id"`
}

// SongStreamedPayload and SongReaction carry a per-action id minted by the
// owner. Replicas deduplicate counter deltas on it; two actions never share
// one even when their envelopes do.
type SongStreamedPayload struct {
	StreamID   string    `json:"streamId"`
	SongID     string    `json:"songId"`
	UserID     string    `json:"userId,omitempty"`
	StreamedAt time.Time `json:"streamedAt"`
}

type SongReaction struct {
	ReactionID string `json:"reactionId"`
	SongID     string `json:"songId"`
	UserID     string `json:"userId"`
}
