package contracts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

type EventType string

const (
	UserCreated  EventType = "USER_CREATED"
	UserUpdated  EventType = "USER_UPDATED"
	UserDeleted  EventType = "USER_DELETED"
	SongCreated  EventType = "SONG_CREATED"
	SongUpdated  EventType = "SONG_UPDATED"
	SongDeleted  EventType = "SONG_DELETED"
	SongStreamed EventType = "SONG_STREAMED"
	SongLiked    EventType = "SONG_LIKED"
	SongUnliked  EventType = "SONG_UNLIKED"
)

type Metadata struct {
	CorrelationID string    `json:"correlationId"`
	Source        string    `json:"source"`
	SubjectID     string    `json:"subjectId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt,omitempty"`
}

// Envelope is the wire wrapper of every domain event. It is built once by
// the emitting service and never mutated afterwards; consumers may see the
// same envelope zero, one or many times.
type Envelope struct {
	EventType EventType       `json:"eventType"`
	EventID   string          `json:"eventId"`
	Data      json.RawMessage `json:"data"`
	Metadata  Metadata        `json:"metadata"`
}

// NewEventID derives the event id from type, subject and emission time.
// Redeliveries of one emission share an id; it is a dedup hint only.
func NewEventID(eventType EventType, subject string, at time.Time) string {
	return strings.ToLower(string(eventType)) + ":" + subject + ":" + strconv.FormatInt(at.UnixMilli(), 10)
}

func NewEnvelope(eventType EventType, subject string, data any, meta Metadata) (Envelope, error) {
	if !KnownEventType(string(eventType)) {
		return Envelope{}, fmt.Errorf("%w: %s", domain.ErrUnknownEvent, eventType)
	}
	if strings.TrimSpace(subject) == "" {
		return Envelope{}, fmt.Errorf("%w: event subject is required", domain.ErrInvalidInput)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode event data: %v", domain.ErrInvalidInput, err)
	}
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = time.Now().UTC()
	}
	meta.SubjectID = subject
	return Envelope{
		EventType: eventType,
		EventID:   NewEventID(eventType, subject, meta.OccurredAt),
		Data:      raw,
		Metadata:  meta,
	}, nil
}

func (e Envelope) Validate() error {
	if !KnownEventType(string(e.EventType)) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEvent, e.EventType)
	}
	if strings.TrimSpace(e.EventID) == "" || strings.TrimSpace(e.Metadata.Source) == "" {
		return fmt.Errorf("%w: event id and source are required", domain.ErrInvalidInput)
	}
	return nil
}

func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", domain.ErrInvalidInput, e.EventType)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", domain.ErrInvalidInput, e.EventType, err)
	}
	return nil
}

func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode envelope: %v", domain.ErrInvalidInput, err)
	}
	return e, nil
}
