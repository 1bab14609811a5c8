package contracts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/groovy/replicasync/internal/domain"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderService   = "X-Service"
)

// TranscodeCallback is the status a transcoding worker pushes for a song.
type TranscodeCallback struct {
	SubjectID       string `json:"subjectId"`
	Status          string `json:"status"`
	HLSURL          string `json:"hlsUrl,omitempty"`
	DurationSeconds *int   `json:"durationSeconds,omitempty"`
	Error           string `json:"error,omitempty"`
}

func DecodeTranscodeCallback(raw []byte) (TranscodeCallback, error) {
	var cb TranscodeCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return TranscodeCallback{}, fmt.Errorf("%w: invalid json body", domain.ErrInvalidInput)
	}
	cb.SubjectID = strings.TrimSpace(cb.SubjectID)
	cb.Status = strings.TrimSpace(cb.Status)
	if cb.SubjectID == "" || cb.Status == "" {
		return TranscodeCallback{}, fmt.Errorf("%w: subjectId and status are required", domain.ErrInvalidInput)
	}
	return cb, nil
}
