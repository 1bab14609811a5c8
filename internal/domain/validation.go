package domain

import (
	"fmt"
	"strings"
)

func ParseTranscodeStatus(v string) (TranscodeStatus, error) {
	switch TranscodeStatus(strings.ToLower(strings.TrimSpace(v))) {
	case TranscodeProcessing:
		return TranscodeProcessing, nil
	case TranscodeCompleted:
		return TranscodeCompleted, nil
	case TranscodeFailed:
		return TranscodeFailed, nil
	default:
		return "", fmt.Errorf("%w: unsupported transcode status %q", ErrInvalidInput, v)
	}
}

func ValidateSong(s Song) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: song id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: song title is required", ErrInvalidInput)
	}
	if s.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration must be >= 0", ErrInvalidInput)
	}
	return nil
}

func ValidateUser(u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return nil
}
