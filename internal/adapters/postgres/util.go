package postgres

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/groovy/replicasync/internal/domain"
)

const deleteChunkSize = 500

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// translate maps driver failures onto domain errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
}

func counterColumn(counter domain.Counter) (string, error) {
	switch counter {
	case domain.CounterStreams, domain.CounterLikes:
		return string(counter), nil
	default:
		return "", fmt.Errorf("%w: unknown counter %q", domain.ErrInvalidInput, counter)
	}
}

func chunk(ids []string, size int) [][]string {
	out := make([][]string, 0, len(ids)/size+1)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
