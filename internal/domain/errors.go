package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrUnknownEvent          = errors.New("unknown event type")
	ErrRunInProgress         = errors.New("sync run in progress")
)
