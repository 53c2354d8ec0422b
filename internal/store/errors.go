package store

import "errors"

var (
	ErrInvalidTTL      = errors.New("ttl must be positive")
	ErrWriteFailed     = errors.New("storage write failed")
	ErrReadFailed      = errors.New("storage read failed")
	ErrAutosaveRunning = errors.New("autosave already running")
)
