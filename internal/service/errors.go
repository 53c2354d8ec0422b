package service

import "errors"

var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidValue   = errors.New("value must be valid JSON")
	ErrInvalidForm    = errors.New("form must be 1 or 2")
	ErrDraftNotOpen   = errors.New("draft is not open")
	ErrServiceClosing = errors.New("service is shutting down")
)
