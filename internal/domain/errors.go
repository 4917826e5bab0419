package domain

import "errors"

// Sentinel errors shared across storage, cache and API layers. Wrap with
// fmt.Errorf("%w: ...") to add context; callers match with errors.Is.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
