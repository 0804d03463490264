package domain

import "errors"

// Sentinel errors shared across repository and service layers.
// Repositories translate driver-level conditions (sql.ErrNoRows, missing
// relations) into these so handlers can map them to HTTP statuses.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)
