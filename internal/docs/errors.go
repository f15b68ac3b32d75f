package docs

import "errors"

var (
	// ErrValidation covers bad or missing request fields, oversized files
	// and disallowed types. Rejected before any durable write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown documents or jobs.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned on ownership mismatch.
	ErrForbidden = errors.New("forbidden")
)
