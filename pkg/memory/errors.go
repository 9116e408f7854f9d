package memory

import "errors"

var (
	// ErrProfileNotFound indicates no profile exists for a user id.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrExtractionSkipped indicates the extraction trigger conditions were
	// not met or another extraction for the same user is already running.
	ErrExtractionSkipped = errors.New("extraction skipped")
)
