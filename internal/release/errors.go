package release

import "errors"

var (
	// ErrNotFound indicates a listing was fetched but nothing in it satisfied
	// the recognizer, predicate or filename matcher.
	ErrNotFound = errors.New("not found")

	// ErrNoAvailableRelease indicates a fallback walk tried every candidate
	// release without the probe succeeding.
	ErrNoAvailableRelease = errors.New("no available release")

	// ErrMalformedRecord indicates a recognized entry whose numeric fields
	// could not be parsed.
	ErrMalformedRecord = errors.New("malformed version record")

	// ErrInvalidTemplate indicates a filename template without exactly one
	// version placeholder.
	ErrInvalidTemplate = errors.New("invalid filename template")
)
