package recommender

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactMissing marks an artifact file that does not exist.
	// Non-fatal: the ranking source it backs degrades to empty.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrArtifactCorrupt marks an artifact that exists but cannot be
	// decoded. Treated the same as missing, logged as a warning.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrDimensionMismatch is returned when a query vector's length
	// disagrees with the loaded embedding matrix. Fatal to that call.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")
)

// LoadError wraps a failure to load one named artifact.
type LoadError struct {
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
