package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict is a generic sentinel for state conflicts (duplicate slug, busy document).
	ErrConflict = errors.New("conflict")
)

// ExtractionError marks a failure to pull usable text out of a source file.
// Never retried: the bytes will not change.
type ExtractionError struct {
	Source string // object key or local path
	Mime   string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s (%s): %v", e.Source, e.Mime, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProcessingError marks structural pipeline failures (bad chunk params, empty
// input, zero chunks produced). Never retried.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// EmbeddingError marks a single chunk that could not be embedded after the
// batch call and its per-item fallback both failed.
type EmbeddingError struct {
	ChunkIndex int
	Err        error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DatabaseError wraps persistence failures that exhausted their retries.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// PartialFailureError reports an operation where some items succeeded and some
// did not. Callers decide whether the success ratio is acceptable.
type PartialFailureError struct {
	Op        string
	Succeeded int
	Failed    int
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially failed: %d succeeded, %d failed: %v", e.Op, e.Succeeded, e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// SuccessRate is in [0, 1]; an empty operation counts as fully failed.
func (e *PartialFailureError) SuccessRate() float64 {
	total := e.Succeeded + e.Failed
	if total == 0 {
		return 0
	}
	return float64(e.Succeeded) / float64(total)
}
