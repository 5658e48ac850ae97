package report

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the input root does not exist. It aborts the run.
var ErrNotFound = errors.New("not found")

// FailureKind names a failure category in the run summary.
type FailureKind string

const (
	KindNotFound   FailureKind = "NotFoundError"
	KindExtraction FailureKind = "ExtractionError"
	KindGeneration FailureKind = "GenerationError"
	KindValidation FailureKind = "ValidationError"
	KindOther      FailureKind = "Error"
)

// ExtractionReason distinguishes unreadable files from protected ones.
type ExtractionReason string

const (
	ReasonCorrupt   ExtractionReason = "corrupt"
	ReasonEncrypted ExtractionReason = "encrypted"
)

// ExtractionError means a PDF could not be turned into text. The file is skipped.
type ExtractionError struct {
	Path   string
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationError means a chunk produced no usable response after retries.
type GenerationError struct {
	Source  string
	ChunkID int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s chunk %d: %v", e.Source, e.ChunkID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError describes a generated record with the wrong shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

// KindOf maps an error to its summary category.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var (
		extErr *ExtractionError
		genErr *GenerationError
		valErr *ValidationError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &extErr):
		return KindExtraction
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &genErr):
		return KindGeneration
	}
	return KindOther
}
