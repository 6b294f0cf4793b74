package models

import "fmt"

// ErrorKind is a stable, human-reportable error classification (spec §7).
type ErrorKind string

const (
	ErrStorage    ErrorKind = "storage"
	ErrIndexing   ErrorKind = "indexing"
	ErrSearch     ErrorKind = "search"
	ErrEmbedding  ErrorKind = "embedding"
	ErrExtraction ErrorKind = "extraction"
	ErrCancelled  ErrorKind = "cancelled"
	ErrTimeout    ErrorKind = "timeout"
	ErrNotFound   ErrorKind = "not_found"
	ErrValidation ErrorKind = "validation"
)

// CoreError is the single error type returned across component boundaries.
// Component is an optional sub-system tag (e.g. "semantic") used for
// degradation reporting (spec §7, Hybrid-falls-back-to-FullText case).
type CoreError struct {
	Kind        ErrorKind
	Component   string
	Recoverable bool
	Message     string
	Cause       error
}

func (e *CoreError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Component, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// NewCoreError builds a CoreError wrapping cause, formatting Message with fmt.Sprintf.
func NewCoreError(kind ErrorKind, cause error, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound returns a CoreError{Kind: NotFound} for the given entity/id.
func NotFound(entity, id string) *CoreError {
	return &CoreError{Kind: ErrNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}
