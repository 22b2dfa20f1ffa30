package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the pipeline wraps exactly one of these,
// so callers can branch with errors.Is while the underlying cause stays attached.
var (
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrIndexProvisioning = errors.New("index provisioning error")
	ErrIndexWrite        = errors.New("index write error")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIndexQuery        = errors.New("index query error")
	ErrRetrieval         = errors.New("retrieval error")
	ErrGenerationService = errors.New("generation service error")
	ErrExtraction        = errors.New("extraction error")
)

// Wrap tags cause with kind and an operation label. It returns nil when cause is nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, op, cause)
}

// IsRetryable reports whether err stems from a remote service that might succeed on a later attempt.
// Nothing in this module retries; the flag is surfaced to callers.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrExtraction):
		return false
	case errors.Is(err, ErrEmbeddingService),
		errors.Is(err, ErrIndexWrite),
		errors.Is(err, ErrIndexQuery),
		errors.Is(err, ErrIndexProvisioning),
		errors.Is(err, ErrGenerationService),
		errors.Is(err, ErrRetrieval):
		return true
	}
	return false
}
