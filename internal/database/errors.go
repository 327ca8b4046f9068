package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers that need to branch on them
// (HTTP status mapping, CLI messages, metrics labels).
type ErrorKind string

const (
	KindUnknown              ErrorKind = "unknown"
	KindValidation           ErrorKind = "validation"
	KindNotFound             ErrorKind = "not_found"
	KindReferentialViolation ErrorKind = "referential_violation"
	KindUniqueConstraint     ErrorKind = "unique_constraint_violation"
	KindDuplicateAttendance  ErrorKind = "duplicate_attendance"
	KindDimensionMismatch    ErrorKind = "dimension_mismatch"
	KindStorageUnavailable   ErrorKind = "storage_unavailable"
	KindNoMatch              ErrorKind = "no_match"
	KindAmbiguousMatch       ErrorKind = "ambiguous_match"
	KindCaptureFailed        ErrorKind = "capture_failed"
	KindExtractionFailed     ErrorKind = "extraction_failed"
	KindCanceled             ErrorKind = "canceled"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrReferentialViolation = errors.New("referential violation")
	ErrUniqueConstraint     = errors.New("unique constraint violation")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrNoMatch              = errors.New("no matching student")
	ErrAmbiguousMatch       = errors.New("ambiguous match")
	ErrCaptureFailed        = errors.New("capture failed")
	ErrExtractionFailed     = errors.New("embedding extraction failed")

	// ErrDuplicateAttendance is a unique constraint violation on (class, student, date).
	ErrDuplicateAttendance = fmt.Errorf("attendance already recorded: %w", ErrUniqueConstraint)

	// ErrDimensionMismatch is a validation error for vectors of the wrong length.
	ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch: %w", ErrValidation)
)

// kindOrder lists sentinels from most to least specific.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrDuplicateAttendance, KindDuplicateAttendance},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrUniqueConstraint, KindUniqueConstraint},
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrReferentialViolation, KindReferentialViolation},
	{ErrNoMatch, KindNoMatch},
	{ErrAmbiguousMatch, KindAmbiguousMatch},
	{ErrCaptureFailed, KindCaptureFailed},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// KindOf returns the most specific ErrorKind found in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsRetryable reports whether a caller may retry the operation that produced err.
// Retrying RecordAttendance is always safe: a duplicate is rejected, not double-written.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Invalid builds a validation error with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
