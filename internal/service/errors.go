package service

import (
	"errors"

	"github.com/iliyamo/admission-allocation/internal/checklist"
	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/lifecycle"
)

// Errors returned by AllocationService.  Every precondition failure has its
// own sentinel so callers can render an accurate message; match them with
// errors.Is.
var (
	// ErrValidation marks missing or malformed input.  Nothing is touched.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity that does not exist.  Stores
	// wrap it for missing rows.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAllocated is returned when the applicant already holds an admission.
	ErrAlreadyAllocated = errors.New("applicant already allocated")

	// ErrSeatUnavailable is returned when the requested quota is full.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrQuotaMismatch is returned under QuotaPolicyStrict when the requested
	// quota differs from the applicant's declared quota.
	ErrQuotaMismatch = errors.New("quota does not match declared quota")

	ErrInvalidTransition         = lifecycle.ErrInvalidTransition
	ErrInvalidDocumentTransition = checklist.ErrInvalidDocumentTransition
	ErrInvariantViolation        = ledger.ErrInvariantViolation
)

// Errors a Store reports.  They are translated into the caller-facing
// sentinels above and never escape the service unwrapped.
var (
	// ErrConflict marks a unique-key violation.
	ErrConflict = errors.New("unique constraint conflict")

	// ErrStaleRecord marks an optimistic version mismatch on save.
	ErrStaleRecord = errors.New("record changed concurrently")
)

// Kind classifies service errors for transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindCapacity
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// KindOf returns the category of err.  Invariant violations and unknown
// errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvariantViolation):
		return KindInternal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrQuotaMismatch):
		return KindValidation
	case errors.Is(err, ErrSeatUnavailable):
		return KindCapacity
	case errors.Is(err, ErrAlreadyAllocated),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidDocumentTransition):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// outcome turns an error into a low-cardinality metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrSeatUnavailable):
		return "seat_unavailable"
	case errors.Is(err, ErrAlreadyAllocated):
		return "already_allocated"
	case errors.Is(err, ErrQuotaMismatch):
		return "quota_mismatch"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidDocumentTransition):
		return "invalid_transition"
	}
	return KindOf(err).String()
}
