/*
errors.go - Centralized error types for the lending engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes; nothing in this package
  ever panics on a domain failure.

ERROR CATEGORIES:
  1. Not-found errors  - Missing book, borrower, or loan
  2. Domain errors     - Invariant violations (duplicate loan, no copies,
                         wrong loan state, fine already paid)
  3. Validation errors - Malformed input (due date out of bounds)
  4. Storage errors    - Infrastructure failure, retryable by the caller

USAGE:
  if errors.Is(err, lending.ErrDuplicateActiveLoan) {
      var dup *lending.DuplicateLoanError
      errors.As(err, &dup) // dup.ExistingLoanID names the conflict
  }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package lending

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBookNotFound is returned when no book matches the given ID.
	ErrBookNotFound = errors.New("book not found")

	// ErrBorrowerNotFound is returned when no borrower matches the given ID.
	ErrBorrowerNotFound = errors.New("borrower not found")

	// ErrLoanNotFound is returned when no loan matches the given ID.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrDuplicateActiveLoan is returned when the borrower already holds an
	// active loan for the same book. Central uniqueness invariant.
	ErrDuplicateActiveLoan = errors.New("borrower already has an active loan for this book")

	// ErrBookUnavailable is returned when no copies are left to lend.
	ErrBookUnavailable = errors.New("no copies available")

	// ErrLoanNotActive is returned when an operation requires an active loan
	// (e.g., returning a loan that is already completed or cancelled).
	ErrLoanNotActive = errors.New("loan is not active")

	// ErrFineAlreadyPaid is returned when paying a fine twice.
	ErrFineAlreadyPaid = errors.New("fine is already paid")

	// ErrStoreUnavailable is returned when storage failed or timed out.
	// Safe to retry after re-checking current state; issue/return are not
	// idempotent so callers must not blindly reapply.
	ErrStoreUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateLoanError identifies the conflicting loan on a duplicate issue.
type DuplicateLoanError struct {
	BookID         BookID
	BorrowerID     BorrowerID
	ExistingLoanID LoanID
	BookTitle      string
}

func (e *DuplicateLoanError) Error() string {
	if e.BookTitle != "" {
		return fmt.Sprintf("borrower %s already has %q on loan (loan: %s)",
			e.BorrowerID, e.BookTitle, e.ExistingLoanID)
	}
	return fmt.Sprintf("borrower %s already has book %s on loan (loan: %s)",
		e.BorrowerID, e.BookID, e.ExistingLoanID)
}

func (e *DuplicateLoanError) Unwrap() error {
	return ErrDuplicateActiveLoan
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DueDateError is a ValidationError variant carrying the allowed window.
type DueDateError struct {
	Requested time.Time
	Min       time.Time
	Max       time.Time
}

func (e *DueDateError) Error() string {
	return fmt.Sprintf("due date %s outside allowed window [%s, %s]",
		e.Requested.Format("2006-01-02"), e.Min.Format("2006-01-02"), e.Max.Format("2006-01-02"))
}

func (e *DueDateError) Unwrap() error {
	return &ValidationError{Field: "due_date", Message: "outside allowed window"}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrBorrowerNotFound) ||
		errors.Is(err, ErrLoanNotFound)
}

// IsClientError returns true if the error is due to invalid client input or
// a domain rule the caller violated.
func IsClientError(err error) bool {
	var ve *ValidationError
	var de *DueDateError
	return errors.Is(err, ErrDuplicateActiveLoan) ||
		errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrLoanNotActive) ||
		errors.Is(err, ErrFineAlreadyPaid) ||
		errors.As(err, &ve) ||
		errors.As(err, &de)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
