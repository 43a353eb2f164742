/*
engine.go - Lending workflow engine

PURPOSE:
  Orchestrates issue/return/fine operations against the catalog and the loan
  ledger under the domain invariants. This is the only code that mutates
  loan records or availability counters.

OPERATIONS:
  IssueBook       Create an active loan, reserve a copy
  ReturnBook      Complete a loan, compute the fine, release the copy
  CalculateFine   Read-only live fine for display/audit
  PayFine         Settle a fine (recomputing first if still accruing)
  ListUnpaidFines Borrower's outstanding fines with a live total
  ActiveLoans / BorrowerLoans / BookStatus / OverdueLoans  Read views

INVARIANTS ENFORCED HERE:
  - At most one active loan per (book, borrower): checked before insert and
    backed by the store's uniqueness constraint, so two racing issues cannot
    both commit.
  - available never goes below 0 (conditional decrement) or above
    totalCopies (capped increment on return).
  - Loan state machine: active -> completed | cancelled, terminal thereafter.

ATOMICITY:
  Every mutating operation runs inside store.WithTx. The loan write and the
  counter update commit together or not at all.

TIMEOUTS:
  Each operation gets a bounded deadline. Deadline and storage failures
  surface as ErrStoreUnavailable; callers may retry after re-checking state
  (issue/return are not idempotent).

SEE ALSO:
  - fine.go:    The pure fine policy applied here
  - catalog.go: Catalog edits that must preserve the availability invariant
  - store.go:   Persistence contract
*/
package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Policy       LoanPolicy
	StoreTimeout time.Duration
	Clock        func() time.Time
}

const defaultStoreTimeout = 5 * time.Second

// Engine executes lending workflow operations. Safe for concurrent use; all
// per-record serialization lives in the store's conditional updates and
// transactions, not in engine state.
type Engine struct {
	store        TxStore
	policy       LoanPolicy
	storeTimeout time.Duration
	clock        func() time.Time
}

// NewEngine creates a workflow engine over the given store.
func NewEngine(store TxStore, cfg Config) *Engine {
	e := &Engine{
		store:        store,
		policy:       cfg.Policy,
		storeTimeout: cfg.StoreTimeout,
		clock:        cfg.Clock,
	}
	if e.policy.MinLoanDays == 0 && e.policy.MaxLoanDays == 0 {
		e.policy = DefaultLoanPolicy()
	}
	if e.storeTimeout == 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// opCtx bounds a single operation against the store.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

// storeErr translates infrastructure failures into the retryable class.
// Domain errors pass through untouched.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// =============================================================================
// ISSUE
// =============================================================================

// IssueBook lends one copy of a book to a borrower until dueDate.
// The availability check-and-decrement and the loan insert commit atomically.
func (e *Engine) IssueBook(ctx context.Context, borrowerID BorrowerID, bookID BookID, dueDate time.Time) (*Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	now := e.clock()
	if err := e.validateDueDate(now, dueDate); err != nil {
		return nil, err
	}

	var loan *Loan
	err := e.store.WithTx(ctx, func(s Store) error {
		borrower, err := s.GetBorrower(ctx, borrowerID)
		if err != nil {
			return err
		}
		if borrower == nil {
			return ErrBorrowerNotFound
		}

		book, err := s.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return ErrBookNotFound
		}

		// Fast-path check; the store's unique active-loan constraint is the
		// authoritative guard when two issues race.
		existing, err := s.FindActiveLoan(ctx, bookID, borrowerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateLoanError{
				BookID:         bookID,
				BorrowerID:     borrowerID,
				ExistingLoanID: existing.ID,
				BookTitle:      book.Title,
			}
		}

		applied, err := s.ReserveCopy(ctx, bookID)
		if err != nil {
			return err
		}
		if !applied {
			return ErrBookUnavailable
		}

		l := Loan{
			ID:         LoanID(uuid.NewString()),
			BookID:     bookID,
			BorrowerID: borrowerID,
			Status:     LoanActive,
			IssueDate:  now,
			DueDate:    dueDate,
			Fine:       Fine{Amount: decimal.Zero},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.CreateLoan(ctx, l); err != nil {
			// A racing issue slipped past the existence check and the
			// constraint fired; report the conflict, rollback undoes the
			// reservation.
			if errors.Is(err, ErrDuplicateActiveLoan) {
				dup := &DuplicateLoanError{
					BookID:     bookID,
					BorrowerID: borrowerID,
					BookTitle:  book.Title,
				}
				if winner, ferr := s.FindActiveLoan(ctx, bookID, borrowerID); ferr == nil && winner != nil {
					dup.ExistingLoanID = winner.ID
				}
				return dup
			}
			return err
		}

		book.Available-- // reflect the reservation in the joined copy
		l.Book = book
		l.Borrower = borrower
		loan = &l
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return loan, nil
}

func (e *Engine) validateDueDate(now, dueDate time.Time) error {
	if !dueDate.After(now) {
		return &ValidationError{Field: "due_date", Message: "must be in the future"}
	}
	min := now.Add(time.Duration(e.policy.MinLoanDays) * day)
	max := now.Add(time.Duration(e.policy.MaxLoanDays) * day)
	if dueDate.Before(min) || dueDate.After(max) {
		return &DueDateError{Requested: dueDate, Min: min, Max: max}
	}
	return nil
}

// =============================================================================
// RETURN
// =============================================================================

// ReturnBook completes an active loan: records the return, computes the fine
// as of now, and releases the copy back to the catalog.
func (e *Engine) ReturnBook(ctx context.Context, loanID LoanID, actorID BorrowerID) (*Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	now := e.clock()

	var loan *Loan
	err := e.store.WithTx(ctx, func(s Store) error {
		l, err := s.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrLoanNotFound
		}
		if l.Status != LoanActive {
			return fmt.Errorf("%w: loan %s is %s", ErrLoanNotActive, l.ID, l.Status)
		}

		cfg := e.fineConfig(ctx, s)
		ret := now

		l.Status = LoanCompleted
		l.ReturnDate = &ret
		l.ReturnedTo = actorID
		// Return is the authoritative fine-calculation moment; a fresh
		// return always resets paid state.
		l.Fine = Fine{Amount: ComputeFine(l.DueDate, now, cfg), IsPaid: false}
		l.UpdatedAt = now

		if err := s.UpdateLoan(ctx, *l); err != nil {
			return err
		}
		// Capped at totalCopies in case the catalog was edited inconsistently
		// while the copy was out.
		if err := s.ReleaseCopy(ctx, l.BookID); err != nil {
			return err
		}

		loan = l
		return e.attachDetails(ctx, s, loan)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return loan, nil
}

// =============================================================================
// FINES
// =============================================================================

// CalculateFine returns what the fine would be right now, without persisting
// anything. Non-active loans report zero; their settled amount lives on the
// loan record itself.
func (e *Engine) CalculateFine(ctx context.Context, loanID LoanID) (decimal.Decimal, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, storeErr(err)
	}
	if loan == nil {
		return decimal.Zero, ErrLoanNotFound
	}
	if loan.Status != LoanActive {
		return decimal.Zero, nil
	}

	cfg := e.fineConfig(ctx, e.store)
	return ComputeFine(loan.DueDate, e.clock(), cfg), nil
}

// PayFine settles a loan's fine. If the loan is still active the fine is
// recomputed first, so paying an overdue-and-unreturned loan settles the
// amount owed at the moment of payment.
func (e *Engine) PayFine(ctx context.Context, loanID LoanID) (*Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	now := e.clock()

	var loan *Loan
	err := e.store.WithTx(ctx, func(s Store) error {
		l, err := s.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrLoanNotFound
		}
		if l.Fine.IsPaid {
			return ErrFineAlreadyPaid
		}

		if l.Status == LoanActive {
			cfg := e.fineConfig(ctx, s)
			l.Fine.Amount = ComputeFine(l.DueDate, now, cfg)
		}

		paid := now
		l.Fine.IsPaid = true
		l.Fine.PaidDate = &paid
		l.UpdatedAt = now

		if err := s.UpdateLoan(ctx, *l); err != nil {
			return err
		}
		loan = l
		return e.attachDetails(ctx, s, loan)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return loan, nil
}

// UnpaidFines is a borrower's outstanding fines with the live total.
type UnpaidFines struct {
	Total decimal.Decimal
	Loans []Loan
}

// ListUnpaidFines returns the borrower's loans carrying an unpaid positive
// fine. Still-active loans are recomputed live so the total reflects current
// accrual, not a stale stored value; completed loans keep their settled
// amount.
func (e *Engine) ListUnpaidFines(ctx context.Context, borrowerID BorrowerID) (*UnpaidFines, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	loans, err := e.store.ListLoans(ctx, LoanFilter{BorrowerID: borrowerID, UnpaidFine: true})
	if err != nil {
		return nil, storeErr(err)
	}

	now := e.clock()
	cfg := e.fineConfig(ctx, e.store)

	out := &UnpaidFines{Total: decimal.Zero}
	for _, l := range loans {
		if l.Status == LoanActive {
			l.Fine.Amount = ComputeFine(l.DueDate, now, cfg)
		}
		if !l.Fine.Amount.IsPositive() {
			continue
		}
		if err := e.attachDetails(ctx, e.store, &l); err != nil {
			return nil, storeErr(err)
		}
		out.Total = out.Total.Add(l.Fine.Amount)
		out.Loans = append(out.Loans, l)
	}
	return out, nil
}

// fineConfig loads the stored config, falling back to the documented defaults
// when missing or invalid. Fine computation never fails for a valid loan.
func (e *Engine) fineConfig(ctx context.Context, s Store) FineConfig {
	cfg, err := s.GetFineConfig(ctx)
	if err != nil || cfg == nil || !cfg.Valid() {
		return DefaultFineConfig()
	}
	return *cfg
}

// FineConfig returns the effective fine configuration.
func (e *Engine) FineConfig(ctx context.Context) (FineConfig, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.fineConfig(ctx, e.store), nil
}

// UpdateFineConfig replaces the fine configuration. Authorization of the
// actor is the caller's concern.
func (e *Engine) UpdateFineConfig(ctx context.Context, cfg FineConfig, actor BorrowerID) (FineConfig, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if !cfg.Valid() {
		return FineConfig{}, &ValidationError{Field: "fine_config", Message: "rate, grace period and cap must be non-negative"}
	}
	cfg.UpdatedAt = e.clock()
	cfg.UpdatedBy = actor
	if err := e.store.SaveFineConfig(ctx, cfg); err != nil {
		return FineConfig{}, storeErr(err)
	}
	return cfg, nil
}

// =============================================================================
// READ VIEWS
// =============================================================================

// ActiveLoans returns every active loan with display joins (librarian view).
func (e *Engine) ActiveLoans(ctx context.Context) ([]Loan, error) {
	return e.listWithDetails(ctx, LoanFilter{Status: LoanActive})
}

// BorrowerLoans returns a borrower's loan history, optionally filtered by
// status, newest issue first.
func (e *Engine) BorrowerLoans(ctx context.Context, borrowerID BorrowerID, status LoanStatus) ([]Loan, error) {
	return e.listWithDetails(ctx, LoanFilter{BorrowerID: borrowerID, Status: status})
}

// BookStatus reports whether the borrower currently holds the book.
func (e *Engine) BookStatus(ctx context.Context, bookID BookID, borrowerID BorrowerID) (*Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	loan, err := e.store.FindActiveLoan(ctx, bookID, borrowerID)
	if err != nil {
		return nil, storeErr(err)
	}
	if loan == nil {
		return nil, nil
	}
	if err := e.attachDetails(ctx, e.store, loan); err != nil {
		return nil, storeErr(err)
	}
	return loan, nil
}

// OverdueLoans returns active loans past due as of the given instant, with
// live fine amounts. Feeds the reminder flow; delivery is external.
func (e *Engine) OverdueLoans(ctx context.Context, asOf time.Time) ([]Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	loans, err := e.store.ListLoans(ctx, LoanFilter{Status: LoanActive, DueBefore: &asOf})
	if err != nil {
		return nil, storeErr(err)
	}

	cfg := e.fineConfig(ctx, e.store)
	for i := range loans {
		loans[i].Fine.Amount = ComputeFine(loans[i].DueDate, asOf, cfg)
		if err := e.attachDetails(ctx, e.store, &loans[i]); err != nil {
			return nil, storeErr(err)
		}
	}
	return loans, nil
}

func (e *Engine) listWithDetails(ctx context.Context, f LoanFilter) ([]Loan, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	loans, err := e.store.ListLoans(ctx, f)
	if err != nil {
		return nil, storeErr(err)
	}
	for i := range loans {
		if err := e.attachDetails(ctx, e.store, &loans[i]); err != nil {
			return nil, storeErr(err)
		}
	}
	return loans, nil
}

// attachDetails fills the display-time Book and Borrower joins.
func (e *Engine) attachDetails(ctx context.Context, s Store, l *Loan) error {
	if l.Book == nil {
		book, err := s.GetBook(ctx, l.BookID)
		if err != nil {
			return err
		}
		l.Book = book
	}
	if l.Borrower == nil {
		borrower, err := s.GetBorrower(ctx, l.BorrowerID)
		if err != nil {
			return err
		}
		l.Borrower = borrower
	}
	return nil
}
