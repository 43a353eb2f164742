/*
Package lending implements the book-lending workflow for the library backend.

PURPOSE:
  This package contains the domain model and the workflow engine for the
  lending lifecycle: issuing a book to a borrower, returning it, and
  calculating and settling overdue fines.

KEY CONCEPTS IN THIS FILE (types.go):
  - Book: A catalog record with copy counts (total vs currently available)
  - Borrower: An identity record, consumed for identity checks and display
  - Loan: One borrowed copy, from issue to return, with its fine state
  - FineConfig: The configurable overdue-fine parameters
  - LoanPolicy: Bounds on how far out a due date may be requested

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for money, never float64
  2. Type Safety: Strong typing for IDs prevents mixing book/borrower/loan IDs
  3. Referential integrity: Loans reference Book and Borrower by ID only;
     joined copies are attached at display time and never persisted

INVARIANTS:
  - 0 <= Book.Available <= Book.TotalCopies
  - TotalCopies - Available equals the count of Active loans on the book
  - At most one Active loan exists per (book, borrower) pair

SEE ALSO:
  - engine.go: Workflow operations enforcing the invariants
  - fine.go:   Pure overdue-fine policy
  - store.go:  Persistence interfaces
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookID string
type BorrowerID string
type LoanID string

// =============================================================================
// BOOK - Catalog record with copy counts
// =============================================================================

type Book struct {
	ID          BookID
	Title       string
	Author      string
	ISBN        string
	Category    string
	Description string
	TotalCopies int
	Available   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// BORROWER - Identity record (directory entry)
// =============================================================================

type Role string

const (
	RolePatron    Role = "patron"
	RoleLibrarian Role = "librarian"
)

type Borrower struct {
	ID        BorrowerID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// =============================================================================
// LOAN - One borrowed copy, issue through return
// =============================================================================

type LoanStatus string

const (
	LoanActive    LoanStatus = "active"    // Copy is out with the borrower
	LoanCompleted LoanStatus = "completed" // Returned; terminal
	LoanCancelled LoanStatus = "cancelled" // Administratively voided; terminal
)

// Fine is the overdue-penalty state attached to a loan.
// Amount is authoritative once the loan completes; while the loan is still
// active it is a running figure refreshed by the engine on read.
type Fine struct {
	Amount   decimal.Decimal
	IsPaid   bool
	PaidDate *time.Time
}

type Loan struct {
	ID         LoanID
	BookID     BookID
	BorrowerID BorrowerID
	Status     LoanStatus
	IssueDate  time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	ReturnedTo BorrowerID // Actor who accepted the return
	Fine       Fine
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Display-time joins, populated by the engine, never persisted.
	Book     *Book
	Borrower *Borrower
}

// IsTerminal reports whether the loan can no longer transition.
func (l *Loan) IsTerminal() bool {
	return l.Status == LoanCompleted || l.Status == LoanCancelled
}

// Overdue reports whether an active loan is past due as of the given time.
func (l *Loan) Overdue(asOf time.Time) bool {
	return l.Status == LoanActive && asOf.After(l.DueDate)
}

// =============================================================================
// FINE CONFIG - Singleton overdue-fine parameters
// =============================================================================

// Defaults used when no config has been stored or the stored one is invalid.
const (
	DefaultRatePerDay  = 10
	DefaultGraceDays   = 0
	DefaultMaxFineUnit = 1000
)

type FineConfig struct {
	RatePerDay      decimal.Decimal
	GracePeriodDays int
	MaxFine         decimal.Decimal
	UpdatedAt       time.Time
	UpdatedBy       BorrowerID
}

// DefaultFineConfig returns the documented fallback: 10 units/day, no grace
// period, capped at 1000 units.
func DefaultFineConfig() FineConfig {
	return FineConfig{
		RatePerDay:      decimal.NewFromInt(DefaultRatePerDay),
		GracePeriodDays: DefaultGraceDays,
		MaxFine:         decimal.NewFromInt(DefaultMaxFineUnit),
	}
}

// Valid reports whether the config is usable by the fine policy.
func (c FineConfig) Valid() bool {
	return !c.RatePerDay.IsNegative() && c.GracePeriodDays >= 0 && !c.MaxFine.IsNegative()
}

// =============================================================================
// LOAN POLICY - Due-date bounds for new loans
// =============================================================================

// LoanPolicy bounds the requested due date on issue. The reference system was
// inconsistent about enforcing these, so they are configurable rather than
// hard-coded.
type LoanPolicy struct {
	MinLoanDays int
	MaxLoanDays int
}

func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{MinLoanDays: 1, MaxLoanDays: 30}
}
