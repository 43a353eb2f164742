/*
store.go - Persistence interfaces for the lending domain

PURPOSE:
  Defines the interface between the workflow engine and the database.
  Implementations: store/sqlite (production) and lending/store (in-memory,
  used by tests and demos).

KEY INTERFACES:
  Store:   Record persistence for books, borrowers, loans, fine config
  TxStore: Store plus a transactional boundary (WithTx)

CONCURRENCY CONTRACT:
  ReserveCopy and ReleaseCopy are conditional updates: the check and the
  counter change are a single atomic step at the store, never a read followed
  by a write in the engine. CreateLoan must reject a second active loan for
  the same (book, borrower) pair even when two callers race past the engine's
  existence check; the SQLite store backs this with a partial unique index.

MISSING RECORDS:
  Get* methods return (nil, nil) when no record matches. The engine maps
  that to the domain's not-found errors; stores never invent them.

SEE ALSO:
  - engine.go:            The only writer of loan and counter state
  - store/sqlite/sqlite.go: Production implementation
  - lending/store/memory.go: In-memory implementation
*/
package lending

import (
	"context"
	"time"
)

// LoanFilter narrows ListLoans. Zero-value fields are ignored.
type LoanFilter struct {
	BorrowerID BorrowerID
	BookID     BookID
	Status     LoanStatus
	DueBefore  *time.Time // Loans with DueDate before this instant
	UnpaidFine bool       // Only loans with Fine.IsPaid == false
}

// Store handles persistence of lending records.
type Store interface {
	// Books
	GetBook(ctx context.Context, id BookID) (*Book, error)
	ListBooks(ctx context.Context, search string) ([]Book, error)
	SaveBook(ctx context.Context, b Book) error
	DeleteBook(ctx context.Context, id BookID) error

	// ReserveCopy decrements Available by one, only if a copy is free.
	// Returns whether the decrement applied.
	ReserveCopy(ctx context.Context, id BookID) (bool, error)

	// ReleaseCopy increments Available by one, capped at TotalCopies.
	ReleaseCopy(ctx context.Context, id BookID) error

	// Borrowers
	GetBorrower(ctx context.Context, id BorrowerID) (*Borrower, error)
	ListBorrowers(ctx context.Context) ([]Borrower, error)
	SaveBorrower(ctx context.Context, b Borrower) error

	// Loans
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)
	CreateLoan(ctx context.Context, l Loan) error
	UpdateLoan(ctx context.Context, l Loan) error
	FindActiveLoan(ctx context.Context, bookID BookID, borrowerID BorrowerID) (*Loan, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]Loan, error)
	CountActiveLoans(ctx context.Context, bookID BookID) (int, error)

	// Fine config (singleton; nil means never configured)
	GetFineConfig(ctx context.Context) (*FineConfig, error)
	SaveFineConfig(ctx context.Context, cfg FineConfig) error
}

// TxStore wraps Store with transaction support. The engine runs each
// multi-step operation (issue, return, pay) inside WithTx so a crash between
// the loan write and the counter update is never observable.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
