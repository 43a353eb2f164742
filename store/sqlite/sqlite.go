/*
Package sqlite provides a SQLite-backed implementation of the lending storage
interfaces.

PURPOSE:
  Implements lending.Store and lending.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  books:       Catalog records with copy counters
  borrowers:   Directory records (identity only)
  loans:       The loan ledger; rows are never deleted
  fine_config: Singleton overdue-fine parameters

INVARIANT ENFORCEMENT:
  - idx_loans_active_pair: partial unique index on (book_id, borrower_id)
    WHERE status = 'active'. Two racing issues for the same pair cannot both
    commit; the loser gets lending.ErrDuplicateActiveLoan.
  - ReserveCopy / ReleaseCopy are conditional single-statement updates, so
    the availability check and the counter change are one atomic step.
  - CHECK (available BETWEEN 0 AND total_copies) backstops the counters
    against any other writer.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the single SQLite handle. In
  production with PostgreSQL, database-level concurrency control handles
  this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/library.db")
  engine := lending.NewEngine(store, lending.Config{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - lending/store.go: Interface definitions
  - lending/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shelfwise/lending-engine/lending"
	"github.com/shopspring/decimal"
)

// Store implements lending.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		total_copies INTEGER NOT NULL,
		available INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (total_copies >= 1),
		CHECK (available >= 0 AND available <= total_copies)
	);

	CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);

	CREATE TABLE IF NOT EXISTS borrowers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'patron',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		borrower_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		return_date TEXT,
		returned_to TEXT NOT NULL DEFAULT '',
		fine_amount TEXT NOT NULL DEFAULT '0',
		fine_paid BOOLEAN NOT NULL DEFAULT FALSE,
		fine_paid_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one active loan per (book, borrower) pair.
	-- The engine checks before insert, but under concurrent issues this
	-- index is what actually decides the race.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_pair
		ON loans(book_id, borrower_id)
		WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_loans_borrower
		ON loans(borrower_id, issue_date DESC);
	CREATE INDEX IF NOT EXISTS idx_loans_book_status
		ON loans(book_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_status_due
		ON loans(status, due_date);
	CREATE INDEX IF NOT EXISTS idx_loans_unpaid_fines
		ON loans(borrower_id) WHERE fine_paid = FALSE;

	CREATE TABLE IF NOT EXISTS fine_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		rate_per_day TEXT NOT NULL,
		grace_period_days INTEGER NOT NULL,
		max_fine TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BOOKS
// =============================================================================

const bookColumns = `id, title, author, isbn, category, description, total_copies, available, created_at, updated_at`

func (s *Store) GetBook(ctx context.Context, id lending.BookID) (*lending.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBook(ctx, s.db, id)
}

func getBook(ctx context.Context, db dbtx, id lending.BookID) (*lending.Book, error) {
	var b lending.Book
	var createdAt, updatedAt string
	err := db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.Description,
			&b.TotalCopies, &b.Available, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan book: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context, search string) ([]lending.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBooks(ctx, s.db, search)
}

func listBooks(ctx context.Context, db dbtx, search string) ([]lending.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any
	if search != "" {
		query += ` WHERE title LIKE ? OR author LIKE ? OR isbn LIKE ?`
		like := "%" + search + "%"
		args = []any{like, like, like}
	}
	query += ` ORDER BY title ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []lending.Book
	for rows.Next() {
		var b lending.Book
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.Description,
			&b.TotalCopies, &b.Available, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *Store) SaveBook(ctx context.Context, b lending.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBook(ctx, s.db, b)
}

func saveBook(ctx context.Context, db dbtx, b lending.Book) error {
	query := `
		INSERT INTO books (id, title, author, isbn, category, description, total_copies, available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			isbn = excluded.isbn,
			category = excluded.category,
			description = excluded.description,
			total_copies = excluded.total_copies,
			available = excluded.available,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		b.ID, b.Title, b.Author, b.ISBN, b.Category, b.Description,
		b.TotalCopies, b.Available,
		b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

func (s *Store) DeleteBook(ctx context.Context, id lending.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteBook(ctx, s.db, id)
}

func deleteBook(ctx context.Context, db dbtx, id lending.BookID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	return err
}

// ReserveCopy decrements available by one, only if a copy is free.
// The condition and the decrement are a single statement, so two racing
// issues cannot both take the last copy.
func (s *Store) ReserveCopy(ctx context.Context, id lending.BookID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reserveCopy(ctx, s.db, id)
}

func reserveCopy(ctx context.Context, db dbtx, id lending.BookID) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE books SET available = available - 1, updated_at = ? WHERE id = ? AND available > 0`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseCopy increments available by one, capped at total_copies in case the
// catalog was edited while the copy was out.
func (s *Store) ReleaseCopy(ctx context.Context, id lending.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return releaseCopy(ctx, s.db, id)
}

func releaseCopy(ctx context.Context, db dbtx, id lending.BookID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE books SET available = MIN(available + 1, total_copies), updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to release copy: %w", err)
	}
	return nil
}

// =============================================================================
// BORROWERS
// =============================================================================

func (s *Store) GetBorrower(ctx context.Context, id lending.BorrowerID) (*lending.Borrower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBorrower(ctx, s.db, id)
}

func getBorrower(ctx context.Context, db dbtx, id lending.BorrowerID) (*lending.Borrower, error) {
	var b lending.Borrower
	var createdAt string
	err := db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM borrowers WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Email, &b.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func (s *Store) ListBorrowers(ctx context.Context) ([]lending.Borrower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBorrowers(ctx, s.db)
}

func listBorrowers(ctx context.Context, db dbtx) ([]lending.Borrower, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, email, role, created_at FROM borrowers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var borrowers []lending.Borrower
	for rows.Next() {
		var b lending.Borrower
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.Role, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		borrowers = append(borrowers, b)
	}
	return borrowers, rows.Err()
}

func (s *Store) SaveBorrower(ctx context.Context, b lending.Borrower) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBorrower(ctx, s.db, b)
}

func saveBorrower(ctx context.Context, db dbtx, b lending.Borrower) error {
	query := `
		INSERT INTO borrowers (id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role
	`
	_, err := db.ExecContext(ctx, query,
		b.ID, b.Name, b.Email, b.Role, b.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// LOANS
// =============================================================================

const loanColumns = `id, book_id, borrower_id, status, issue_date, due_date, return_date,
	returned_to, fine_amount, fine_paid, fine_paid_date, created_at, updated_at`

func (s *Store) GetLoan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func getLoan(ctx context.Context, db dbtx, id lending.LoanID) (*lending.Loan, error) {
	loans, err := queryLoans(ctx, db, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

func (s *Store) CreateLoan(ctx context.Context, l lending.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createLoan(ctx, s.db, l)
}

func createLoan(ctx context.Context, db dbtx, l lending.Loan) error {
	query := `
		INSERT INTO loans (id, book_id, borrower_id, status, issue_date, due_date, return_date,
			returned_to, fine_amount, fine_paid, fine_paid_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		l.ID, l.BookID, l.BorrowerID, l.Status,
		l.IssueDate.UTC().Format(time.RFC3339),
		l.DueDate.UTC().Format(time.RFC3339),
		nullTime(l.ReturnDate),
		l.ReturnedTo,
		l.Fine.Amount.String(),
		l.Fine.IsPaid,
		nullTime(l.Fine.PaidDate),
		l.CreatedAt.UTC().Format(time.RFC3339),
		l.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isActivePairConstraintError(err) {
			return lending.ErrDuplicateActiveLoan
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (s *Store) UpdateLoan(ctx context.Context, l lending.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateLoan(ctx, s.db, l)
}

func updateLoan(ctx context.Context, db dbtx, l lending.Loan) error {
	query := `
		UPDATE loans SET
			status = ?,
			return_date = ?,
			returned_to = ?,
			fine_amount = ?,
			fine_paid = ?,
			fine_paid_date = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		l.Status,
		nullTime(l.ReturnDate),
		l.ReturnedTo,
		l.Fine.Amount.String(),
		l.Fine.IsPaid,
		nullTime(l.Fine.PaidDate),
		l.UpdatedAt.UTC().Format(time.RFC3339),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lending.ErrLoanNotFound
	}
	return nil
}

func (s *Store) FindActiveLoan(ctx context.Context, bookID lending.BookID, borrowerID lending.BorrowerID) (*lending.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findActiveLoan(ctx, s.db, bookID, borrowerID)
}

func findActiveLoan(ctx context.Context, db dbtx, bookID lending.BookID, borrowerID lending.BorrowerID) (*lending.Loan, error) {
	loans, err := queryLoans(ctx, db,
		`SELECT `+loanColumns+` FROM loans WHERE book_id = ? AND borrower_id = ? AND status = 'active' LIMIT 1`,
		bookID, borrowerID)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

func (s *Store) ListLoans(ctx context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoans(ctx, s.db, f)
}

func listLoans(ctx context.Context, db dbtx, f lending.LoanFilter) ([]lending.Loan, error) {
	var where []string
	var args []any

	if f.BorrowerID != "" {
		where = append(where, "borrower_id = ?")
		args = append(args, f.BorrowerID)
	}
	if f.BookID != "" {
		where = append(where, "book_id = ?")
		args = append(args, f.BookID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.DueBefore != nil {
		where = append(where, "due_date < ?")
		args = append(args, f.DueBefore.UTC().Format(time.RFC3339))
	}
	if f.UnpaidFine {
		where = append(where, "fine_paid = FALSE")
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY issue_date DESC, created_at DESC`

	return queryLoans(ctx, db, query, args...)
}

func (s *Store) CountActiveLoans(ctx context.Context, bookID lending.BookID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countActiveLoans(ctx, s.db, bookID)
}

func countActiveLoans(ctx context.Context, db dbtx, bookID lending.BookID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND status = 'active'`, bookID,
	).Scan(&count)
	return count, err
}

func queryLoans(ctx context.Context, db dbtx, query string, args ...any) ([]lending.Loan, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []lending.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func scanLoan(rows *sql.Rows) (lending.Loan, error) {
	var (
		l            lending.Loan
		issueDate    string
		dueDate      string
		returnDate   sql.NullString
		fineAmount   string
		finePaidDate sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := rows.Scan(
		&l.ID, &l.BookID, &l.BorrowerID, &l.Status,
		&issueDate, &dueDate, &returnDate,
		&l.ReturnedTo, &fineAmount, &l.Fine.IsPaid, &finePaidDate,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return l, fmt.Errorf("failed to scan loan: %w", err)
	}

	l.IssueDate, _ = time.Parse(time.RFC3339, issueDate)
	l.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	l.ReturnDate = parseNullTime(returnDate)
	l.Fine.Amount = mustParseDecimal(fineAmount)
	l.Fine.PaidDate = parseNullTime(finePaidDate)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return l, nil
}

// =============================================================================
// FINE CONFIG
// =============================================================================

func (s *Store) GetFineConfig(ctx context.Context) (*lending.FineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFineConfig(ctx, s.db)
}

func getFineConfig(ctx context.Context, db dbtx) (*lending.FineConfig, error) {
	var (
		cfg       lending.FineConfig
		rate      string
		maxFine   string
		updatedAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT rate_per_day, grace_period_days, max_fine, updated_at, updated_by FROM fine_config WHERE id = 1`,
	).Scan(&rate, &cfg.GracePeriodDays, &maxFine, &updatedAt, &cfg.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.RatePerDay = mustParseDecimal(rate)
	cfg.MaxFine = mustParseDecimal(maxFine)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

func (s *Store) SaveFineConfig(ctx context.Context, cfg lending.FineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveFineConfig(ctx, s.db, cfg)
}

func saveFineConfig(ctx context.Context, db dbtx, cfg lending.FineConfig) error {
	query := `
		INSERT INTO fine_config (id, rate_per_day, grace_period_days, max_fine, updated_at, updated_by)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rate_per_day = excluded.rate_per_day,
			grace_period_days = excluded.grace_period_days,
			max_fine = excluded.max_fine,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`
	_, err := db.ExecContext(ctx, query,
		cfg.RatePerDay.String(), cfg.GracePeriodDays, cfg.MaxFine.String(),
		cfg.UpdatedAt.UTC().Format(time.RFC3339), cfg.UpdatedBy)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (lending.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store lending.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetBook(ctx context.Context, id lending.BookID) (*lending.Book, error) {
	return getBook(ctx, ts.tx, id)
}

func (ts *txStore) ListBooks(ctx context.Context, search string) ([]lending.Book, error) {
	return listBooks(ctx, ts.tx, search)
}

func (ts *txStore) SaveBook(ctx context.Context, b lending.Book) error {
	return saveBook(ctx, ts.tx, b)
}

func (ts *txStore) DeleteBook(ctx context.Context, id lending.BookID) error {
	return deleteBook(ctx, ts.tx, id)
}

func (ts *txStore) ReserveCopy(ctx context.Context, id lending.BookID) (bool, error) {
	return reserveCopy(ctx, ts.tx, id)
}

func (ts *txStore) ReleaseCopy(ctx context.Context, id lending.BookID) error {
	return releaseCopy(ctx, ts.tx, id)
}

func (ts *txStore) GetBorrower(ctx context.Context, id lending.BorrowerID) (*lending.Borrower, error) {
	return getBorrower(ctx, ts.tx, id)
}

func (ts *txStore) ListBorrowers(ctx context.Context) ([]lending.Borrower, error) {
	return listBorrowers(ctx, ts.tx)
}

func (ts *txStore) SaveBorrower(ctx context.Context, b lending.Borrower) error {
	return saveBorrower(ctx, ts.tx, b)
}

func (ts *txStore) GetLoan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	return getLoan(ctx, ts.tx, id)
}

func (ts *txStore) CreateLoan(ctx context.Context, l lending.Loan) error {
	return createLoan(ctx, ts.tx, l)
}

func (ts *txStore) UpdateLoan(ctx context.Context, l lending.Loan) error {
	return updateLoan(ctx, ts.tx, l)
}

func (ts *txStore) FindActiveLoan(ctx context.Context, bookID lending.BookID, borrowerID lending.BorrowerID) (*lending.Loan, error) {
	return findActiveLoan(ctx, ts.tx, bookID, borrowerID)
}

func (ts *txStore) ListLoans(ctx context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	return listLoans(ctx, ts.tx, f)
}

func (ts *txStore) CountActiveLoans(ctx context.Context, bookID lending.BookID) (int, error) {
	return countActiveLoans(ctx, ts.tx, bookID)
}

func (ts *txStore) GetFineConfig(ctx context.Context) (*lending.FineConfig, error) {
	return getFineConfig(ctx, ts.tx)
}

func (ts *txStore) SaveFineConfig(ctx context.Context, cfg lending.FineConfig) error {
	return saveFineConfig(ctx, ts.tx, cfg)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"loans", "books", "borrowers", "fine_config"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isActivePairConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: loans.book_id")
}
