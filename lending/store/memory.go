// Package store provides an in-memory lending.TxStore for tests and demos.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shelfwise/lending-engine/lending"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	books      map[lending.BookID]lending.Book
	borrowers  map[lending.BorrowerID]lending.Borrower
	loans      map[lending.LoanID]lending.Loan
	fineConfig *lending.FineConfig
}

func NewMemory() *Memory {
	return &Memory{
		books:     make(map[lending.BookID]lending.Book),
		borrowers: make(map[lending.BorrowerID]lending.Borrower),
		loans:     make(map[lending.LoanID]lending.Loan),
	}
}

// =============================================================================
// BOOKS
// =============================================================================

func (m *Memory) GetBook(_ context.Context, id lending.BookID) (*lending.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBookLocked(id), nil
}

func (m *Memory) getBookLocked(id lending.BookID) *lending.Book {
	b, ok := m.books[id]
	if !ok {
		return nil
	}
	return &b
}

func (m *Memory) ListBooks(_ context.Context, search string) ([]lending.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(search)
	var result []lending.Book
	for _, b := range m.books {
		if needle != "" &&
			!strings.Contains(strings.ToLower(b.Title), needle) &&
			!strings.Contains(strings.ToLower(b.Author), needle) &&
			!strings.Contains(strings.ToLower(b.ISBN), needle) {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}

func (m *Memory) SaveBook(_ context.Context, b lending.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

func (m *Memory) DeleteBook(_ context.Context, id lending.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	return nil
}

func (m *Memory) ReserveCopy(_ context.Context, id lending.BookID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveCopyLocked(id), nil
}

func (m *Memory) reserveCopyLocked(id lending.BookID) bool {
	b, ok := m.books[id]
	if !ok || b.Available <= 0 {
		return false
	}
	b.Available--
	m.books[id] = b
	return true
}

func (m *Memory) ReleaseCopy(_ context.Context, id lending.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCopyLocked(id)
	return nil
}

func (m *Memory) releaseCopyLocked(id lending.BookID) {
	b, ok := m.books[id]
	if !ok {
		return
	}
	if b.Available < b.TotalCopies {
		b.Available++
	}
	m.books[id] = b
}

// =============================================================================
// BORROWERS
// =============================================================================

func (m *Memory) GetBorrower(_ context.Context, id lending.BorrowerID) (*lending.Borrower, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.borrowers[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ListBorrowers(_ context.Context) ([]lending.Borrower, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]lending.Borrower, 0, len(m.borrowers))
	for _, b := range m.borrowers {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveBorrower(_ context.Context, b lending.Borrower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers[b.ID] = b
	return nil
}

// =============================================================================
// LOANS
// =============================================================================

func (m *Memory) GetLoan(_ context.Context, id lending.LoanID) (*lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLoanLocked(id), nil
}

func (m *Memory) getLoanLocked(id lending.LoanID) *lending.Loan {
	l, ok := m.loans[id]
	if !ok {
		return nil
	}
	l.Book, l.Borrower = nil, nil // joins are the engine's job
	return &l
}

func (m *Memory) CreateLoan(_ context.Context, l lending.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLoanLocked(l)
}

func (m *Memory) createLoanLocked(l lending.Loan) error {
	// Mirror the SQLite partial unique index on (book, borrower, active).
	if l.Status == lending.LoanActive {
		for _, existing := range m.loans {
			if existing.Status == lending.LoanActive &&
				existing.BookID == l.BookID && existing.BorrowerID == l.BorrowerID {
				return lending.ErrDuplicateActiveLoan
			}
		}
	}
	l.Book, l.Borrower = nil, nil
	m.loans[l.ID] = l
	return nil
}

func (m *Memory) UpdateLoan(_ context.Context, l lending.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLoanLocked(l)
}

func (m *Memory) updateLoanLocked(l lending.Loan) error {
	if _, ok := m.loans[l.ID]; !ok {
		return lending.ErrLoanNotFound
	}
	l.Book, l.Borrower = nil, nil
	m.loans[l.ID] = l
	return nil
}

func (m *Memory) FindActiveLoan(_ context.Context, bookID lending.BookID, borrowerID lending.BorrowerID) (*lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findActiveLoanLocked(bookID, borrowerID), nil
}

func (m *Memory) findActiveLoanLocked(bookID lending.BookID, borrowerID lending.BorrowerID) *lending.Loan {
	for _, l := range m.loans {
		if l.Status == lending.LoanActive && l.BookID == bookID && l.BorrowerID == borrowerID {
			loan := l
			return &loan
		}
	}
	return nil
}

func (m *Memory) ListLoans(_ context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLoansLocked(f), nil
}

func (m *Memory) listLoansLocked(f lending.LoanFilter) []lending.Loan {
	var result []lending.Loan
	for _, l := range m.loans {
		if f.BorrowerID != "" && l.BorrowerID != f.BorrowerID {
			continue
		}
		if f.BookID != "" && l.BookID != f.BookID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.DueBefore != nil && !l.DueDate.Before(*f.DueBefore) {
			continue
		}
		if f.UnpaidFine && l.Fine.IsPaid {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IssueDate.After(result[j].IssueDate)
	})
	return result
}

func (m *Memory) CountActiveLoans(_ context.Context, bookID lending.BookID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countActiveLoansLocked(bookID), nil
}

func (m *Memory) countActiveLoansLocked(bookID lending.BookID) int {
	count := 0
	for _, l := range m.loans {
		if l.Status == lending.LoanActive && l.BookID == bookID {
			count++
		}
	}
	return count
}

// =============================================================================
// FINE CONFIG
// =============================================================================

func (m *Memory) GetFineConfig(_ context.Context) (*lending.FineConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fineConfig == nil {
		return nil, nil
	}
	cfg := *m.fineConfig
	return &cfg, nil
}

func (m *Memory) SaveFineConfig(_ context.Context, cfg lending.FineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fineConfig = &cfg
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn atomically. Simulated with a snapshot + rollback on
// error, matching the SQLite store's commit/rollback semantics.
func (m *Memory) WithTx(_ context.Context, fn func(lending.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	books      map[lending.BookID]lending.Book
	borrowers  map[lending.BorrowerID]lending.Borrower
	loans      map[lending.LoanID]lending.Loan
	fineConfig *lending.FineConfig
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		books:     make(map[lending.BookID]lending.Book, len(m.books)),
		borrowers: make(map[lending.BorrowerID]lending.Borrower, len(m.borrowers)),
		loans:     make(map[lending.LoanID]lending.Loan, len(m.loans)),
	}
	for k, v := range m.books {
		s.books[k] = v
	}
	for k, v := range m.borrowers {
		s.borrowers[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	if m.fineConfig != nil {
		cfg := *m.fineConfig
		s.fineConfig = &cfg
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.books = s.books
	m.borrowers = s.borrowers
	m.loans = s.loans
	m.fineConfig = s.fineConfig
}

// txView routes Store calls to the already-locked parent.
type txView struct {
	parent *Memory
}

func (tv *txView) GetBook(_ context.Context, id lending.BookID) (*lending.Book, error) {
	return tv.parent.getBookLocked(id), nil
}

func (tv *txView) ListBooks(_ context.Context, search string) ([]lending.Book, error) {
	var result []lending.Book
	for _, b := range tv.parent.books {
		if search == "" || strings.Contains(strings.ToLower(b.Title), strings.ToLower(search)) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (tv *txView) SaveBook(_ context.Context, b lending.Book) error {
	tv.parent.books[b.ID] = b
	return nil
}

func (tv *txView) DeleteBook(_ context.Context, id lending.BookID) error {
	delete(tv.parent.books, id)
	return nil
}

func (tv *txView) ReserveCopy(_ context.Context, id lending.BookID) (bool, error) {
	return tv.parent.reserveCopyLocked(id), nil
}

func (tv *txView) ReleaseCopy(_ context.Context, id lending.BookID) error {
	tv.parent.releaseCopyLocked(id)
	return nil
}

func (tv *txView) GetBorrower(_ context.Context, id lending.BorrowerID) (*lending.Borrower, error) {
	b, ok := tv.parent.borrowers[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (tv *txView) ListBorrowers(_ context.Context) ([]lending.Borrower, error) {
	result := make([]lending.Borrower, 0, len(tv.parent.borrowers))
	for _, b := range tv.parent.borrowers {
		result = append(result, b)
	}
	return result, nil
}

func (tv *txView) SaveBorrower(_ context.Context, b lending.Borrower) error {
	tv.parent.borrowers[b.ID] = b
	return nil
}

func (tv *txView) GetLoan(_ context.Context, id lending.LoanID) (*lending.Loan, error) {
	return tv.parent.getLoanLocked(id), nil
}

func (tv *txView) CreateLoan(_ context.Context, l lending.Loan) error {
	return tv.parent.createLoanLocked(l)
}

func (tv *txView) UpdateLoan(_ context.Context, l lending.Loan) error {
	return tv.parent.updateLoanLocked(l)
}

func (tv *txView) FindActiveLoan(_ context.Context, bookID lending.BookID, borrowerID lending.BorrowerID) (*lending.Loan, error) {
	return tv.parent.findActiveLoanLocked(bookID, borrowerID), nil
}

func (tv *txView) ListLoans(_ context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	return tv.parent.listLoansLocked(f), nil
}

func (tv *txView) CountActiveLoans(_ context.Context, bookID lending.BookID) (int, error) {
	return tv.parent.countActiveLoansLocked(bookID), nil
}

func (tv *txView) GetFineConfig(_ context.Context) (*lending.FineConfig, error) {
	if tv.parent.fineConfig == nil {
		return nil, nil
	}
	cfg := *tv.parent.fineConfig
	return &cfg, nil
}

func (tv *txView) SaveFineConfig(_ context.Context, cfg lending.FineConfig) error {
	tv.parent.fineConfig = &cfg
	return nil
}
