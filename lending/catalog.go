/*
catalog.go - Catalog edits that must preserve the availability invariant

PURPOSE:
  Book creation and edits are administrative, but they touch the same
  counters the lending workflow owns, so they go through the engine too.
  Editing totalCopies shifts available by the same delta; edits that would
  strand outstanding loans are refused.

SEE ALSO:
  - engine.go: Issue/return, the other writers of the counters
*/
package lending

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateBook adds a catalog record. A new book starts fully available.
func (e *Engine) CreateBook(ctx context.Context, b Book) (*Book, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if strings.TrimSpace(b.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if b.TotalCopies < 1 {
		return nil, &ValidationError{Field: "total_copies", Message: "must be at least 1"}
	}

	now := e.clock()
	if b.ID == "" {
		b.ID = BookID(uuid.NewString())
	}
	b.Available = b.TotalCopies
	b.CreatedAt = now
	b.UpdatedAt = now

	if err := e.store.SaveBook(ctx, b); err != nil {
		return nil, storeErr(err)
	}
	return &b, nil
}

// UpdateBook edits a catalog record. Changing TotalCopies moves Available by
// the same delta so totalCopies - available still equals the active-loan
// count; shrinking below the number of copies currently out is refused.
func (e *Engine) UpdateBook(ctx context.Context, b Book) (*Book, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	if b.TotalCopies < 1 {
		return nil, &ValidationError{Field: "total_copies", Message: "must be at least 1"}
	}

	var updated *Book
	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetBook(ctx, b.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrBookNotFound
		}

		onLoan := existing.TotalCopies - existing.Available
		if b.TotalCopies < onLoan {
			return &ValidationError{
				Field:   "total_copies",
				Message: fmt.Sprintf("%d copies are on loan; cannot reduce below that", onLoan),
			}
		}

		b.Available = b.TotalCopies - onLoan
		b.CreatedAt = existing.CreatedAt
		b.UpdatedAt = e.clock()
		if err := s.SaveBook(ctx, b); err != nil {
			return err
		}
		updated = &b
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// DeleteBook removes a catalog record. Refused while copies are out.
func (e *Engine) DeleteBook(ctx context.Context, id BookID) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	err := e.store.WithTx(ctx, func(s Store) error {
		book, err := s.GetBook(ctx, id)
		if err != nil {
			return err
		}
		if book == nil {
			return ErrBookNotFound
		}
		active, err := s.CountActiveLoans(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return &ValidationError{
				Field:   "book",
				Message: fmt.Sprintf("%d active loans reference this book", active),
			}
		}
		return s.DeleteBook(ctx, id)
	})
	return storeErr(err)
}
