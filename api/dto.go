/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Fine amounts cross the wire as decimal strings ("40", "12.5") so clients
  never see float artifacts.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shelfwise/lending-engine/lending"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BookDTO represents a catalog record in API responses.
type BookDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	TotalCopies int    `json:"total_copies"`
	Available   int    `json:"available"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// SaveBookRequest is the request to create or update a book.
type SaveBookRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Category    string `json:"category"`
	Description string `json:"description"`
	TotalCopies int    `json:"total_copies"`
}

// BorrowerDTO represents a directory record.
type BorrowerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateBorrowerRequest is the request to register a borrower.
type CreateBorrowerRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// FineDTO is the fine state attached to a loan.
type FineDTO struct {
	Amount   string `json:"amount"`
	IsPaid   bool   `json:"is_paid"`
	PaidDate string `json:"paid_date,omitempty"`
}

// LoanDTO represents a loan with display joins.
type LoanDTO struct {
	ID         string       `json:"id"`
	BookID     string       `json:"book_id"`
	BorrowerID string       `json:"borrower_id"`
	Status     string       `json:"status"`
	IssueDate  string       `json:"issue_date"`
	DueDate    string       `json:"due_date"`
	ReturnDate string       `json:"return_date,omitempty"`
	ReturnedTo string       `json:"returned_to,omitempty"`
	Fine       FineDTO      `json:"fine"`
	Book       *BookDTO     `json:"book,omitempty"`
	Borrower   *BorrowerDTO `json:"borrower,omitempty"`
}

// IssueRequest is the request to lend a book.
type IssueRequest struct {
	BorrowerID string `json:"borrower_id"`
	BookID     string `json:"book_id"`
	DueDate    string `json:"due_date"` // RFC 3339 or YYYY-MM-DD
}

// ReturnRequest is the request to accept a return.
type ReturnRequest struct {
	ActorID string `json:"actor_id"` // Librarian accepting the return
}

// ReturnResponse carries the completed loan and its computed fine.
type ReturnResponse struct {
	Loan LoanDTO `json:"loan"`
	Fine string  `json:"fine"`
}

// FineAmountDTO is the response for a live fine calculation.
type FineAmountDTO struct {
	LoanID     string `json:"loan_id"`
	FineAmount string `json:"fine_amount"`
}

// UnpaidFinesDTO aggregates a borrower's outstanding fines.
type UnpaidFinesDTO struct {
	TotalUnpaidFines string    `json:"total_unpaid_fines"`
	Transactions     []LoanDTO `json:"transactions"`
}

// BookStatusDTO reports whether a borrower currently holds a book.
type BookStatusDTO struct {
	IsBorrowed bool     `json:"is_borrowed"`
	Loan       *LoanDTO `json:"loan,omitempty"`
}

// FineConfigDTO is the admin-visible fine configuration.
type FineConfigDTO struct {
	RatePerDay      string `json:"rate_per_day"`
	GracePeriodDays int    `json:"grace_period_days"`
	MaxFine         string `json:"max_fine"`
	UpdatedAt       string `json:"updated_at,omitempty"`
	UpdatedBy       string `json:"updated_by,omitempty"`
}

// UpdateFineConfigRequest is the admin request to change fine parameters.
type UpdateFineConfigRequest struct {
	RatePerDay      string `json:"rate_per_day"`
	GracePeriodDays int    `json:"grace_period_days"`
	MaxFine         string `json:"max_fine"`
	ActorID         string `json:"actor_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBookDTO(b lending.Book) BookDTO {
	return BookDTO{
		ID:          string(b.ID),
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        b.ISBN,
		Category:    b.Category,
		Description: b.Description,
		TotalCopies: b.TotalCopies,
		Available:   b.Available,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
}

func toBorrowerDTO(b lending.Borrower) BorrowerDTO {
	return BorrowerDTO{
		ID:        string(b.ID),
		Name:      b.Name,
		Email:     b.Email,
		Role:      string(b.Role),
		CreatedAt: formatTime(b.CreatedAt),
	}
}

func toLoanDTO(l lending.Loan) LoanDTO {
	dto := LoanDTO{
		ID:         string(l.ID),
		BookID:     string(l.BookID),
		BorrowerID: string(l.BorrowerID),
		Status:     string(l.Status),
		IssueDate:  l.IssueDate.Format(time.RFC3339),
		DueDate:    l.DueDate.Format(time.RFC3339),
		ReturnedTo: string(l.ReturnedTo),
		Fine: FineDTO{
			Amount: l.Fine.Amount.String(),
			IsPaid: l.Fine.IsPaid,
		},
	}
	if l.ReturnDate != nil {
		dto.ReturnDate = l.ReturnDate.Format(time.RFC3339)
	}
	if l.Fine.PaidDate != nil {
		dto.Fine.PaidDate = l.Fine.PaidDate.Format(time.RFC3339)
	}
	if l.Book != nil {
		book := toBookDTO(*l.Book)
		dto.Book = &book
	}
	if l.Borrower != nil {
		borrower := toBorrowerDTO(*l.Borrower)
		dto.Borrower = &borrower
	}
	return dto
}

func toLoanDTOs(loans []lending.Loan) []LoanDTO {
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	return dtos
}

func toFineConfigDTO(cfg lending.FineConfig) FineConfigDTO {
	return FineConfigDTO{
		RatePerDay:      cfg.RatePerDay.String(),
		GracePeriodDays: cfg.GracePeriodDays,
		MaxFine:         cfg.MaxFine.String(),
		UpdatedAt:       formatTime(cfg.UpdatedAt),
		UpdatedBy:       string(cfg.UpdatedBy),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
