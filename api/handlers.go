/*
handlers.go - HTTP API handlers for the lending system

PURPOSE:
  Exposes the lending engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Books:
    GET    /api/books                  List catalog (?search=)
    POST   /api/books                  Add a book
    GET    /api/books/{id}             Get book details
    PUT    /api/books/{id}             Update a book
    DELETE /api/books/{id}             Remove a book

  Borrowers:
    GET    /api/borrowers              List borrowers
    POST   /api/borrowers              Register borrower
    GET    /api/borrowers/{id}         Get borrower details
    GET    /api/borrowers/{id}/transactions  Loan history (?status=)
    GET    /api/borrowers/{id}/fines   Outstanding unpaid fines

  Transactions:
    POST   /api/transactions/issue     Lend a book
    GET    /api/transactions           Active loans (?overdue=true)
    GET    /api/transactions/status    Holding check (?book_id=&borrower_id=)
    GET    /api/transactions/{id}      Get loan details
    POST   /api/transactions/{id}/return  Accept a return
    GET    /api/transactions/{id}/fine    Live fine preview
    POST   /api/transactions/{id}/fine/pay  Settle the fine

  Fines:
    GET    /api/fines/config           Current fine configuration
    PUT    /api/fines/config           Update fine configuration

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: Validation errors, attempts on non-active loans, double payment
  - 404: Book/borrower/loan not found
  - 409: Duplicate active loan, no copies available
  - 503: Store timed out or unreachable (retryable)
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  The actor_id fields identify who performed an action but are not verified.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shelfwise/lending-engine/lending"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *lending.Engine
	Store  lending.TxStore
}

// NewHandler creates a new handler around the engine and its store.
func NewHandler(engine *lending.Engine, store lending.TxStore) *Handler {
	return &Handler{Engine: engine, Store: store}
}

// =============================================================================
// BOOK HANDLERS
// =============================================================================

// ListBooks returns the catalog, optionally filtered by a search term.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Store.ListBooks(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list books", err)
		return
	}

	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBook returns a single book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := lending.BookID(chi.URLParam(r, "id"))

	book, err := h.Store.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get book", err)
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "Book not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// CreateBook adds a book to the catalog.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req SaveBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	book, err := h.Engine.CreateBook(r.Context(), lending.Book{
		ID:          lending.BookID(req.ID),
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Category:    req.Category,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookDTO(*book))
}

// UpdateBook updates catalog fields and copy counts.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := lending.BookID(chi.URLParam(r, "id"))

	var req SaveBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	book, err := h.Engine.UpdateBook(r.Context(), lending.Book{
		ID:          id,
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Category:    req.Category,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// DeleteBook removes a book with no active loans.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := lending.BookID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteBook(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// BORROWER HANDLERS
// =============================================================================

// ListBorrowers returns all registered borrowers.
func (h *Handler) ListBorrowers(w http.ResponseWriter, r *http.Request) {
	borrowers, err := h.Store.ListBorrowers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list borrowers", err)
		return
	}

	dtos := make([]BorrowerDTO, len(borrowers))
	for i, b := range borrowers {
		dtos[i] = toBorrowerDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBorrower returns a single borrower.
func (h *Handler) GetBorrower(w http.ResponseWriter, r *http.Request) {
	id := lending.BorrowerID(chi.URLParam(r, "id"))

	borrower, err := h.Store.GetBorrower(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get borrower", err)
		return
	}
	if borrower == nil {
		writeError(w, http.StatusNotFound, "Borrower not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toBorrowerDTO(*borrower))
}

// CreateBorrower registers a borrower.
func (h *Handler) CreateBorrower(w http.ResponseWriter, r *http.Request) {
	var req CreateBorrowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required", nil)
		return
	}

	role := lending.RolePatron
	if req.Role != "" {
		role = lending.Role(req.Role)
		if role != lending.RolePatron && role != lending.RoleLibrarian {
			writeError(w, http.StatusBadRequest, "Role must be patron or librarian", nil)
			return
		}
	}

	borrower := lending.Borrower{
		ID:        lending.BorrowerID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if borrower.ID == "" {
		borrower.ID = lending.BorrowerID(uuid.NewString())
	}

	if err := h.Store.SaveBorrower(r.Context(), borrower); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create borrower", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBorrowerDTO(borrower))
}

// GetBorrowerTransactions returns a borrower's loan history.
func (h *Handler) GetBorrowerTransactions(w http.ResponseWriter, r *http.Request) {
	id := lending.BorrowerID(chi.URLParam(r, "id"))
	status := lending.LoanStatus(r.URL.Query().Get("status"))

	loans, err := h.Engine.BorrowerLoans(r.Context(), id, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// GetBorrowerFines returns a borrower's unpaid fines and their total.
func (h *Handler) GetBorrowerFines(w http.ResponseWriter, r *http.Request) {
	id := lending.BorrowerID(chi.URLParam(r, "id"))

	fines, err := h.Engine.ListUnpaidFines(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UnpaidFinesDTO{
		TotalUnpaidFines: fines.Total.String(),
		Transactions:     toLoanDTOs(fines.Loans),
	})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// IssueBook lends a copy to a borrower.
func (h *Handler) IssueBook(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BorrowerID == "" || req.BookID == "" {
		writeError(w, http.StatusBadRequest, "borrower_id and book_id are required", nil)
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date (use RFC 3339 or YYYY-MM-DD)", err)
		return
	}

	loan, err := h.Engine.IssueBook(r.Context(),
		lending.BorrowerID(req.BorrowerID), lending.BookID(req.BookID), dueDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoanDTO(*loan))
}

// ListTransactions returns active loans, or overdue loans with ?overdue=true.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var (
		loans []lending.Loan
		err   error
	)
	if r.URL.Query().Get("overdue") == "true" {
		loans, err = h.Engine.OverdueLoans(r.Context(), time.Now().UTC())
	} else {
		loans, err = h.Engine.ActiveLoans(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// GetTransaction returns a single loan.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	loan, err := h.Store.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get transaction", err)
		return
	}
	if loan == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// GetBookStatus reports whether a borrower currently holds a book.
func (h *Handler) GetBookStatus(w http.ResponseWriter, r *http.Request) {
	bookID := lending.BookID(r.URL.Query().Get("book_id"))
	borrowerID := lending.BorrowerID(r.URL.Query().Get("borrower_id"))
	if bookID == "" || borrowerID == "" {
		writeError(w, http.StatusBadRequest, "book_id and borrower_id are required", nil)
		return
	}

	loan, err := h.Engine.BookStatus(r.Context(), bookID, borrowerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := BookStatusDTO{IsBorrowed: loan != nil}
	if loan != nil {
		dto := toLoanDTO(*loan)
		resp.Loan = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReturnBook accepts a return, completing the loan and assessing the fine.
func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	// The body is optional (the actor just attributes the return), but if one
	// is sent it has to parse.
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	loan, err := h.Engine.ReturnBook(r.Context(), id, lending.BorrowerID(req.ActorID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReturnResponse{
		Loan: toLoanDTO(*loan),
		Fine: loan.Fine.Amount.String(),
	})
}

// =============================================================================
// FINE HANDLERS
// =============================================================================

// CalculateFine returns the fine a loan would carry if settled now.
func (h *Handler) CalculateFine(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	amount, err := h.Engine.CalculateFine(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FineAmountDTO{
		LoanID:     string(id),
		FineAmount: amount.String(),
	})
}

// PayFine settles a loan's fine.
func (h *Handler) PayFine(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	loan, err := h.Engine.PayFine(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// GetFineConfig returns the current fine configuration.
func (h *Handler) GetFineConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Engine.FineConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFineConfigDTO(cfg))
}

// UpdateFineConfig changes the fine parameters for future assessments.
func (h *Handler) UpdateFineConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateFineConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.RatePerDay)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate_per_day", err)
		return
	}
	maxFine, err := decimal.NewFromString(req.MaxFine)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid max_fine", err)
		return
	}

	cfg, err := h.Engine.UpdateFineConfig(r.Context(), lending.FineConfig{
		RatePerDay:      rate,
		GracePeriodDays: req.GracePeriodDays,
		MaxFine:         maxFine,
	}, lending.BorrowerID(req.ActorID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFineConfigDTO(cfg))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation *lending.ValidationError
		dueDate    *lending.DueDateError
		duplicate  *lending.DuplicateLoanError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &dueDate):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &duplicate),
		errors.Is(err, lending.ErrDuplicateActiveLoan),
		errors.Is(err, lending.ErrBookUnavailable):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case lending.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, lending.ErrLoanNotActive),
		errors.Is(err, lending.ErrFineAlreadyPaid):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case lending.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "Store temporarily unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// parseDate accepts RFC 3339 timestamps or bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
