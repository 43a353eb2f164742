package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/lending-engine/api"
	"github.com/shelfwise/lending-engine/lending"
	"github.com/shelfwise/lending-engine/lending/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	router http.Handler
	mem    *store.Memory
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	engine := lending.NewEngine(mem, lending.Config{
		Clock: func() time.Time { return now },
	})

	return &fixture{
		router: api.NewRouter(api.NewHandler(engine, mem)),
		mem:    mem,
		now:    now,
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mem.SaveBook(ctx, lending.Book{
		ID: "book-1", Title: "The Pragmatic Programmer", Author: "Hunt & Thomas",
		TotalCopies: 1, Available: 1,
	}))
	require.NoError(t, f.mem.SaveBorrower(ctx, lending.Borrower{
		ID: "ada", Name: "Ada", Email: "ada@example.com", Role: lending.RolePatron,
	}))
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (f *fixture) issue(t *testing.T, borrowerID, bookID string, days int) api.LoanDTO {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
		BorrowerID: borrowerID,
		BookID:     bookID,
		DueDate:    f.now.Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decodeJSON[api.LoanDTO](t, rec)
}

// =============================================================================
// ISSUE
// =============================================================================

func TestIssueEndpoint_Created(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	assert.Equal(t, "active", loan.Status)
	assert.Equal(t, "book-1", loan.BookID)
	assert.Equal(t, "ada", loan.BorrowerID)
	assert.Equal(t, "0", loan.Fine.Amount)
	require.NotNil(t, loan.Book, "response includes the joined book")
	assert.Equal(t, 0, loan.Book.Available)
}

func TestIssueEndpoint_UnknownBorrower_404(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
		BorrowerID: "ghost",
		BookID:     "book-1",
		DueDate:    f.now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueEndpoint_DuplicateActive_409(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	require.NoError(t, f.mem.SaveBook(context.Background(), lending.Book{
		ID: "book-2", Title: "Refactoring", TotalCopies: 3, Available: 3,
	}))

	f.issue(t, "ada", "book-2", 7)

	rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
		BorrowerID: "ada",
		BookID:     "book-2",
		DueDate:    f.now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "Refactoring")
}

func TestIssueEndpoint_NoCopies_409(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	require.NoError(t, f.mem.SaveBorrower(context.Background(), lending.Borrower{
		ID: "bob", Name: "Bob", Email: "bob@example.com", Role: lending.RolePatron,
	}))

	f.issue(t, "ada", "book-1", 7) // single copy gone

	rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
		BorrowerID: "bob",
		BookID:     "book-1",
		DueDate:    f.now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIssueEndpoint_BadDueDate_400(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	for _, due := range []string{"not-a-date", "", f.now.Add(-24 * time.Hour).Format(time.RFC3339)} {
		rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
			BorrowerID: "ada",
			BookID:     "book-1",
			DueDate:    due,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "due=%q", due)
	}
}

func TestIssueEndpoint_DateOnlyDueDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPost, "/api/transactions/issue", api.IssueRequest{
		BorrowerID: "ada",
		BookID:     "book-1",
		DueDate:    f.now.Add(7 * 24 * time.Hour).Format("2006-01-02"),
	})
	assert.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
}

// =============================================================================
// RETURN AND FINES
// =============================================================================

func TestReturnEndpoint_CompletesLoan(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	rec := f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/return",
		api.ReturnRequest{ActorID: "lib"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	resp := decodeJSON[api.ReturnResponse](t, rec)
	assert.Equal(t, "completed", resp.Loan.Status)
	assert.Equal(t, "0", resp.Fine)
	assert.Equal(t, "lib", resp.Loan.ReturnedTo)
	assert.NotEmpty(t, resp.Loan.ReturnDate)
}

func TestReturnEndpoint_Twice_400(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	rec := f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/return", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/return", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReturnEndpoint_UnknownLoan_404(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/transactions/nope/return", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReturnEndpoint_MalformedBody_400(t *testing.T) {
	// GIVEN: An active loan
	// WHEN: Returning it with a body that is not JSON
	// THEN: The request is rejected and the loan stays active

	f := newFixture(t)
	f.seed(t)
	loan := f.issue(t, "ada", "book-1", 7)

	req := httptest.NewRequest(http.MethodPost,
		"/api/transactions/"+loan.ID+"/return", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := decodeJSON[api.LoanDTO](t, f.do(t, http.MethodGet, "/api/transactions/"+loan.ID, nil))
	assert.Equal(t, "active", got.Status)
}

func TestFinePreviewAndPayEndpoints(t *testing.T) {
	// An active loan past due shows a live fine; paying settles it and a
	// second payment is rejected.

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	// Backdate the due date so the loan is 2 days overdue at the fixed clock
	stored, err := f.mem.GetLoan(ctx, lending.LoanID(loan.ID))
	require.NoError(t, err)
	stored.DueDate = f.now.Add(-2 * 24 * time.Hour)
	require.NoError(t, f.mem.UpdateLoan(ctx, *stored))

	rec := f.do(t, http.MethodGet, "/api/transactions/"+loan.ID+"/fine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeJSON[api.FineAmountDTO](t, rec)
	assert.Equal(t, "20", preview.FineAmount)

	rec = f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/fine/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	paid := decodeJSON[api.LoanDTO](t, rec)
	assert.True(t, paid.Fine.IsPaid)
	assert.Equal(t, "20", paid.Fine.Amount)

	rec = f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/fine/pay", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBorrowerFinesEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	stored, err := f.mem.GetLoan(ctx, lending.LoanID(loan.ID))
	require.NoError(t, err)
	stored.DueDate = f.now.Add(-3 * 24 * time.Hour)
	require.NoError(t, f.mem.UpdateLoan(ctx, *stored))

	rec := f.do(t, http.MethodGet, "/api/borrowers/ada/fines", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[api.UnpaidFinesDTO](t, rec)
	assert.Equal(t, "30", resp.TotalUnpaidFines)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, loan.ID, resp.Transactions[0].ID)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestTransactionsEndpoint_ActiveAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)

	rec := f.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeJSON[[]api.LoanDTO](t, rec)
	require.Len(t, active, 1)

	rec = f.do(t, http.MethodGet, "/api/transactions?overdue=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decodeJSON[[]api.LoanDTO](t, rec)
	assert.Empty(t, overdue)

	stored, err := f.mem.GetLoan(ctx, lending.LoanID(loan.ID))
	require.NoError(t, err)
	stored.DueDate = f.now.Add(-24 * time.Hour)
	require.NoError(t, f.mem.UpdateLoan(ctx, *stored))

	rec = f.do(t, http.MethodGet, "/api/transactions?overdue=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue = decodeJSON[[]api.LoanDTO](t, rec)
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.ID, overdue[0].ID)
}

func TestBookStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/transactions/status?book_id=book-1&borrower_id=ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeJSON[api.BookStatusDTO](t, rec)
	assert.False(t, status.IsBorrowed)

	f.issue(t, "ada", "book-1", 7)

	rec = f.do(t, http.MethodGet, "/api/transactions/status?book_id=book-1&borrower_id=ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status = decodeJSON[api.BookStatusDTO](t, rec)
	assert.True(t, status.IsBorrowed)
	require.NotNil(t, status.Loan)

	rec = f.do(t, http.MethodGet, "/api/transactions/status?book_id=book-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "both query params are required")
}

// =============================================================================
// CATALOG AND BORROWERS
// =============================================================================

func TestBookEndpoints_CRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/books", api.SaveBookRequest{
		Title: "Domain-Driven Design", Author: "Eric Evans", TotalCopies: 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	book := decodeJSON[api.BookDTO](t, rec)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, 2, book.Available)

	rec = f.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/books/"+book.ID, api.SaveBookRequest{
		Title: "Domain-Driven Design", Author: "Eric Evans", TotalCopies: 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJSON[api.BookDTO](t, rec)
	assert.Equal(t, 4, updated.Available)

	rec = f.do(t, http.MethodDelete, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookEndpoints_CreateInvalid_400(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/books", api.SaveBookRequest{
		Title: "", TotalCopies: 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBorrowerEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/borrowers", api.CreateBorrowerRequest{
		Name: "Grace", Email: "grace@example.com", Role: "librarian",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	borrower := decodeJSON[api.BorrowerDTO](t, rec)
	assert.NotEmpty(t, borrower.ID)
	assert.Equal(t, "librarian", borrower.Role)

	rec = f.do(t, http.MethodGet, "/api/borrowers/"+borrower.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/borrowers", api.CreateBorrowerRequest{
		Name: "", Email: "x@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/borrowers", api.CreateBorrowerRequest{
		Name: "Eve", Email: "eve@example.com", Role: "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown role rejected")
}

func TestBorrowerTransactionsEndpoint_StatusFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	loan := f.issue(t, "ada", "book-1", 7)
	rec := f.do(t, http.MethodPost, "/api/transactions/"+loan.ID+"/return", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/borrowers/ada/transactions?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	completed := decodeJSON[[]api.LoanDTO](t, rec)
	require.Len(t, completed, 1)
	assert.Equal(t, loan.ID, completed[0].ID)

	rec = f.do(t, http.MethodGet, "/api/borrowers/ada/transactions?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeJSON[[]api.LoanDTO](t, rec)
	assert.Empty(t, active)
}

// =============================================================================
// FINE CONFIG
// =============================================================================

func TestFineConfigEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/fines/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeJSON[api.FineConfigDTO](t, rec)
	assert.Equal(t, "10", cfg.RatePerDay, "defaults before any configuration")

	rec = f.do(t, http.MethodPut, "/api/fines/config", api.UpdateFineConfigRequest{
		RatePerDay:      "2.5",
		GracePeriodDays: 1,
		MaxFine:         "500",
		ActorID:         "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	cfg = decodeJSON[api.FineConfigDTO](t, rec)
	assert.Equal(t, "2.5", cfg.RatePerDay)
	assert.Equal(t, 1, cfg.GracePeriodDays)
	assert.Equal(t, "admin", cfg.UpdatedBy)

	rec = f.do(t, http.MethodPut, "/api/fines/config", api.UpdateFineConfigRequest{
		RatePerDay: "abc", MaxFine: "100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/fines/config", api.UpdateFineConfigRequest{
		RatePerDay: "-1", GracePeriodDays: 0, MaxFine: "100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "negative rate rejected")
}

// =============================================================================
// STORE FAILURES
// =============================================================================

// stalledStore hangs on loan reads until the engine's operation deadline
// fires, standing in for an unreachable database.
type stalledStore struct {
	lending.TxStore
}

func (s *stalledStore) GetLoan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFineEndpoint_StoreTimeout_503(t *testing.T) {
	// GIVEN: An engine whose store stopped answering
	// WHEN: Previewing a fine
	// THEN: The client gets 503 with the retryable-error envelope

	mem := store.NewMemory()
	engine := lending.NewEngine(&stalledStore{TxStore: mem}, lending.Config{
		StoreTimeout: 25 * time.Millisecond,
	})
	router := api.NewRouter(api.NewHandler(engine, mem))

	req := httptest.NewRequest(http.MethodGet, "/api/transactions/loan-1/fine", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "body: %s", rec.Body.String())
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Equal(t, "Store temporarily unavailable", resp.Error)
	assert.NotEmpty(t, resp.Details)
}
