package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/finance"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// FinanceStore is the slice of the finance store the handler uses.
type FinanceStore interface {
	Summary(ctx context.Context, tenantID uuid.UUID, p finance.Period) (*finance.Summary, error)
	CreateExpense(ctx context.Context, tenantID uuid.UUID, req finance.ExpenseRequest) (*finance.Expense, error)
	ListExpenses(ctx context.Context, tenantID uuid.UUID, p finance.Period) ([]finance.Expense, error)
	DeleteExpense(ctx context.Context, tenantID, id uuid.UUID) error
}

type FinanceHandler struct {
	store  FinanceStore
	logger *logging.Logger
	now    func() time.Time
}

func NewFinanceHandler(store FinanceStore, logger *logging.Logger) *FinanceHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FinanceHandler{store: store, logger: logger, now: time.Now}
}

// Summary aggregates income, expenses, and status counts for a period.
// Period selection: an explicit date range wins over day, day over month,
// and with no parameters at all the current month applies.
func (h *FinanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	p, ok := h.period(w, r)
	if !ok {
		return
	}
	summary, err := h.store.Summary(r.Context(), actor.TenantID, p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *FinanceHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	p, ok := h.period(w, r)
	if !ok {
		return
	}
	expenses, err := h.store.ListExpenses(r.Context(), actor.TenantID, p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *FinanceHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var req finance.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	expense, err := h.store.CreateExpense(r.Context(), actor.TenantID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (h *FinanceHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "expenseID"))
	if err != nil {
		writeBadRequest(w, "invalid expense id")
		return
	}
	if err := h.store.DeleteExpense(r.Context(), actor.TenantID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FinanceHandler) period(w http.ResponseWriter, r *http.Request) (finance.Period, bool) {
	q := r.URL.Query()
	p, err := finance.ParsePeriod(h.now().UTC(), q.Get("month"), q.Get("day"), q.Get("date_from"), q.Get("date_to"))
	if err != nil {
		writeError(w, h.logger, err)
		return finance.Period{}, false
	}
	return p, true
}
