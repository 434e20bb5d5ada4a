package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrExpenseNotFound means no expense with that id exists in the tenant.
	ErrExpenseNotFound = errors.New("finance: expense not found")

	// ErrInvalidExpense rejects an expense without a title or with a
	// negative amount.
	ErrInvalidExpense = errors.New("finance: invalid expense")
)

// Expense is a manually recorded tenant cost. Unlike appointments, expenses
// carry no lifecycle and may be deleted outright.
type Expense struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"-"`
	Title       string    `json:"title"`
	AmountCents int64     `json:"amount_cents"`
	SpentAt     time.Time `json:"spent_at"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExpenseRequest carries the fields for a new expense.
type ExpenseRequest struct {
	Title       string    `json:"title"`
	AmountCents int64     `json:"amount_cents"`
	SpentAt     time.Time `json:"spent_at"`
	Notes       string    `json:"notes"`
}

type financeDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists expenses and answers the aggregation queries.
type Store struct {
	db financeDB
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("finance: pgx pool required")
	}
	return &Store{db: pool}
}

// NewStoreWithDB is the test seam used with pgxmock.
func NewStoreWithDB(db financeDB) *Store {
	return &Store{db: db}
}

// CreateExpense records a tenant cost.
func (s *Store) CreateExpense(ctx context.Context, tenantID uuid.UUID, req ExpenseRequest) (*Expense, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidExpense)
	}
	if req.AmountCents < 0 {
		return nil, fmt.Errorf("%w: amount must be non-negative", ErrInvalidExpense)
	}
	spentAt := req.SpentAt
	if spentAt.IsZero() {
		spentAt = time.Now().UTC()
	}

	e := &Expense{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Title:       title,
		AmountCents: req.AmountCents,
		SpentAt:     spentAt.UTC(),
		Notes:       req.Notes,
	}
	query := `
		INSERT INTO expenses (id, tenant_id, title, amount_cents, spent_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if err := s.db.QueryRow(ctx, query,
		e.ID, e.TenantID, e.Title, e.AmountCents, e.SpentAt, e.Notes,
	).Scan(&e.CreatedAt); err != nil {
		return nil, fmt.Errorf("finance: insert expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns the tenant's expenses within the period, most recent
// first.
func (s *Store) ListExpenses(ctx context.Context, tenantID uuid.UUID, p Period) ([]Expense, error) {
	query := `
		SELECT id, tenant_id, title, amount_cents, spent_at, notes, created_at
		FROM expenses
		WHERE tenant_id = $1 AND spent_at >= $2 AND spent_at < $3
		ORDER BY spent_at DESC
	`
	rows, err := s.db.Query(ctx, query, tenantID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("finance: list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var (
			e     Expense
			notes *string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Title, &e.AmountCents, &e.SpentAt, &notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("finance: scan expense: %w", err)
		}
		if notes != nil {
			e.Notes = *notes
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: iterate expenses: %w", err)
	}
	return out, nil
}

// DeleteExpense removes an expense scoped to the tenant.
func (s *Store) DeleteExpense(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("finance: delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}
