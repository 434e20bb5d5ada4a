package finance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/scheduling"
)

// DailyIncome is one day's recognized income within the period.
type DailyIncome struct {
	Day         string `json:"day"` // YYYY-MM-DD
	IncomeCents int64  `json:"income_cents"`
}

// Summary is the derived money view over a (tenant, period) pair. Income is
// recognized only for done sessions; booked revenue is projection, not income.
type Summary struct {
	Period            string           `json:"period"`
	IncomeTotalCents  int64            `json:"income_total_cents"`
	ExpenseTotalCents int64            `json:"expense_total_cents"`
	CashTotalCents    int64            `json:"cash_total_cents"`
	StatusCounts      map[string]int64 `json:"status_counts"`
	DailyIncome       []DailyIncome    `json:"daily_income"`
}

// Summary computes the aggregate view. Reads run against the live tables;
// the status-guarded writes in scheduling guarantee no half-applied
// transition is ever visible here.
func (s *Store) Summary(ctx context.Context, tenantID uuid.UUID, p Period) (*Summary, error) {
	out := &Summary{Period: p.Label, StatusCounts: make(map[string]int64, len(scheduling.AllStatuses))}
	for _, status := range scheduling.AllStatuses {
		out.StatusCounts[string(status)] = 0
	}

	incomeQuery := `
		SELECT COALESCE(SUM(price_cents), 0)
		FROM appointments
		WHERE tenant_id = $1 AND status = 'done' AND start_at >= $2 AND start_at < $3
	`
	if err := s.db.QueryRow(ctx, incomeQuery, tenantID, p.Start, p.End).Scan(&out.IncomeTotalCents); err != nil {
		return nil, fmt.Errorf("finance: income total: %w", err)
	}

	expenseQuery := `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM expenses
		WHERE tenant_id = $1 AND spent_at >= $2 AND spent_at < $3
	`
	if err := s.db.QueryRow(ctx, expenseQuery, tenantID, p.Start, p.End).Scan(&out.ExpenseTotalCents); err != nil {
		return nil, fmt.Errorf("finance: expense total: %w", err)
	}
	out.CashTotalCents = out.IncomeTotalCents - out.ExpenseTotalCents

	countQuery := `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE tenant_id = $1 AND start_at >= $2 AND start_at < $3
		GROUP BY status
	`
	rows, err := s.db.Query(ctx, countQuery, tenantID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("finance: status counts: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("finance: scan status count: %w", err)
		}
		out.StatusCounts[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: iterate status counts: %w", err)
	}

	// Days without income are omitted, not zero-filled; chart callers fill
	// gaps themselves.
	dailyQuery := `
		SELECT to_char(start_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, SUM(price_cents)
		FROM appointments
		WHERE tenant_id = $1 AND status = 'done' AND start_at >= $2 AND start_at < $3
		GROUP BY day
		ORDER BY day ASC
	`
	dailyRows, err := s.db.Query(ctx, dailyQuery, tenantID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("finance: daily income: %w", err)
	}
	defer dailyRows.Close()
	for dailyRows.Next() {
		var d DailyIncome
		if err := dailyRows.Scan(&d.Day, &d.IncomeCents); err != nil {
			return nil, fmt.Errorf("finance: scan daily income: %w", err)
		}
		out.DailyIncome = append(out.DailyIncome, d)
	}
	if err := dailyRows.Err(); err != nil {
		return nil, fmt.Errorf("finance: iterate daily income: %w", err)
	}

	return out, nil
}
