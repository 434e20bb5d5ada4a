package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the storage contract for appointments. Every method takes
// the tenant id explicitly; there is no way to run an unscoped query.
type Repository interface {
	CreateAvailable(ctx context.Context, tenantID uuid.UUID, slot SlotCandidate, priceCents int64) (*Appointment, bool, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	Book(ctx context.Context, tenantID, id, patientID uuid.UUID) (*Appointment, error)
	Cancel(ctx context.Context, tenantID, id uuid.UUID, owner *uuid.UUID) (*Appointment, error)
	Advance(ctx context.Context, tenantID, id uuid.UUID, to Status) (*Appointment, error)
	Range(ctx context.Context, tenantID uuid.UUID, from, to time.Time, patientID *uuid.UUID) ([]Appointment, error)
	ListAvailable(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID) ([]Appointment, error)
}

type repoDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db repoDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB is the test seam used with pgxmock.
func NewPostgresRepositoryWithDB(db repoDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appointmentColumns = `
	a.id, a.tenant_id, a.start_at, a.end_at, a.status, a.price_cents,
	a.patient_id, COALESCE(p.full_name, ''), COALESCE(p.email, ''),
	a.created_at, a.updated_at
`

// CreateAvailable inserts one available slot unless it would overlap a
// non-canceled appointment in the tenant. The second return value reports
// whether a row was actually created; overlap is a skip, not an error.
func (r *PostgresRepository) CreateAvailable(ctx context.Context, tenantID uuid.UUID, slot SlotCandidate, priceCents int64) (*Appointment, bool, error) {
	id := uuid.New()
	query := `
		INSERT INTO appointments (id, tenant_id, start_at, end_at, status, price_cents)
		SELECT $1, $2, $3, $4, 'available', $5
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $2
			  AND status <> 'canceled'
			  AND start_at < $4
			  AND end_at > $3
		)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	err := r.db.QueryRow(ctx, query, id, tenantID, slot.StartAt, slot.EndAt, priceCents).
		Scan(&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isOverlapViolation(err) {
			// Lost to an existing row or to a concurrent insert; the
			// exclusion constraint is the storage-level backstop.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("scheduling: insert slot: %w", err)
	}
	return &Appointment{
		ID:         id,
		TenantID:   tenantID,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
		Status:     StatusAvailable,
		PriceCents: priceCents,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, true, nil
}

// GetByID fetches an appointment scoped to the tenant.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1 AND a.tenant_id = $2
	`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: select appointment: %w", err)
	}
	return appt, nil
}

// Book performs the single atomic check-and-set from available to booked.
// Exactly one concurrent caller can win: the UPDATE is guarded by the
// current status, never a separate read followed by a write.
func (r *PostgresRepository) Book(ctx context.Context, tenantID, id, patientID uuid.UUID) (*Appointment, error) {
	query := `
		WITH booked AS (
			UPDATE appointments
			SET status = 'booked', patient_id = $3, updated_at = now()
			WHERE id = $1 AND tenant_id = $2 AND status = 'available'
			RETURNING *
		)
		SELECT ` + appointmentColumns + `
		FROM booked a
		LEFT JOIN patients p ON p.id = a.patient_id
	`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id, tenantID, patientID))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: book: %w", err)
	}
	// Zero rows updated: distinguish "never existed" from "already taken".
	if _, getErr := r.GetByID(ctx, tenantID, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrSlotUnavailable
}

// Cancel moves the appointment to canceled. With owner nil (admin) the
// source may be available or booked; with owner set (patient) only a booked
// appointment belonging to that patient qualifies. The patient reference is
// retained for audit.
func (r *PostgresRepository) Cancel(ctx context.Context, tenantID, id uuid.UUID, owner *uuid.UUID) (*Appointment, error) {
	var (
		query string
		args  []any
	)
	if owner == nil {
		query = `
			WITH canceled AS (
				UPDATE appointments
				SET status = 'canceled', updated_at = now()
				WHERE id = $1 AND tenant_id = $2 AND status IN ('available', 'booked')
				RETURNING *
			)
			SELECT ` + appointmentColumns + `
			FROM canceled a
			LEFT JOIN patients p ON p.id = a.patient_id
		`
		args = []any{id, tenantID}
	} else {
		query = `
			WITH canceled AS (
				UPDATE appointments
				SET status = 'canceled', updated_at = now()
				WHERE id = $1 AND tenant_id = $2 AND status = 'booked' AND patient_id = $3
				RETURNING *
			)
			SELECT ` + appointmentColumns + `
			FROM canceled a
			LEFT JOIN patients p ON p.id = a.patient_id
		`
		args = []any{id, tenantID, *owner}
	}

	appt, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: cancel: %w", err)
	}
	return nil, r.classifyCancelFailure(ctx, tenantID, id, owner)
}

func (r *PostgresRepository) classifyCancelFailure(ctx context.Context, tenantID, id uuid.UUID, owner *uuid.UUID) error {
	current, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if owner != nil {
		if current.Status == StatusBooked {
			return ErrForbidden
		}
		if current.Status == StatusAvailable {
			// Patients cannot block open slots.
			return ErrForbidden
		}
	}
	return ErrInvalidTransition
}

// Advance moves a booked appointment to a terminal outcome (done/no_show).
// Legality of `to` is checked by the service against the transition table;
// here only the atomic booked-guarded update remains.
func (r *PostgresRepository) Advance(ctx context.Context, tenantID, id uuid.UUID, to Status) (*Appointment, error) {
	query := `
		WITH advanced AS (
			UPDATE appointments
			SET status = $3, updated_at = now()
			WHERE id = $1 AND tenant_id = $2 AND status = 'booked'
			RETURNING *
		)
		SELECT ` + appointmentColumns + `
		FROM advanced a
		LEFT JOIN patients p ON p.id = a.patient_id
	`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id, tenantID, string(to)))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: advance: %w", err)
	}
	if _, getErr := r.GetByID(ctx, tenantID, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidTransition
}

// Range returns appointments of any status starting within [from, to],
// ordered by start ascending, with patient display fields resolved. A
// non-nil patientID narrows the result to that patient's rows.
func (r *PostgresRepository) Range(ctx context.Context, tenantID uuid.UUID, from, to time.Time, patientID *uuid.UUID) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.tenant_id = $1 AND a.start_at >= $2 AND a.start_at <= $3
	`
	args := []any{tenantID, from, to}
	if patientID != nil {
		query += ` AND a.patient_id = $4`
		args = append(args, *patientID)
	}
	query += ` ORDER BY a.start_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: range query: %w", err)
	}
	return collectAppointments(rows)
}

// ListAvailable returns future open slots only; past slots are excluded even
// if their status was never changed.
func (r *PostgresRepository) ListAvailable(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.tenant_id = $1 AND a.status = 'available' AND a.start_at > $2
		ORDER BY a.start_at ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list available: %w", err)
	}
	return collectAppointments(rows)
}

// ListByPatient returns every non-available appointment attached to the
// patient, any status, ordered by start ascending.
func (r *PostgresRepository) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.tenant_id = $1 AND a.patient_id = $2 AND a.status <> 'available'
		ORDER BY a.start_at ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list by patient: %w", err)
	}
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.StartAt,
		&a.EndAt,
		&a.Status,
		&a.PriceCents,
		&a.PatientID,
		&a.PatientName,
		&a.PatientEmail,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate appointments: %w", err)
	}
	return out, nil
}

// isOverlapViolation detects the exclusion constraint on non-canceled
// appointment intervals.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
