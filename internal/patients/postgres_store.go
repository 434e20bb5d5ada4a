package patients

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

	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/tenancy"
)

type storeDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists patient records and their portal-access links.
type PostgresStore struct {
	db storeDB
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithDB is the test seam used with pgxmock.
func NewPostgresStoreWithDB(db storeDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const patientColumns = `id, tenant_id, full_name, email, phone, birth_date, notes, user_id, created_at`

// Create inserts a patient and, when an access password is supplied, the
// linked portal user in the same transaction.
func (s *PostgresStore) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (*Patient, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("patients: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID *uuid.UUID
	if req.AccessPassword != "" {
		uid, err := upsertPortalUser(ctx, tx, tenantID, req.Email, req.AccessPassword)
		if err != nil {
			return nil, err
		}
		userID = &uid
	}

	p := &Patient{
		ID:        uuid.New(),
		TenantID:  tenantID,
		FullName:  strings.TrimSpace(req.FullName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
		UserID:    userID,
	}
	query := `
		INSERT INTO patients (id, tenant_id, full_name, email, phone, birth_date, notes, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		p.ID, p.TenantID, p.FullName, p.Email, p.Phone, p.BirthDate, p.Notes, p.UserID,
	).Scan(&p.CreatedAt); err != nil {
		return nil, fmt.Errorf("patients: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("patients: commit create: %w", err)
	}
	return p, nil
}

// List returns the tenant's patients ordered by name.
func (s *PostgresStore) List(ctx context.Context, tenantID uuid.UUID) ([]Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE tenant_id = $1
		ORDER BY full_name ASC
	`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: iterate: %w", err)
	}
	return out, nil
}

// GetByID fetches a patient scoped to the tenant.
func (s *PostgresStore) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE id = $1 AND tenant_id = $2
	`
	p, err := scanPatient(s.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select: %w", err)
	}
	return p, nil
}

// FindByUserID resolves the patient currently linked to a portal user, used
// to attach the acting patient to an authenticated request.
func (s *PostgresStore) FindByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE tenant_id = $1 AND user_id = $2
	`
	p, err := scanPatient(s.db.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select by user: %w", err)
	}
	return p, nil
}

// Update applies the non-nil fields and returns the fresh record.
func (s *PostgresStore) Update(ctx context.Context, tenantID, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	query := `
		UPDATE patients
		SET full_name = COALESCE($3, full_name),
		    email = COALESCE($4, email),
		    phone = COALESCE($5, phone),
		    birth_date = COALESCE($6, birth_date),
		    notes = COALESCE($7, notes)
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + patientColumns + `
	`
	p, err := scanPatient(s.db.QueryRow(ctx, query, id, tenantID,
		req.FullName, req.Email, req.Phone, req.BirthDate, req.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: update: %w", err)
	}
	return p, nil
}

// Delete removes the patient record. Appointment rows keep their history;
// the foreign key nulls their patient reference.
func (s *PostgresStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM patients WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("patients: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// GrantAccess creates or restores the patient's portal user with a fresh
// password and links it to the record.
func (s *PostgresStore) GrantAccess(ctx context.Context, tenantID, id uuid.UUID, password string) (*Patient, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("patients: begin grant: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := getForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p.Email == "" {
		return nil, ErrEmailRequired
	}

	userID, err := upsertPortalUser(ctx, tx, tenantID, p.Email, password)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE patients SET user_id = $3 WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, userID,
	); err != nil {
		return nil, fmt.Errorf("patients: link user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("patients: commit grant: %w", err)
	}
	p.UserID = &userID
	return p, nil
}

// RevokeAccess unlinks the portal user and deactivates it. The patient
// record and its appointment history stay untouched; access can be restored
// later with GrantAccess.
func (s *PostgresStore) RevokeAccess(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("patients: begin revoke: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := getForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET is_active = FALSE WHERE id = $1 AND tenant_id = $2 AND role = 'patient'`,
			*p.UserID, tenantID,
		); err != nil {
			return nil, fmt.Errorf("patients: deactivate user: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE patients SET user_id = NULL WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	); err != nil {
		return nil, fmt.Errorf("patients: unlink user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("patients: commit revoke: %w", err)
	}
	p.UserID = nil
	return p, nil
}

func getForUpdate(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) (*Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`
	p, err := scanPatient(tx.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select for update: %w", err)
	}
	return p, nil
}

// upsertPortalUser reuses an existing user for the email (reactivating it)
// or creates a new one, always with the patient role and a fresh password.
func upsertPortalUser(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, email, password string) (uuid.UUID, error) {
	hash, err := identity.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}

	var userID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)`,
		tenantID, email,
	).Scan(&userID)
	switch {
	case err == nil:
		if _, err := tx.Exec(ctx,
			`UPDATE users SET role = $3, is_active = TRUE, password_hash = $4 WHERE id = $1 AND tenant_id = $2`,
			userID, tenantID, string(tenancy.RolePatient), hash,
		); err != nil {
			return uuid.Nil, fmt.Errorf("patients: restore user: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		userID = uuid.New()
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, tenant_id, email, password_hash, role, is_active) VALUES ($1, $2, $3, $4, $5, TRUE)`,
			userID, tenantID, email, hash, string(tenancy.RolePatient),
		); err != nil {
			return uuid.Nil, fmt.Errorf("patients: create user: %w", err)
		}
	default:
		return uuid.Nil, fmt.Errorf("patients: find user by email: %w", err)
	}
	return userID, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p         Patient
		email     *string
		phone     *string
		notes     *string
		birthDate *time.Time
	)
	if err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.FullName,
		&email,
		&phone,
		&birthDate,
		&notes,
		&p.UserID,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	if notes != nil {
		p.Notes = *notes
	}
	p.BirthDate = birthDate
	return &p, nil
}
