// Package identity authenticates users and manages bearer credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/peegflow-code/peegflow/internal/tenancy"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// tenant mismatch alike; login never reveals which check failed.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUnauthenticated means the presented credential is malformed,
	// expired, revoked, or bound to a tenant that no longer resolves.
	ErrUnauthenticated = errors.New("identity: unauthenticated")

	// ErrTenantMismatch means the credential's tenant differs from the
	// tenant the request claims to act on.
	ErrTenantMismatch = errors.New("identity: credential tenant mismatch")

	// ErrUserNotFound is an internal lookup miss; login translates it to
	// ErrInvalidCredentials.
	ErrUserNotFound = errors.New("identity: user not found")
)

// User belongs to exactly one tenant and owns its credentials.
type User struct {
	ID           uuid.UUID    `json:"id"`
	TenantID     uuid.UUID    `json:"-"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         tenancy.Role `json:"role"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("identity: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type storeDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads users from the relational database, always scoped to
// one tenant.
type PostgresStore struct {
	db storeDB
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithDB is the test seam used with pgxmock.
func NewPostgresStoreWithDB(db storeDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, tenant_id, email, password_hash, role, is_active, created_at`

// FindActiveByEmail fetches an active user by email within the tenant.
func (s *PostgresStore) FindActiveByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE tenant_id = $1 AND lower(email) = lower($2) AND is_active = TRUE
	`
	return s.scanUser(s.db.QueryRow(ctx, query, tenantID, strings.TrimSpace(email)))
}

// GetByID fetches an active user scoped to the tenant.
func (s *PostgresStore) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE
	`
	return s.scanUser(s.db.QueryRow(ctx, query, id, tenantID))
}

func (s *PostgresStore) scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: select user: %w", err)
	}
	return &u, nil
}
