// Package platform holds the cross-tenant provisioning surface. It is
// reachable only with the static platform token and never through a
// tenant session.
package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

var (
	ErrSlugTaken        = errors.New("platform: tenant slug already in use")
	ErrInvalidSlug      = errors.New("platform: invalid tenant slug")
	ErrInvalidProvision = errors.New("platform: invalid provision request")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// TenantSummary is the provisioning view of a tenant, including fields
// a tenant-scoped session never sees.
type TenantSummary struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProvisionRequest creates a tenant together with its first admin user
// in one transaction. A tenant without an admin cannot be logged into,
// so the two never exist apart.
type ProvisionRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

type provisionerDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Provisioner struct {
	db     provisionerDB
	logger *logging.Logger
}

func NewProvisioner(pool *pgxpool.Pool, logger *logging.Logger) *Provisioner {
	if pool == nil {
		panic("platform: nil pool")
	}
	return NewProvisionerWithDB(pool, logger)
}

// NewProvisionerWithDB accepts any DB implementation, for tests.
func NewProvisionerWithDB(db provisionerDB, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Provisioner{db: db, logger: logger}
}

func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*TenantSummary, error) {
	name := strings.TrimSpace(req.Name)
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	email := strings.ToLower(strings.TrimSpace(req.AdminEmail))

	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidProvision)
	}
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	if email == "" || req.AdminPassword == "" {
		return nil, fmt.Errorf("%w: admin email and password are required", ErrInvalidProvision)
	}

	hash, err := identity.HashPassword(req.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("platform: hash admin password: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("platform: begin provision: %w", err)
	}
	defer tx.Rollback(ctx)

	tenant := &TenantSummary{ID: uuid.New(), Slug: slug, Name: name, IsActive: true}
	err = tx.QueryRow(ctx, `
		INSERT INTO tenants (id, slug, name, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING created_at
	`, tenant.ID, tenant.Slug, tenant.Name).Scan(&tenant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("platform: insert tenant: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, uuid.New(), tenant.ID, email, hash, tenancy.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("platform: insert admin user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("platform: commit provision: %w", err)
	}

	p.logger.Info("tenant provisioned", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return tenant, nil
}

func (p *Provisioner) ListTenants(ctx context.Context) ([]TenantSummary, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, slug, name, is_active, created_at
		FROM tenants
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("platform: list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []TenantSummary{}
	for rows.Next() {
		var t TenantSummary
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("platform: scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
