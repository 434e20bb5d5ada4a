// Package tenancy resolves tenants and carries the per-request actor.
// Every storage access path in the engine takes an explicit tenant id; this
// package is the only place a slug is turned into one.
package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownTenant is returned when a slug does not match a registered,
// active tenant.
var ErrUnknownTenant = errors.New("tenancy: unknown tenant")

// Tenant is an isolated practice. Identity is immutable after creation.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

const cacheTTL = 5 * time.Minute

type resolverDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolver maps tenant slugs to tenant records, with an optional Redis
// read-through cache in front of Postgres.
type Resolver struct {
	db    resolverDB
	cache *redis.Client
}

// NewResolver initializes a resolver backed by pgxpool. The redis client is
// optional; pass nil to resolve straight from the database.
func NewResolver(pool *pgxpool.Pool, cache *redis.Client) *Resolver {
	if pool == nil {
		panic("tenancy: pgx pool required")
	}
	return &Resolver{db: pool, cache: cache}
}

// NewResolverWithDB is the test seam used with pgxmock.
func NewResolverWithDB(db resolverDB, cache *redis.Client) *Resolver {
	return &Resolver{db: db, cache: cache}
}

// Resolve returns the active tenant for the slug or ErrUnknownTenant.
func (r *Resolver) Resolve(ctx context.Context, slug string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrUnknownTenant
	}

	if t, ok := r.cached(ctx, slug); ok {
		return t, nil
	}

	query := `
		SELECT id, name, slug, is_active, created_at
		FROM tenants
		WHERE slug = $1 AND is_active = TRUE
	`
	var t Tenant
	if err := r.db.QueryRow(ctx, query, slug).Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.IsActive,
		&t.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownTenant
		}
		return nil, fmt.Errorf("tenancy: resolve slug: %w", err)
	}

	r.store(ctx, &t)
	return &t, nil
}

func (r *Resolver) cached(ctx context.Context, slug string) (*Tenant, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(slug)).Result()
	if err != nil {
		return nil, false
	}
	var t Tenant
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (r *Resolver) store(ctx context.Context, t *Tenant) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	// Cache write failures are ignored; the database remains authoritative.
	_ = r.cache.Set(ctx, cacheKey(t.Slug), data, cacheTTL).Err()
}

func cacheKey(slug string) string {
	return "peegflow:tenant:" + slug
}
