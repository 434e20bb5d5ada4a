package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// Claims is the credential payload: tenant, user, role, and the registered
// id/expiry fields used for revocation.
type Claims struct {
	TenantID   string `json:"tid"`
	TenantSlug string `json:"slug"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the verified identity behind a credential.
type Session struct {
	Tenant *tenancy.Tenant
	UserID uuid.UUID
	Role   tenancy.Role
	Claims Claims
}

// UserStore is the subset of user storage Sessions needs.
type UserStore interface {
	FindActiveByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error)
}

// TenantResolver maps slugs to tenants.
type TenantResolver interface {
	Resolve(ctx context.Context, slug string) (*tenancy.Tenant, error)
}

// Sessions issues and verifies HMAC-signed bearer credentials.
type Sessions struct {
	secret   []byte
	ttl      time.Duration
	users    UserStore
	resolver TenantResolver
	revoked  RevocationList
	logger   *logging.Logger
	now      func() time.Time
}

// NewSessions wires the session service. The revocation list is optional;
// without one, logout degrades to client-side credential discard and tokens
// die only by expiry.
func NewSessions(secret string, ttl time.Duration, users UserStore, resolver TenantResolver, revoked RevocationList, logger *logging.Logger) *Sessions {
	if secret == "" {
		panic("identity: signing secret required")
	}
	if users == nil || resolver == nil {
		panic("identity: user store and tenant resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sessions{
		secret:   []byte(secret),
		ttl:      ttl,
		users:    users,
		resolver: resolver,
		revoked:  revoked,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates a (tenant, email, password) triple and issues a bearer
// credential bound to (tenant, user, role). All credential failures collapse
// into ErrInvalidCredentials.
func (s *Sessions) Login(ctx context.Context, tenantSlug, email, password string) (string, *User, error) {
	tenant, err := s.resolver.Resolve(ctx, tenantSlug)
	if err != nil {
		return "", nil, err
	}

	user, err := s.users.FindActiveByEmail(ctx, tenant.ID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := Claims{
		TenantID:   tenant.ID.String(),
		TenantSlug: tenant.Slug,
		Role:       string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("identity: sign token: %w", err)
	}

	s.logger.Info("login", "tenant", tenant.Slug, "user", user.ID.String(), "role", string(user.Role))
	return token, user, nil
}

// Verify validates a bearer credential and returns the bound session. Any
// defect — bad signature, expiry, revocation, vanished tenant, malformed
// claims — yields ErrUnauthenticated.
func (s *Sessions) Verify(ctx context.Context, rawToken string) (*Session, error) {
	claims, err := s.parse(rawToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if s.revoked != nil && claims.ID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("identity: revocation lookup: %w", err)
		}
		if revoked {
			return nil, ErrUnauthenticated
		}
	}

	tenant, err := s.resolver.Resolve(ctx, claims.TenantSlug)
	if err != nil {
		if errors.Is(err, tenancy.ErrUnknownTenant) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if tenant.ID.String() != claims.TenantID {
		return nil, ErrUnauthenticated
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	role := tenancy.Role(claims.Role)
	if !role.Valid() {
		return nil, ErrUnauthenticated
	}

	return &Session{Tenant: tenant, UserID: userID, Role: role, Claims: *claims}, nil
}

// Logout revokes the credential's id for the remainder of its lifetime.
// Without a revocation list this is a no-op and discard is client-side only.
func (s *Sessions) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.parse(rawToken)
	if err != nil {
		return ErrUnauthenticated
	}
	if s.revoked == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now()))
}

// Me returns the user record behind a verified session.
func (s *Sessions) Me(ctx context.Context, session *Session) (*User, error) {
	user, err := s.users.GetByID(ctx, session.Tenant.ID, session.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

func (s *Sessions) parse(rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
