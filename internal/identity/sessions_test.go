package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

type fakeUserStore struct {
	users map[string]*User // keyed by tenantID/email
}

func (f *fakeUserStore) FindActiveByEmail(_ context.Context, tenantID uuid.UUID, email string) (*User, error) {
	u, ok := f.users[tenantID.String()+"/"+email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (*User, error) {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

type fakeResolver struct {
	tenants map[string]*tenancy.Tenant
}

func (f *fakeResolver) Resolve(_ context.Context, slug string) (*tenancy.Tenant, error) {
	t, ok := f.tenants[slug]
	if !ok {
		return nil, tenancy.ErrUnknownTenant
	}
	return t, nil
}

type fixture struct {
	sessions *Sessions
	tenant   *tenancy.Tenant
	user     *User
	resolver *fakeResolver
}

func newFixture(t *testing.T, revoked RevocationList) *fixture {
	t.Helper()
	tenant := &tenancy.Tenant{ID: uuid.New(), Name: "Clinic A", Slug: "clinic-a", IsActive: true}
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	user := &User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        "ana@clinic-a.test",
		PasswordHash: hash,
		Role:         tenancy.RoleAdmin,
		IsActive:     true,
	}
	store := &fakeUserStore{users: map[string]*User{tenant.ID.String() + "/" + user.Email: user}}
	resolver := &fakeResolver{tenants: map[string]*tenancy.Tenant{tenant.Slug: tenant}}
	sessions := NewSessions("test-secret", time.Hour, store, resolver, revoked, logging.New("error"))
	return &fixture{sessions: sessions, tenant: tenant, user: user, resolver: resolver}
}

func TestLoginAndVerify(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	token, user, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	require.NotEmpty(t, token)

	session, err := f.sessions.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.ID, session.Tenant.ID)
	assert.Equal(t, f.user.ID, session.UserID)
	assert.Equal(t, tenancy.RoleAdmin, session.Role)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Wrong password and unknown email produce the same error.
	_, _, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.sessions.Login(ctx, "clinic-a", "nobody@clinic-a.test", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownTenant(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.sessions.Login(context.Background(), "ghost", "ana@clinic-a.test", "s3cret")
	assert.ErrorIs(t, err, tenancy.ErrUnknownTenant)
}

func TestVerifyGarbageToken(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sessions.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	token, _, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "s3cret")
	require.NoError(t, err)

	f.sessions.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = f.sessions.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyTenantGone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	token, _, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "s3cret")
	require.NoError(t, err)

	delete(f.resolver.tenants, "clinic-a")
	_, err = f.sessions.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer func() { _ = client.Close() }()

	f := newFixture(t, NewRedisRevocationList(client))
	ctx := context.Background()

	token, _, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "s3cret")
	require.NoError(t, err)
	_, err = f.sessions.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.sessions.Logout(ctx, token))
	_, err = f.sessions.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "revoked token must not verify")

	// Other tokens are unaffected.
	token2, _, err := f.sessions.Login(ctx, "clinic-a", "ana@clinic-a.test", "s3cret")
	require.NoError(t, err)
	_, err = f.sessions.Verify(ctx, token2)
	assert.NoError(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}
