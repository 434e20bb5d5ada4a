package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peegflow-code/peegflow/internal/http/handlers"
	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/patients"
	"github.com/peegflow-code/peegflow/internal/platform"
	"github.com/peegflow-code/peegflow/internal/scheduling"
	"github.com/peegflow-code/peegflow/internal/tenancy"
)

type fixture struct {
	server   *httptest.Server
	tenant   *tenancy.Tenant
	admin    *identity.User
	portal   *identity.User
	patient  *patients.Patient
	sessions *identity.Sessions
}

type staticUsers struct {
	byEmail map[string]*identity.User
}

func (s *staticUsers) FindActiveByEmail(_ context.Context, tenantID uuid.UUID, email string) (*identity.User, error) {
	u, ok := s.byEmail[strings.ToLower(email)]
	if !ok || u.TenantID != tenantID {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (s *staticUsers) GetByID(_ context.Context, tenantID, id uuid.UUID) (*identity.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id && u.TenantID == tenantID {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

type staticResolver struct {
	tenants map[string]*tenancy.Tenant
}

func (s *staticResolver) Resolve(_ context.Context, slug string) (*tenancy.Tenant, error) {
	t, ok := s.tenants[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return nil, tenancy.ErrUnknownTenant
	}
	return t, nil
}

type staticLinker struct {
	patient *patients.Patient
	userID  uuid.UUID
}

func (s *staticLinker) FindByUserID(_ context.Context, _, userID uuid.UUID) (*patients.Patient, error) {
	if s.patient != nil && userID == s.userID {
		return s.patient, nil
	}
	return nil, patients.ErrPatientNotFound
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenant := &tenancy.Tenant{ID: uuid.New(), Slug: "vliet", Name: "Praktijk Vliet", IsActive: true}
	adminHash, err := identity.HashPassword("admin-pass")
	require.NoError(t, err)
	portalHash, err := identity.HashPassword("portal-pass")
	require.NoError(t, err)

	admin := &identity.User{ID: uuid.New(), TenantID: tenant.ID, Email: "admin@vliet.dev", PasswordHash: adminHash, Role: tenancy.RoleAdmin, IsActive: true}
	portal := &identity.User{ID: uuid.New(), TenantID: tenant.ID, Email: "anna@vliet.dev", PasswordHash: portalHash, Role: tenancy.RolePatient, IsActive: true}
	patient := &patients.Patient{ID: uuid.New(), TenantID: tenant.ID, FullName: "Anna de Vries", UserID: &portal.ID}

	users := &staticUsers{byEmail: map[string]*identity.User{admin.Email: admin, portal.Email: portal}}
	resolver := &staticResolver{tenants: map[string]*tenancy.Tenant{tenant.Slug: tenant}}
	sessions := identity.NewSessions("router-test-secret", time.Hour, users, resolver, nil, nil)

	svc := scheduling.NewService(scheduling.NewInMemoryRepository(), nil, nil)

	handler := New(&Config{
		Sessions:            sessions,
		PatientLinker:       &staticLinker{patient: patient, userID: portal.ID},
		AuthHandler:         handlers.NewAuthHandler(sessions, nil),
		AppointmentsHandler: handlers.NewAppointmentsHandler(svc, nil),
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &fixture{server: server, tenant: tenant, admin: admin, portal: portal, patient: patient, sessions: sessions}
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	form := url.Values{"username": {email}, "password": {password}}
	resp, err := http.PostForm(f.server.URL+"/auth/login/"+f.tenant.Slug, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "bearer", body.TokenType)
	return body.AccessToken
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)
	resp, err := http.PostForm(f.server.URL+"/auth/login/vliet", url.Values{
		"username": {"admin@vliet.dev"}, "password": {"wrong"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginUnknownTenantIs404(t *testing.T) {
	f := newFixture(t)
	resp, err := http.PostForm(f.server.URL+"/auth/login/nobody", url.Values{
		"username": {"admin@vliet.dev"}, "password": {"admin-pass"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAppointmentsRequireSession(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/appointments/available")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTenantHeaderMismatchIsRejected(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "admin@vliet.dev", "admin-pass")

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/appointments/available", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tenant", "some-other-practice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	adminToken := f.login(t, "admin@vliet.dev", "admin-pass")
	patientToken := f.login(t, "anna@vliet.dev", "portal-pass")

	// Patients cannot publish slots.
	resp := f.do(t, http.MethodPost, "/appointments/bulk", patientToken,
		`{"date":"2031-04-07","start_time":"09:00","end_time":"11:00","duration_minutes":60,"price_cents":8500}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/appointments/bulk", adminToken,
		`{"date":"2031-04-07","start_time":"09:00","end_time":"11:00","duration_minutes":60,"price_cents":8500}`)
	var created struct {
		Created int         `json:"created"`
		Skipped int         `json:"skipped"`
		IDs     []uuid.UUID `json:"ids"`
	}
	decodeBody(t, resp, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, 2, created.Created)
	require.Len(t, created.IDs, 2)

	slot := created.IDs[0].String()

	resp = f.do(t, http.MethodPost, "/appointments/book", patientToken,
		`{"appointment_id":"`+slot+`"}`)
	var booked scheduling.Appointment
	decodeBody(t, resp, &booked)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, scheduling.StatusBooked, booked.Status)

	// The same slot cannot be claimed twice.
	resp = f.do(t, http.MethodPost, "/appointments/book", patientToken,
		`{"appointment_id":"`+slot+`"}`)
	var conflict struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &conflict)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slot_unavailable", conflict.Error)

	// Outcomes are an admin affair, and canceled is not an outcome.
	resp = f.do(t, http.MethodPost, "/appointments/set-status", adminToken,
		`{"appointment_id":"`+slot+`","status":"canceled"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/appointments/set-status", adminToken,
		`{"appointment_id":"`+slot+`","status":"done"}`)
	var done scheduling.Appointment
	decodeBody(t, resp, &done)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, scheduling.StatusDone, done.Status)

	// The patient sees their own history.
	resp = f.do(t, http.MethodGet, "/appointments/mine", patientToken, "")
	var mine []scheduling.Appointment
	decodeBody(t, resp, &mine)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, mine, 1)
	assert.Equal(t, scheduling.StatusDone, mine[0].Status)
}

func TestMeReturnsProfile(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "admin@vliet.dev", "admin-pass")

	resp := f.do(t, http.MethodGet, "/auth/me", token, "")
	var me identity.User
	decodeBody(t, resp, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin@vliet.dev", me.Email)
	assert.Equal(t, tenancy.RoleAdmin, me.Role)
}

func TestPlatformRoutesGuarded(t *testing.T) {
	f := newFixture(t)

	handler := New(&Config{
		Sessions:        f.sessions,
		PlatformHandler: handlers.NewPlatformHandler(&stubProvisioner{}, nil),
		PlatformToken:   "platform-secret",
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/platform/tenants")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/platform/tenants", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer platform-secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type stubProvisioner struct{}

func (s *stubProvisioner) Provision(_ context.Context, _ platform.ProvisionRequest) (*platform.TenantSummary, error) {
	return nil, platform.ErrInvalidProvision
}

func (s *stubProvisioner) ListTenants(_ context.Context) ([]platform.TenantSummary, error) {
	return []platform.TenantSummary{}, nil
}
