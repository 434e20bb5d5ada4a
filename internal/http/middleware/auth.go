package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/patients"
	"github.com/peegflow-code/peegflow/internal/tenancy"
)

// TenantHeader carries the slug of the tenant the caller believes it is
// addressing. It must match the tenant bound into the session token.
const TenantHeader = "X-Tenant"

// SessionVerifier is the subset of identity.Sessions the middleware needs.
type SessionVerifier interface {
	Verify(ctx context.Context, rawToken string) (*identity.Session, error)
}

// PatientLinker resolves the patient record linked to a portal user, so
// patient sessions act on their own rows only.
type PatientLinker interface {
	FindByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*patients.Patient, error)
}

// Authenticate verifies the bearer token, enforces the X-Tenant header
// against the token's tenant, and installs a tenancy.Actor on the request
// context. Patient sessions get their patient id resolved here once, so
// downstream services never look it up again.
func Authenticate(sessions SessionVerifier, linker PatientLinker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			session, err := sessions.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
					return
				}
				// Revocation or tenant lookup failed, not the credential.
				writeAuthError(w, http.StatusInternalServerError, "internal", "session verification failed")
				return
			}

			if header := strings.ToLower(strings.TrimSpace(r.Header.Get(TenantHeader))); header != "" && header != session.Tenant.Slug {
				writeAuthError(w, http.StatusForbidden, "tenant_mismatch", "token is bound to a different tenant")
				return
			}

			actor := tenancy.Actor{
				TenantID:   session.Tenant.ID,
				TenantSlug: session.Tenant.Slug,
				UserID:     session.UserID,
				Role:       session.Role,
			}
			if session.Role == tenancy.RolePatient && linker != nil {
				patient, err := linker.FindByUserID(r.Context(), session.Tenant.ID, session.UserID)
				switch {
				case err == nil:
					actor.PatientID = &patient.ID
				case errors.Is(err, patients.ErrPatientNotFound):
					// Portal user whose patient link was revoked mid-session.
					// The actor stays unlinked and sees no appointments.
				default:
					writeAuthError(w, http.StatusInternalServerError, "internal", "failed to resolve patient link")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin rejects non-admin sessions. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenancy.ActorFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing session")
			return
		}
		if !actor.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePlatformToken guards the cross-tenant provisioning surface with a
// static token. When expected is empty the surface is disabled entirely.
func RequirePlatformToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				writeAuthError(w, http.StatusNotFound, "not_found", "platform API disabled")
				return
			}
			token, _ := bearerToken(r)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid platform token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
