// Package handlers contains the HTTP surface of the scheduling API. Each
// handler decodes input, delegates to a service, and maps domain errors to
// stable wire codes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/peegflow-code/peegflow/internal/finance"
	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/patients"
	"github.com/peegflow-code/peegflow/internal/platform"
	"github.com/peegflow-code/peegflow/internal/scheduling"
	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps domain errors onto HTTP statuses with stable string
// codes. Unknown errors become an opaque 500 so internals never leak.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: code, Message: publicMessage(code, err)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, tenancy.ErrUnknownTenant):
		return http.StatusNotFound, "unknown_tenant"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, identity.ErrTenantMismatch):
		return http.StatusForbidden, "tenant_mismatch"
	case errors.Is(err, scheduling.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, scheduling.ErrNotFound),
		errors.Is(err, patients.ErrPatientNotFound),
		errors.Is(err, finance.ErrExpenseNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, scheduling.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, scheduling.ErrInvalidWindow),
		errors.Is(err, finance.ErrInvalidPeriod),
		errors.Is(err, finance.ErrInvalidExpense),
		errors.Is(err, patients.ErrNameRequired),
		errors.Is(err, patients.ErrEmailRequired),
		errors.Is(err, platform.ErrInvalidSlug),
		errors.Is(err, platform.ErrInvalidProvision):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, platform.ErrSlugTaken):
		return http.StatusConflict, "slug_taken"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func publicMessage(code string, err error) string {
	if code == "internal" {
		return "internal server error"
	}
	return err.Error()
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: message})
}

// actorOr401 pulls the authenticated actor installed by the auth
// middleware. A missing actor means a route was wired outside the
// authenticated group.
func actorOr401(w http.ResponseWriter, r *http.Request) (tenancy.Actor, bool) {
	actor, ok := tenancy.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "missing session"})
	}
	return actor, ok
}
