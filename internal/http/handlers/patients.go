package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/patients"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// PatientDirectory is the slice of the patients store the handler uses.
type PatientDirectory interface {
	Create(ctx context.Context, tenantID uuid.UUID, req patients.CreateRequest) (*patients.Patient, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]patients.Patient, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*patients.Patient, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, req patients.UpdateRequest) (*patients.Patient, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	GrantAccess(ctx context.Context, tenantID, id uuid.UUID, password string) (*patients.Patient, error)
	RevokeAccess(ctx context.Context, tenantID, id uuid.UUID) (*patients.Patient, error)
}

// PatientsHandler exposes the admin-only patient directory. Route guards
// sit in the router; every method still reads the actor for tenant scope.
type PatientsHandler struct {
	store  PatientDirectory
	logger *logging.Logger
}

func NewPatientsHandler(store PatientDirectory, logger *logging.Logger) *PatientsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientsHandler{store: store, logger: logger}
}

func (h *PatientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var req patients.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	patient, err := h.store.Create(r.Context(), actor.TenantID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	list, err := h.store.List(r.Context(), actor.TenantID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *PatientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, ok := patientID(w, r)
	if !ok {
		return
	}
	patient, err := h.store.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, ok := patientID(w, r)
	if !ok {
		return
	}
	var req patients.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	patient, err := h.store.Update(r.Context(), actor.TenantID, id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, ok := patientID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), actor.TenantID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantAccessRequest struct {
	Password string `json:"password"`
}

// GrantAccess creates or reactivates the portal login linked to a patient.
func (h *PatientsHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, ok := patientID(w, r)
	if !ok {
		return
	}
	var req grantAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.Password == "" {
		writeBadRequest(w, "password is required")
		return
	}
	patient, err := h.store.GrantAccess(r.Context(), actor.TenantID, id, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("portal access granted", "tenant_id", actor.TenantID, "patient_id", id)
	writeJSON(w, http.StatusOK, patient)
}

// RevokeAccess deactivates the portal login. The patient record itself and
// its appointment history are untouched.
func (h *PatientsHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	id, ok := patientID(w, r)
	if !ok {
		return
	}
	patient, err := h.store.RevokeAccess(r.Context(), actor.TenantID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("portal access revoked", "tenant_id", actor.TenantID, "patient_id", id)
	writeJSON(w, http.StatusOK, patient)
}

func patientID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		writeBadRequest(w, "invalid patient id")
		return uuid.Nil, false
	}
	return id, true
}
