package handlers

import (
	"context"
	"net/http"

	"github.com/peegflow-code/peegflow/internal/platform"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// TenantProvisioner is the slice of platform.Provisioner the handler uses.
type TenantProvisioner interface {
	Provision(ctx context.Context, req platform.ProvisionRequest) (*platform.TenantSummary, error)
	ListTenants(ctx context.Context) ([]platform.TenantSummary, error)
}

// PlatformHandler serves the cross-tenant provisioning API. It sits behind
// the static platform token, not behind tenant sessions.
type PlatformHandler struct {
	provisioner TenantProvisioner
	logger      *logging.Logger
}

func NewPlatformHandler(provisioner TenantProvisioner, logger *logging.Logger) *PlatformHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PlatformHandler{provisioner: provisioner, logger: logger}
}

func (h *PlatformHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req platform.ProvisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	tenant, err := h.provisioner.Provision(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *PlatformHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.provisioner.ListTenants(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}
