package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/peegflow-code/peegflow/internal/scheduling"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

type AppointmentsHandler struct {
	svc    *scheduling.Service
	logger *logging.Logger
	now    func() time.Time
}

func NewAppointmentsHandler(svc *scheduling.Service, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger, now: time.Now}
}

// BulkCreate expands a working-day grid into available slots. Slots that
// would overlap existing non-canceled appointments are skipped, which makes
// repeating the same request a no-op.
func (h *AppointmentsHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var req scheduling.BulkCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	result, err := h.svc.BulkCreate(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Range lists appointments in an inclusive date window. Patients only ever
// see their own rows regardless of the window asked for.
func (h *AppointmentsHandler) Range(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	appts, err := h.svc.Range(r.Context(), actor, q.Get("date_from"), q.Get("date_to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

// Available lists open future slots anyone in the tenant may book.
func (h *AppointmentsHandler) Available(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.ListAvailable(r.Context(), actor, h.now().UTC())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

// Mine lists the calling patient's own appointments.
func (h *AppointmentsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

type appointmentRef struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

// Book claims an available slot for the calling patient. Losing a race for
// the slot surfaces as 409 slot_unavailable.
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var ref appointmentRef
	if err := decodeJSON(r, &ref); err != nil || ref.AppointmentID == uuid.Nil {
		writeBadRequest(w, "appointment_id is required")
		return
	}
	appt, err := h.svc.Book(r.Context(), actor, ref.AppointmentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Cancel releases an appointment. Admins may cancel any available or booked
// slot; patients only their own booked ones.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var ref appointmentRef
	if err := decodeJSON(r, &ref); err != nil || ref.AppointmentID == uuid.Nil {
		writeBadRequest(w, "appointment_id is required")
		return
	}
	appt, err := h.svc.Cancel(r.Context(), actor, ref.AppointmentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type setStatusRequest struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	Status        scheduling.Status `json:"status"`
}

// SetStatus records the outcome of a booked appointment, done or no_show.
func (h *AppointmentsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil || req.AppointmentID == uuid.Nil {
		writeBadRequest(w, "appointment_id is required")
		return
	}
	appt, err := h.svc.SetStatus(r.Context(), actor, req.AppointmentID, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
