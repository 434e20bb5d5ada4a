// Package scheduling owns the appointment lifecycle: slot generation,
// booking, cancellation, and status advancement. Cancellation is a status,
// never a row deletion; finance aggregation depends on the full history
// staying in place.
package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recoverable business errors. Callers map these to user-facing responses;
// anything else coming out of this package is a storage fault.
var (
	// ErrSlotUnavailable means another caller won the slot. Distinct from
	// ErrInvalidTransition so clients know to refresh rather than report a
	// stale-state bug.
	ErrSlotUnavailable = errors.New("scheduling: slot unavailable")

	// ErrInvalidTransition means the requested lifecycle move is illegal
	// from the appointment's current status.
	ErrInvalidTransition = errors.New("scheduling: invalid status transition")

	// ErrInvalidWindow means the bulk-creation window or duration is
	// malformed.
	ErrInvalidWindow = errors.New("scheduling: invalid time window")

	// ErrNotFound means no appointment with that id exists in the tenant.
	ErrNotFound = errors.New("scheduling: appointment not found")

	// ErrForbidden means the actor's role does not permit the operation.
	ErrForbidden = errors.New("scheduling: operation not permitted for role")
)

// Appointment is a bookable (or booked) time slot belonging to one tenant.
// The tenant reference is set at creation and never changes.
type Appointment struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	StartAt    time.Time  `json:"start_at"`
	EndAt      time.Time  `json:"end_at"`
	Status     Status     `json:"status"`
	PriceCents int64      `json:"price_cents"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`

	// Display fields resolved from the patient directory on reads; empty
	// unless the appointment carries a patient reference.
	PatientName  string `json:"patient_name,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
