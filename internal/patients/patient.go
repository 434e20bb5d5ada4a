// Package patients is the tenant-scoped patient directory. It owns the
// revocable link between a patient record and a portal user: access can be
// granted, revoked, and restored without touching the patient's history.
package patients

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPatientNotFound means no patient with that id exists in the tenant.
	ErrPatientNotFound = errors.New("patients: patient not found")

	// ErrNameRequired rejects a patient record without a display name.
	ErrNameRequired = errors.New("patients: full name is required")

	// ErrEmailRequired rejects portal access for a patient without an email.
	ErrEmailRequired = errors.New("patients: email is required for portal access")
)

// Patient is a client of the practice. UserID is nil unless portal access is
// currently granted.
type Patient struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"-"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateRequest carries the fields for a new patient record. When
// AccessPassword is non-empty a portal user is created and linked in the
// same transaction.
type CreateRequest struct {
	FullName       string     `json:"full_name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	BirthDate      *time.Time `json:"birth_date"`
	Notes          string     `json:"notes"`
	AccessPassword string     `json:"access_password,omitempty"`
}

// UpdateRequest carries the mutable patient fields. Nil pointers leave the
// current value untouched.
type UpdateRequest struct {
	FullName  *string    `json:"full_name"`
	Email     *string    `json:"email"`
	Phone     *string    `json:"phone"`
	BirthDate *time.Time `json:"birth_date"`
	Notes     *string    `json:"notes"`
}

func (r *CreateRequest) validate() error {
	if r.FullName == "" {
		return ErrNameRequired
	}
	if r.AccessPassword != "" && r.Email == "" {
		return ErrEmailRequired
	}
	return nil
}
