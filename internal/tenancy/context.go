package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const actorKey ctxKey = "peegflow.actor"

// Role identifies what a user may do inside a tenant.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePatient Role = "patient"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RolePatient
}

// Actor is the request-scoped identity threaded through every engine call.
// It replaces any ambient global state: tenant, user, and role travel with
// the request context and nowhere else.
type Actor struct {
	TenantID   uuid.UUID
	TenantSlug string
	UserID     uuid.UUID
	Role       Role

	// PatientID is set when the actor is a patient-portal user linked to a
	// patient record. Nil for admins and for patient users whose access
	// link has been revoked.
	PatientID *uuid.UUID
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.TenantID != uuid.Nil
}
