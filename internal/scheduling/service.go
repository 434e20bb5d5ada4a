package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/peegflow-code/peegflow/internal/observability/metrics"
	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// BulkCreateResult reports what bulk generation actually did.
type BulkCreateResult struct {
	Created int         `json:"created"`
	Skipped int         `json:"skipped"`
	IDs     []uuid.UUID `json:"ids"`
}

// Service applies role rules and the lifecycle table on top of the
// repository's atomic transitions.
type Service struct {
	repo    Repository
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	tracer  trace.Tracer
}

// NewService wires the scheduling service. Metrics may be nil.
func NewService(repo Repository, logger *logging.Logger, m *metrics.BookingMetrics) *Service {
	if repo == nil {
		panic("scheduling: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("peegflow.internal.scheduling"),
	}
}

// BulkCreate expands the request into a slot grid and inserts each candidate
// unless it overlaps an existing non-canceled appointment. Re-running the
// same request is safe: every candidate collides and is skipped.
func (s *Service) BulkCreate(ctx context.Context, actor tenancy.Actor, req BulkCreateRequest) (*BulkCreateResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	slots, err := ExpandGrid(req)
	if err != nil {
		return nil, err
	}

	result := &BulkCreateResult{}
	for _, slot := range slots {
		appt, created, err := s.repo.CreateAvailable(ctx, actor.TenantID, slot, req.PriceCents)
		if err != nil {
			return nil, err
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created++
		result.IDs = append(result.IDs, appt.ID)
	}

	s.metrics.ObserveSlots(result.Created, result.Skipped)
	s.logger.Info("bulk slot generation",
		"tenant", actor.TenantID.String(),
		"date", req.Date,
		"created", result.Created,
		"skipped", result.Skipped,
	)
	return result, nil
}

// Book reserves an available slot for the calling patient. The repository
// performs the atomic available->booked check-and-set; losers of a race get
// ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, actor tenancy.Actor, apptID uuid.UUID) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("peegflow.tenant_id", actor.TenantID.String()),
		attribute.String("peegflow.appointment_id", apptID.String()),
	)

	if actor.Role != tenancy.RolePatient {
		return nil, ErrForbidden
	}
	if actor.PatientID == nil {
		// Portal user with revoked or missing patient link.
		return nil, ErrForbidden
	}

	appt, err := s.repo.Book(ctx, actor.TenantID, apptID, *actor.PatientID)
	if err != nil {
		span.RecordError(err)
		switch err {
		case ErrSlotUnavailable:
			s.metrics.ObserveBooking("conflict")
		case ErrNotFound:
			s.metrics.ObserveBooking("not_found")
		}
		return nil, err
	}

	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointment booked",
		"tenant", actor.TenantID.String(),
		"appointment", apptID.String(),
		"patient", actor.PatientID.String(),
	)
	return appt, nil
}

// Cancel blocks an open slot (admin) or releases a booking (admin or the
// owning patient). A released slot does not reopen as available.
func (s *Service) Cancel(ctx context.Context, actor tenancy.Actor, apptID uuid.UUID) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.cancel")
	defer span.End()

	var owner *uuid.UUID
	if !actor.IsAdmin() {
		if actor.PatientID == nil {
			return nil, ErrForbidden
		}
		owner = actor.PatientID
	}

	appt, err := s.repo.Cancel(ctx, actor.TenantID, apptID, owner)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCanceled))
	return appt, nil
}

// SetStatus records the session outcome: booked -> done or booked -> no_show,
// admin only. Everything else is rejected by the transition table.
func (s *Service) SetStatus(ctx context.Context, actor tenancy.Actor, apptID uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "scheduling.set_status")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if to != StatusDone && to != StatusNoShow {
		return nil, fmt.Errorf("%w: set-status target must be done or no_show", ErrInvalidTransition)
	}
	if !CanTransition(StatusBooked, to) {
		return nil, ErrInvalidTransition
	}

	appt, err := s.repo.Advance(ctx, actor.TenantID, apptID, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(to))
	return appt, nil
}

// Range returns appointments starting within [dateFrom, dateTo] (inclusive
// calendar days), ordered by start ascending. Patients see only their own
// rows; admins see the whole agenda.
func (s *Service) Range(ctx context.Context, actor tenancy.Actor, dateFrom, dateTo string) ([]Appointment, error) {
	from, err := time.ParseInLocation("2006-01-02", dateFrom, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date_from must be YYYY-MM-DD", ErrInvalidWindow)
	}
	to, err := time.ParseInLocation("2006-01-02", dateTo, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date_to must be YYYY-MM-DD", ErrInvalidWindow)
	}
	end := to.Add(24*time.Hour - time.Nanosecond)

	var patientID *uuid.UUID
	if actor.Role == tenancy.RolePatient {
		if actor.PatientID == nil {
			return []Appointment{}, nil
		}
		patientID = actor.PatientID
	}
	return s.repo.Range(ctx, actor.TenantID, from, end, patientID)
}

// ListAvailable returns open slots strictly after now.
func (s *Service) ListAvailable(ctx context.Context, actor tenancy.Actor, now time.Time) ([]Appointment, error) {
	return s.repo.ListAvailable(ctx, actor.TenantID, now)
}

// ListMine returns the calling patient's appointment history.
func (s *Service) ListMine(ctx context.Context, actor tenancy.Actor) ([]Appointment, error) {
	if actor.Role != tenancy.RolePatient {
		return nil, ErrForbidden
	}
	if actor.PatientID == nil {
		return []Appointment{}, nil
	}
	return s.repo.ListByPatient(ctx, actor.TenantID, *actor.PatientID)
}
