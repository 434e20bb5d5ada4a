package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

func newTestService() (*Service, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	return NewService(repo, logging.New("error"), nil), repo
}

func adminActor(tenantID uuid.UUID) tenancy.Actor {
	return tenancy.Actor{TenantID: tenantID, UserID: uuid.New(), Role: tenancy.RoleAdmin}
}

func patientActor(tenantID uuid.UUID) tenancy.Actor {
	pid := uuid.New()
	return tenancy.Actor{TenantID: tenantID, UserID: uuid.New(), Role: tenancy.RolePatient, PatientID: &pid}
}

func mustBulk(t *testing.T, svc *Service, actor tenancy.Actor, req BulkCreateRequest) *BulkCreateResult {
	t.Helper()
	res, err := svc.BulkCreate(context.Background(), actor, req)
	require.NoError(t, err)
	return res
}

var defaultGrid = BulkCreateRequest{
	Date:            "2030-06-10",
	StartTime:       "08:00",
	EndTime:         "12:00",
	DurationMinutes: 60,
	PriceCents:      20000,
}

func TestBulkCreateIdempotent(t *testing.T) {
	svc, _ := newTestService()
	admin := adminActor(uuid.New())

	first := mustBulk(t, svc, admin, defaultGrid)
	assert.Equal(t, 4, first.Created)
	assert.Equal(t, 0, first.Skipped)
	assert.Len(t, first.IDs, 4)

	second := mustBulk(t, svc, admin, defaultGrid)
	assert.Equal(t, 0, second.Created, "re-running the same grid must create nothing")
	assert.Equal(t, 4, second.Skipped)
}

func TestBulkCreateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.BulkCreate(context.Background(), patientActor(uuid.New()), defaultGrid)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBookConcurrentExactlyOneWinner(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	res := mustBulk(t, svc, adminActor(tenantID), defaultGrid)
	target := res.IDs[0]

	const callers = 30
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), patientActor(tenantID), target)
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent caller may win the slot")
	assert.Equal(t, callers-1, conflicts)
}

func TestBookRoleAndLinkChecks(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	res := mustBulk(t, svc, adminActor(tenantID), defaultGrid)

	_, err := svc.Book(context.Background(), adminActor(tenantID), res.IDs[0])
	assert.ErrorIs(t, err, ErrForbidden, "admins do not book slots")

	unlinked := tenancy.Actor{TenantID: tenantID, UserID: uuid.New(), Role: tenancy.RolePatient}
	_, err = svc.Book(context.Background(), unlinked, res.IDs[0])
	assert.ErrorIs(t, err, ErrForbidden, "revoked portal access cannot book")
}

func TestBookUnknownAppointment(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Book(context.Background(), patientActor(uuid.New()), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantIsolation(t *testing.T) {
	svc, _ := newTestService()
	tenantA := uuid.New()
	tenantB := uuid.New()
	ctx := context.Background()

	resA := mustBulk(t, svc, adminActor(tenantA), defaultGrid)

	// The same grid in tenant B must not collide with tenant A's slots.
	resB := mustBulk(t, svc, adminActor(tenantB), defaultGrid)
	assert.Equal(t, 4, resB.Created, "overlap checks are tenant-scoped")

	// Queries scoped to B never return A's entities.
	listB, err := svc.ListAvailable(ctx, adminActor(tenantB), time.Date(2030, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	idsA := map[uuid.UUID]bool{}
	for _, id := range resA.IDs {
		idsA[id] = true
	}
	for _, appt := range listB {
		assert.False(t, idsA[appt.ID], "tenant B query returned tenant A appointment")
	}

	// An appointment id from tenant A is invisible through tenant B.
	_, err = svc.Book(ctx, patientActor(tenantB), resA.IDs[0])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNonCanceledIntervalsStayDisjoint(t *testing.T) {
	svc, repo := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	mustBulk(t, svc, adminActor(tenantID), defaultGrid)

	// A shifted grid overlapping every existing slot creates nothing new.
	shifted := defaultGrid
	shifted.StartTime = "08:30"
	shifted.EndTime = "11:30"
	res := mustBulk(t, svc, adminActor(tenantID), shifted)
	assert.Equal(t, 0, res.Created)

	appts, err := repo.Range(ctx, tenantID,
		time.Date(2030, 6, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 11, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	for i := 0; i < len(appts); i++ {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.Status == StatusCanceled || b.Status == StatusCanceled {
				continue
			}
			overlap := a.StartAt.Before(b.EndAt) && b.StartAt.Before(a.EndAt)
			assert.False(t, overlap, "non-canceled appointments %s and %s overlap", a.ID, b.ID)
		}
	}
}

func TestCancelLifecycle(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	admin := adminActor(tenantID)
	patient := patientActor(tenantID)
	res := mustBulk(t, svc, admin, defaultGrid)

	// Admin blocks an open slot.
	blocked, err := svc.Cancel(ctx, admin, res.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, blocked.Status)

	// Patient releases their own booking; the slot does not reopen.
	booked, err := svc.Book(ctx, patient, res.IDs[1])
	require.NoError(t, err)
	released, err := svc.Cancel(ctx, patient, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, released.Status)
	assert.NotNil(t, released.PatientID, "patient reference is retained for audit")
	_, err = svc.Book(ctx, patientActor(tenantID), booked.ID)
	assert.ErrorIs(t, err, ErrSlotUnavailable, "a released booking must not be bookable again")

	// A patient cannot release someone else's booking.
	other, err := svc.Book(ctx, patientActor(tenantID), res.IDs[2])
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, patient, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// A patient cannot block an open slot.
	_, err = svc.Cancel(ctx, patient, res.IDs[3])
	assert.ErrorIs(t, err, ErrForbidden)

	// Cancel on a terminal appointment fails with InvalidTransition.
	_, err = svc.Cancel(ctx, admin, blocked.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	done, err := svc.SetStatus(ctx, admin, other.ID, StatusDone)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, admin, done.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetStatusRules(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	admin := adminActor(tenantID)
	patient := patientActor(tenantID)
	res := mustBulk(t, svc, admin, defaultGrid)

	// Only booked appointments can be advanced.
	_, err := svc.SetStatus(ctx, admin, res.IDs[0], StatusDone)
	assert.ErrorIs(t, err, ErrInvalidTransition, "available -> done must fail")

	booked, err := svc.Book(ctx, patient, res.IDs[0])
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, patient, booked.ID, StatusDone)
	assert.ErrorIs(t, err, ErrForbidden, "patients may not set outcomes")

	_, err = svc.SetStatus(ctx, admin, booked.ID, StatusCanceled)
	assert.ErrorIs(t, err, ErrInvalidTransition, "set-status only targets done/no_show")

	done, err := svc.SetStatus(ctx, admin, booked.ID, StatusDone)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)

	_, err = svc.SetStatus(ctx, admin, done.ID, StatusNoShow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal states admit no transition")

	noShow, err := svc.Book(ctx, patient, res.IDs[1])
	require.NoError(t, err)
	advanced, err := svc.SetStatus(ctx, admin, noShow.ID, StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, advanced.Status)
}

func TestListAvailableExcludesPast(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	mustBulk(t, svc, adminActor(tenantID), defaultGrid)

	// Asking from mid-morning hides the slots that already started.
	now := time.Date(2030, 6, 10, 9, 30, 0, 0, time.UTC)
	open, err := svc.ListAvailable(ctx, adminActor(tenantID), now)
	require.NoError(t, err)
	assert.Len(t, open, 2)
	for _, appt := range open {
		assert.True(t, appt.StartAt.After(now), "past slot leaked into availability")
	}

	// After the day is over nothing remains even though statuses never changed.
	open, err = svc.ListAvailable(ctx, adminActor(tenantID), time.Date(2030, 6, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListMine(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	admin := adminActor(tenantID)
	patient := patientActor(tenantID)
	res := mustBulk(t, svc, admin, defaultGrid)

	first, err := svc.Book(ctx, patient, res.IDs[2])
	require.NoError(t, err)
	second, err := svc.Book(ctx, patient, res.IDs[0])
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, first.ID, StatusDone)
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, patient)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "results ordered by start ascending")
	assert.Equal(t, first.ID, mine[1].ID)

	// Another patient sees nothing.
	mine, err = svc.ListMine(ctx, patientActor(tenantID))
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = svc.ListMine(ctx, admin)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRangeScopedByRole(t *testing.T) {
	svc, _ := newTestService()
	tenantID := uuid.New()
	ctx := context.Background()
	admin := adminActor(tenantID)
	patient := patientActor(tenantID)
	res := mustBulk(t, svc, admin, defaultGrid)

	booked, err := svc.Book(ctx, patient, res.IDs[1])
	require.NoError(t, err)

	all, err := svc.Range(ctx, admin, "2030-06-10", "2030-06-10")
	require.NoError(t, err)
	assert.Len(t, all, 4, "admin sees every status in range")

	own, err := svc.Range(ctx, patient, "2030-06-10", "2030-06-10")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, booked.ID, own[0].ID)

	_, err = svc.Range(ctx, admin, "06/10/2030", "2030-06-10")
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
