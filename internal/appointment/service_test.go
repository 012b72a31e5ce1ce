package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/directory"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

type memRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]Appointment)}
}

func (r *memRepo) put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[a.ID] = a
}

func (r *memRepo) Create(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Status = StatusPending
	a.PaymentStatus = PaymentNotRequested
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.appts[a.ID] = a
	return &a, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) RequestPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != StatusPending || a.PaymentStatus == PaymentCompleted {
		return nil, ErrAppointmentNotFound
	}
	a.PaymentRequired = true
	a.PaymentAmount = decimal.NewNullDecimal(amount)
	a.PaymentStatus = PaymentPending
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) Approve(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != StatusPending || !a.PaymentRequired {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusApproved
	a.PaymentStatus = PaymentCompleted
	r.appts[id] = a
	return &a, nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	mr       *miniredis.Miniredis
	facility directory.Facility
	provider directory.Provider
	patient  directory.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := directory.NewMemory()
	facility := directory.Facility{ID: uuid.New(), Name: "City Hospital", Active: true}
	provider := directory.Provider{ID: uuid.New(), FacilityID: facility.ID, Name: "Asha Rao", Email: "asha@example.com"}
	patient := directory.Patient{ID: uuid.New(), Name: "Ravi Kumar", Email: "ravi@example.com"}
	dir.AddFacility(facility)
	dir.AddProvider(provider)
	dir.AddPatient(patient)

	repo := newMemRepo()
	return &fixture{
		svc:      NewService(repo, dir, redisclient.NewRedisLocker(client, 5*time.Second), nil, zap.NewNop()),
		repo:     repo,
		mr:       mr,
		facility: facility,
		provider: provider,
		patient:  patient,
	}
}

func (f *fixture) seed(status AppointmentStatus) Appointment {
	a := Appointment{
		ID:            uuid.New(),
		PatientID:     f.patient.ID,
		ProviderID:    f.provider.ID,
		FacilityID:    f.facility.ID,
		ScheduledAt:   time.Now().Add(24 * time.Hour),
		Status:        status,
		PaymentStatus: PaymentNotRequested,
	}
	f.repo.put(a)
	return a
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	notes := "follow-up"

	appt, err := f.svc.Create(context.Background(), CreateInput{
		PatientID:   f.patient.ID,
		ProviderID:  f.provider.ID,
		FacilityID:  f.facility.ID,
		ScheduledAt: time.Now().Add(time.Hour),
		Notes:       &notes,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.False(t, appt.PaymentRequired)
	assert.Equal(t, PaymentNotRequested, appt.PaymentStatus)
	assert.False(t, appt.PaymentAmount.Valid)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := CreateInput{
		PatientID:   f.patient.ID,
		ProviderID:  f.provider.ID,
		FacilityID:  f.facility.ID,
		ScheduledAt: time.Now().Add(time.Hour),
	}

	in := base
	in.PatientID = uuid.New()
	_, err := f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	in = base
	in.ProviderID = uuid.New()
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	in = base
	in.ScheduledAt = time.Time{}
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrMissingSchedule)

	other := directory.Facility{ID: uuid.New(), Name: "Lake Clinic"}
	f.svc.dir.(*directory.Memory).AddFacility(other)
	in = base
	in.FacilityID = other.ID
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrProviderNotAtSite)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestSetStatusApprovedAlwaysRejected(t *testing.T) {
	for _, prior := range []AppointmentStatus{StatusPending, StatusApproved, StatusDenied, StatusCancelled, StatusCompleted} {
		t.Run(string(prior), func(t *testing.T) {
			f := newFixture(t)
			appt := f.seed(prior)

			_, err := f.svc.SetStatus(context.Background(), f.provider.ID, appt.ID, StatusApproved)
			assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

			stored, err := f.svc.Get(context.Background(), appt.ID)
			require.NoError(t, err)
			assert.Equal(t, prior, stored.Status)
		})
	}
}

func TestSetStatusTransitions(t *testing.T) {
	for _, to := range []AppointmentStatus{StatusDenied, StatusCancelled, StatusCompleted} {
		t.Run(string(to), func(t *testing.T) {
			f := newFixture(t)
			appt := f.seed(StatusPending)

			updated, err := f.svc.SetStatus(context.Background(), f.provider.ID, appt.ID, to)
			require.NoError(t, err)
			assert.Equal(t, to, updated.Status)

			// terminal states do not move again
			_, err = f.svc.SetStatus(context.Background(), f.provider.ID, appt.ID, StatusCancelled)
			assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		})
	}
}

func TestSetStatusRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	_, err := f.svc.SetStatus(ctx, uuid.New(), appt.ID, StatusDenied)
	assert.ErrorIs(t, err, ErrNotProviderOwned)

	_, err = f.svc.SetStatus(ctx, f.provider.ID, appt.ID, AppointmentStatus("RESCHEDULED"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = f.svc.SetStatus(ctx, f.provider.ID, appt.ID, StatusPending)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, f.provider.ID, uuid.New(), StatusDenied)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRequestPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	updated, err := f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.RequireFromString("500.00"))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, updated.Status)
	assert.True(t, updated.PaymentRequired)
	assert.Equal(t, PaymentPending, updated.PaymentStatus)
	assert.True(t, updated.PaymentAmount.Decimal.Equal(decimal.NewFromInt(500)))
	assert.False(t, f.mr.Exists(redisclient.AppointmentKey(appt.ID)), "lock released")
}

func TestRequestPaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	_, err := f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.NewFromInt(-10))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = f.svc.RequestPayment(ctx, uuid.New(), appt.ID, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrNotProviderOwned)

	cancelled := f.seed(StatusCancelled)
	_, err = f.svc.RequestPayment(ctx, f.provider.ID, cancelled.ID, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.PaymentRequired)
}

func TestRequestPaymentAmountPrecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	for _, raw := range []string{"0.001", "0.004", "19.999", "10000000000", "10000000000.00", "123456789012.50"} {
		_, err := f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.RequireFromString(raw))
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.PaymentRequired)

	for _, raw := range []string{"0.01", "1.000", "9999999999.99"} {
		_, err := f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.RequireFromString(raw))
		assert.NoError(t, err, raw)
	}
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(decimal.RequireFromString("500.00")))
	assert.False(t, ValidAmount(decimal.RequireFromString("0.001")))
	assert.False(t, ValidAmount(MaxPaymentAmount))
	assert.True(t, ValidAmount(MaxPaymentAmount.Sub(decimal.RequireFromString("0.01"))))
}

func TestRequestPaymentWhileLocked(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(StatusPending)
	require.NoError(t, f.mr.Set(redisclient.AppointmentKey(appt.ID), "someone-else"))

	_, err := f.svc.RequestPayment(context.Background(), f.provider.ID, appt.ID, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrAppointmentBusy)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	_, err := f.svc.Approve(ctx, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "no payment requested")

	_, err = f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.NewFromInt(500))
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, PaymentCompleted, approved.PaymentStatus)
	assert.True(t, approved.Approvable())

	_, err = f.svc.Approve(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentSettled)

	_, err = f.svc.Approve(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApproveAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusPending)

	_, err := f.svc.RequestPayment(ctx, f.provider.ID, appt.ID, decimal.NewFromInt(500))
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.provider.ID, appt.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, PaymentPending, stored.PaymentStatus)
}
