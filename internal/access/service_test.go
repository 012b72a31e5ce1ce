package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/directory"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

type memRepo struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]AccessRequest
}

func newMemRepo() *memRepo {
	return &memRepo{reqs: make(map[uuid.UUID]AccessRequest)}
}

func (r *memRepo) Create(_ context.Context, req AccessRequest) (*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs[req.ID] = req
	return &req, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, ErrAccessRequestNotFound
	}
	return &req, nil
}

func (r *memRepo) Approve(_ context.Context, id uuid.UUID, verifiedAt time.Time) (*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != StatusPending || verifiedAt.After(req.ExpiresAt) {
		return nil, ErrAccessRequestNotFound
	}
	req.Status = StatusApproved
	req.VerifiedAt = &verifiedAt
	r.reqs[id] = req
	return &req, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != from {
		return nil, ErrAccessRequestNotFound
	}
	req.Status = to
	r.reqs[id] = req
	return &req, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

type sentMessage struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to, subject, body})
	return n.err
}

type eventStore struct {
	mu     sync.Mutex
	events []audit.EventLog
}

func (s *eventStore) InsertEvent(_ context.Context, ev audit.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *eventStore) countOf(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	mgr      *Manager
	repo     *memRepo
	notifier *fakeNotifier
	events   *eventStore
	clock    *time.Time
	provider directory.Provider
	patient  directory.Patient
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := directory.NewMemory()
	provider := directory.Provider{ID: uuid.New(), FacilityID: uuid.New(), Name: "asha rao", Email: "asha@example.com"}
	patient := directory.Patient{ID: uuid.New(), Name: "ravi kumar", Email: "ravi@example.com"}
	dir.AddProvider(provider)
	dir.AddPatient(patient)

	f := &fixture{
		repo:     newMemRepo(),
		notifier: &fakeNotifier{},
		events:   &eventStore{},
		provider: provider,
		patient:  patient,
	}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.clock = &now

	cfg := config.OTPConfig{TTL: 15 * time.Minute, Length: 6}
	opts = append([]Option{WithAudit(audit.NewRecorder(f.events, zap.NewNop()))}, opts...)
	f.mgr = NewManager(f.repo, dir, f.notifier, cfg, zap.NewNop(), opts...)
	f.mgr.now = func() time.Time { return *f.clock }
	f.mgr.newCode = func(int) (string, error) { return "483920", nil }
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestIssueCreatesPendingRequestAndSendsOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, req.Status)
	assert.Nil(t, req.VerifiedAt)
	assert.Equal(t, f.clock.Add(15*time.Minute), req.ExpiresAt)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "ravi@example.com", msg.to)
	assert.Equal(t, "MediVault Consultation OTP", msg.subject)
	assert.Equal(t,
		"Dear Ravi Kumar, your one-time OTP for allowing Dr. Asha Rao to view and record your consultation is: 483920. This code is valid for 15 minutes.",
		msg.body)
	assert.Equal(t, 1, f.events.countOf(EventAccessRequested))
}

func TestScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	_, err = f.mgr.Verify(ctx, req.ID, "000000")
	assert.ErrorIs(t, err, ErrOTPMismatch)
	assert.ErrorIs(t, err, apperr.ErrAuthentication)

	stored, err := f.mgr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	f.advance(time.Minute)
	approved, err := f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, req.ID, approved.ID)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.VerifiedAt)
	firstVerifiedAt := *approved.VerifiedAt

	f.advance(time.Minute)
	again, err := f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, req.ID, again.ID)
	assert.Equal(t, firstVerifiedAt, *again.VerifiedAt)
}

func TestVerifyAfterApprovalIgnoresCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)
	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)

	// past expiry and with a wrong code: still an idempotent success
	f.advance(time.Hour)
	again, err := f.mgr.Verify(ctx, req.ID, "111111")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, again.Status)
}

func TestScenarioCUnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Issue(context.Background(), f.provider.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, f.repo.count())
	assert.Empty(t, f.notifier.sent)
}

func TestIssueUnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Issue(context.Background(), uuid.New(), f.patient.ID)
	assert.ErrorIs(t, err, directory.ErrProviderNotFound)
	assert.Equal(t, 0, f.repo.count())
}

func TestVerifyUnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Verify(context.Background(), uuid.New(), "483920")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestVerifyExpiredMarksExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	// exactly at expiresAt the code is still valid
	f.advance(15*time.Minute + time.Second)
	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	assert.ErrorIs(t, err, ErrOTPExpired)
	assert.ErrorIs(t, err, apperr.ErrAuthentication)

	stored, err := f.mgr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
	assert.Nil(t, stored.VerifiedAt)

	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	assert.ErrorIs(t, err, ErrOTPExpired)
	assert.Equal(t, 1, f.events.countOf(EventAccessExpired))
}

func TestVerifyAtExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	f.advance(15 * time.Minute)
	approved, err := f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestCheckAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	assert.False(t, f.mgr.CheckAccess(ctx, f.provider.ID, f.patient.ID, req.ID), "pending request must not grant access")

	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)

	assert.True(t, f.mgr.CheckAccess(ctx, f.provider.ID, f.patient.ID, req.ID))
	assert.False(t, f.mgr.CheckAccess(ctx, uuid.New(), f.patient.ID, req.ID))
	assert.False(t, f.mgr.CheckAccess(ctx, f.provider.ID, uuid.New(), req.ID))
	assert.False(t, f.mgr.CheckAccess(ctx, f.patient.ID, f.provider.ID, req.ID))
	assert.False(t, f.mgr.CheckAccess(ctx, f.provider.ID, f.patient.ID, uuid.New()))
}

func TestNotifierFailureKeepsRequest(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	stored, err := f.mgr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestConcurrentVerifyAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.mgr.Verify(ctx, req.ID, "483920")
			if err == nil && got.ID != req.ID {
				err = errors.New("unexpected id")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.events.countOf(EventAccessApproved))
}

type denyLimiter struct{ err error }

func (l denyLimiter) Allow(context.Context, string) error { return l.err }

func TestIssueRateLimited(t *testing.T) {
	f := newFixture(t, WithRateLimiter(denyLimiter{err: &redisclient.LimitError{RetryAfter: time.Second, Reason: "request issued too recently"}}))

	_, err := f.mgr.Issue(context.Background(), f.provider.ID, f.patient.ID)
	assert.ErrorIs(t, err, redisclient.ErrRateLimited)
	assert.Equal(t, 0, f.repo.count())
}

func TestIssueLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, WithRateLimiter(denyLimiter{err: errors.New("connection refused")}))

	_, err := f.mgr.Issue(context.Background(), f.provider.ID, f.patient.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.repo.count())
}

func TestVerifyAttemptsCappedPerRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, WithAttemptLimiter(redisclient.NewRateLimiter(rdb, "otp-verify", 0, 15*time.Minute, 3)))
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)
	other, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	for _, guess := range []string{"000000", "111111", "222222"} {
		_, err := f.mgr.Verify(ctx, req.ID, guess)
		require.ErrorIs(t, err, ErrOTPMismatch)
	}

	// the right code no longer gets compared
	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	require.ErrorIs(t, err, redisclient.ErrRateLimited)
	var le *redisclient.LimitError
	require.ErrorAs(t, err, &le)
	assert.Positive(t, le.RetryAfter)

	stored, err := f.mgr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 3, f.events.countOf(EventAccessOTPRejected))

	// the cap is per request
	approved, err := f.mgr.Verify(ctx, other.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestVerifyAttemptLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, WithAttemptLimiter(denyLimiter{err: errors.New("connection refused")}))
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)

	approved, err := f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestVerifyApprovedRequestSkipsAttemptLimiter(t *testing.T) {
	limited := &redisclient.LimitError{RetryAfter: time.Minute, Reason: "too many requests"}
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)
	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)

	f.mgr.attempts = denyLimiter{err: limited}
	again, err := f.mgr.Verify(ctx, req.ID, "483920")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, again.Status)
}

// expiringRepo evaluates the approve condition against the fixture clock after
// moving it past expiry, the way the database sees a later now() than the
// service did.
type expiringRepo struct {
	*memRepo
	f *fixture
}

func (r expiringRepo) Approve(ctx context.Context, id uuid.UUID, _ time.Time) (*AccessRequest, error) {
	r.f.advance(time.Hour)
	return r.memRepo.Approve(ctx, id, *r.f.clock)
}

func TestVerifyExpiringDuringApproveReportsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.mgr.Issue(ctx, f.provider.ID, f.patient.ID)
	require.NoError(t, err)
	f.mgr.repo = expiringRepo{memRepo: f.repo, f: f}

	_, err = f.mgr.Verify(ctx, req.ID, "483920")
	require.ErrorIs(t, err, ErrOTPExpired)

	stored, err := f.mgr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
	assert.Nil(t, stored.VerifiedAt)
	assert.Equal(t, 1, f.events.countOf(EventAccessExpired))
	assert.Zero(t, f.events.countOf(EventAccessApproved))
}
