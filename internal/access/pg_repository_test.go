package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medivault/internal/db/dbtest"
)

func newPendingRow(t *testing.T, repo *PgRepository, parties dbtest.Parties, now time.Time) *AccessRequest {
	t.Helper()
	created, err := repo.Create(context.Background(), AccessRequest{
		ID:         uuid.New(),
		ProviderID: parties.ProviderID,
		PatientID:  parties.PatientID,
		OTP:        "483920",
		Status:     StatusPending,
		CreatedAt:  now,
		OTPSentAt:  now,
		ExpiresAt:  now.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	return created
}

func TestPgApproveOnlyOnceBeforeExpiry(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewPgRepository(pool)
	parties := dbtest.Seed(t, pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	req := newPendingRow(t, repo, parties, now)

	approved, err := repo.Approve(ctx, req.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.VerifiedAt)
	assert.WithinDuration(t, now.Add(time.Minute), *approved.VerifiedAt, time.Millisecond)

	_, err = repo.Approve(ctx, req.ID, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)

	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Minute), *stored.VerifiedAt, time.Millisecond)
}

func TestPgApproveRefusesExpired(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewPgRepository(pool)
	parties := dbtest.Seed(t, pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	req := newPendingRow(t, repo, parties, now)

	// expires_at itself is still inside the window
	_, err := repo.Approve(ctx, req.ID, req.ExpiresAt.Add(time.Microsecond))
	require.ErrorIs(t, err, ErrAccessRequestNotFound)

	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.VerifiedAt)

	approved, err := repo.Approve(ctx, req.ID, req.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestPgUpdateStatusCompareAndSet(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewPgRepository(pool)
	parties := dbtest.Seed(t, pool)
	ctx := context.Background()

	req := newPendingRow(t, repo, parties, time.Now().UTC())

	expired, err := repo.UpdateStatus(ctx, req.ID, StatusPending, StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	_, err = repo.UpdateStatus(ctx, req.ID, StatusPending, StatusExpired)
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)

	_, err = repo.Approve(ctx, req.ID, time.Now().UTC())
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)
}

func TestPgApprovedRequiresVerifiedAt(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewPgRepository(pool)
	parties := dbtest.Seed(t, pool)

	req := newPendingRow(t, repo, parties, time.Now().UTC())

	_, err := repo.UpdateStatus(context.Background(), req.ID, StatusPending, StatusApproved)
	dbtest.RequireCode(t, err, dbtest.CheckViolation)
}

func TestPgGetByIDUnknown(t *testing.T) {
	repo := NewPgRepository(dbtest.Pool(t))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)
}
