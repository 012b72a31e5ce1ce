package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medivault/internal/apperr"
)

func TestMemoryLookups(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	facility := Facility{ID: uuid.New(), Name: "City Hospital", Active: true}
	provider := Provider{ID: uuid.New(), FacilityID: facility.ID, Name: "Asha Rao", Email: "asha@example.com"}
	patient := Patient{ID: uuid.New(), Name: "Ravi Kumar", Email: "ravi@example.com"}
	dir.AddFacility(facility)
	dir.AddProvider(provider)
	dir.AddPatient(patient)

	gotProvider, err := dir.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, facility.ID, gotProvider.FacilityID)

	gotPatient, err := dir.GetPatient(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", gotPatient.Email)

	gotFacility, err := dir.GetFacility(ctx, facility.ID)
	require.NoError(t, err)
	assert.Equal(t, "City Hospital", gotFacility.Name)
}

func TestMemoryNotFoundKinds(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	_, err := dir.GetProvider(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = dir.GetPatient(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = dir.GetFacility(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
