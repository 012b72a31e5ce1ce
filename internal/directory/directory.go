// Package directory resolves providers, patients and facilities by id.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/db"
)

var (
	ErrProviderNotFound = apperr.NotFound("provider not found")
	ErrPatientNotFound  = apperr.NotFound("patient not found")
	ErrFacilityNotFound = apperr.NotFound("facility not found")
)

type Provider struct {
	ID             uuid.UUID
	FacilityID     uuid.UUID
	Name           string
	Specialization *string
	LicenseNumber  *string
	Email          string
	Phone          *string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID         uuid.UUID
	Name       string
	Age        *int
	Gender     *string
	BloodGroup *string
	Email      string
	Phone      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Facility struct {
	ID            uuid.UUID
	Name          string
	Address       *string
	ContactNumber *string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error)
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, facility_id, name, specialization, license_number, email, phone, active, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id).Scan(
		&p.ID,
		&p.FacilityID,
		&p.Name,
		&p.Specialization,
		&p.LicenseNumber,
		&p.Email,
		&p.Phone,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, name, age, gender, blood_group, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Gender,
		&p.BloodGroup,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, name, address, contact_number, active, created_at, updated_at
		FROM facilities
		WHERE id = $1
	`, id).Scan(
		&f.ID,
		&f.Name,
		&f.Address,
		&f.ContactNumber,
		&f.Active,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}
	return &f, nil
}
