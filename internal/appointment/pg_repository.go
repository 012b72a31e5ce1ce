package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/db"
)

const appointmentColumns = `id, patient_id, provider_id, facility_id, scheduled_at, notes, status,
	payment_required, payment_amount::text, payment_status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string
	var amount *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.FacilityID,
		&a.ScheduledAt,
		&notes,
		&a.Status,
		&a.PaymentRequired,
		&amount,
		&a.PaymentStatus,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount %q: %w", *amount, err)
		}
		a.PaymentAmount = decimal.NewNullDecimal(d)
	}
	return &a, nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, facility_id, scheduled_at, notes, status,
		                          payment_required, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', FALSE, 'NOT_REQUESTED', now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.ProviderID, a.FacilityID, a.ScheduledAt, a.Notes)
	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) RequestPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET payment_required = TRUE,
		    payment_amount = $2::numeric,
		    payment_status = 'PENDING',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
		  AND payment_status <> 'COMPLETED'
		RETURNING `+appointmentColumns,
		id, amount.StringFixed(2))
	return scanAppointment(row)
}

func (r *PgRepository) Approve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = 'APPROVED',
		    payment_status = 'COMPLETED',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
		  AND payment_required = TRUE
		RETURNING `+appointmentColumns,
		id)
	return scanAppointment(row)
}
