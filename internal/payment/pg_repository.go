package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/db"
)

const paymentColumns = `id, appointment_id, amount::text, currency, status, gateway_order_id, gateway_payment_id,
	gateway_signature, requested_at, completed_at, failure_reason, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount string

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&amount,
		&p.Currency,
		&p.Status,
		&p.GatewayOrderID,
		&p.GatewayPaymentID,
		&p.GatewaySignature,
		&p.RequestedAt,
		&p.CompletedAt,
		&p.FailureReason,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	return &p, nil
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) GetByAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		FOR UPDATE
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) Upsert(ctx context.Context, p Payment) (*Payment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount, currency, status, gateway_order_id, requested_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, 'PENDING', $5, $6, now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET amount             = EXCLUDED.amount,
		    currency           = EXCLUDED.currency,
		    status             = 'PENDING',
		    gateway_order_id   = EXCLUDED.gateway_order_id,
		    gateway_payment_id = NULL,
		    gateway_signature  = NULL,
		    completed_at       = NULL,
		    failure_reason     = NULL,
		    requested_at       = EXCLUDED.requested_at,
		    updated_at         = now()
		WHERE payments.status <> 'COMPLETED'
		RETURNING `+paymentColumns,
		p.ID, p.AppointmentID, p.Amount.StringFixed(2), p.Currency, p.GatewayOrderID, p.RequestedAt)
	return scanPayment(row)
}

func (r *PgRepository) MarkFailed(ctx context.Context, id uuid.UUID, paymentID, signature, reason string) (*Payment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payments
		SET status = 'FAILED',
		    gateway_payment_id = $2,
		    gateway_signature = $3,
		    failure_reason = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'COMPLETED'
		RETURNING `+paymentColumns,
		id, paymentID, signature, reason)
	return scanPayment(row)
}

func (r *PgRepository) MarkCompleted(ctx context.Context, id uuid.UUID, paymentID, signature string, completedAt time.Time) (*Payment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payments
		SET status = 'COMPLETED',
		    gateway_payment_id = $2,
		    gateway_signature = $3,
		    completed_at = $4,
		    failure_reason = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'COMPLETED'
		RETURNING `+paymentColumns,
		id, paymentID, signature, completedAt)
	return scanPayment(row)
}
