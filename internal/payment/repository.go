package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medivault/internal/apperr"
)

var (
	ErrPaymentNotFound = apperr.NotFound("payment not found")
)

type Repository interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)

	// GetByAppointmentForUpdate locks the row for the rest of the transaction in ctx.
	GetByAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)

	// Upsert keeps one row per appointment. A COMPLETED row is never
	// overwritten; ErrPaymentNotFound is returned instead.
	Upsert(ctx context.Context, p Payment) (*Payment, error)

	MarkFailed(ctx context.Context, id uuid.UUID, paymentID, signature, reason string) (*Payment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, paymentID, signature string, completedAt time.Time) (*Payment, error)
}
