package appointment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
)

// Repository contains all DB interactions needed by the service. Every
// mutation is a compare-and-set and returns ErrAppointmentNotFound when the
// expected state no longer holds.
type Repository interface {
	Create(ctx context.Context, a Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// RequestPayment requires status PENDING and a payment that is not yet completed.
	RequestPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Appointment, error)

	// Approve sets APPROVED and payment COMPLETED together on a PENDING
	// appointment that requires payment.
	Approve(ctx context.Context, id uuid.UUID) (*Appointment, error)
}
