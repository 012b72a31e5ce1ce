package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/apperr"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusApproved  AppointmentStatus = "APPROVED"
	StatusDenied    AppointmentStatus = "DENIED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

type PaymentStatus string

const (
	PaymentNotRequested PaymentStatus = "NOT_REQUESTED"
	PaymentPending      PaymentStatus = "PENDING"
	PaymentCompleted    PaymentStatus = "COMPLETED"
	PaymentFailed       PaymentStatus = "FAILED"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", apperr.InvalidRequest("unknown appointment status %q", s)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	FacilityID      uuid.UUID
	ScheduledAt     time.Time
	Notes           *string
	Status          AppointmentStatus
	PaymentRequired bool
	PaymentAmount   decimal.NullDecimal
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Approvable reports whether the APPROVED invariant would hold: either no
// payment is required or it has been completed.
func (a *Appointment) Approvable() bool {
	return !a.PaymentRequired || a.PaymentStatus == PaymentCompleted
}

// MaxPaymentAmount is the smallest amount the NUMERIC(12, 2) payment columns
// cannot hold.
var MaxPaymentAmount = decimal.New(1, 10)

// ValidAmount reports whether amount is positive, has no more than two
// decimal places and fits the payment columns.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.Equal(amount.Round(2)) &&
		amount.LessThan(MaxPaymentAmount)
}

type CreateInput struct {
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	FacilityID  uuid.UUID
	ScheduledAt time.Time
	Notes       *string
}
