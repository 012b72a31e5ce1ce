package payment

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/appointment"
)

// Payment is owned by exactly one appointment. Status mirrors the
// appointment's payment status vocabulary.
type Payment struct {
	ID               uuid.UUID
	AppointmentID    uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Status           appointment.PaymentStatus
	GatewayOrderID   *string
	GatewayPaymentID *string
	GatewaySignature *string
	RequestedAt      time.Time
	CompletedAt      *time.Time
	FailureReason    *string
	UpdatedAt        time.Time
}

// Intent is what the browser needs to open the gateway checkout.
type Intent struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Reused   bool
}

// MinorUnits converts an amount to the gateway's smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ReceiptID is stable per appointment and fits the gateway's 40 character limit.
func ReceiptID(appointmentID uuid.UUID) string {
	return "appt_" + hex.EncodeToString(appointmentID[:])
}
