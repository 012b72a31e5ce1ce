package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/medivault/internal/access"
	"github.com/hackgods/medivault/internal/appointment"
	"github.com/hackgods/medivault/internal/consultation"
	"github.com/hackgods/medivault/internal/payment"
)

type IssueAccessRequest struct {
	ProviderID string `json:"provider_id"`
	PatientID  string `json:"patient_id"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

// AccessRequestResponse never carries the OTP.
type AccessRequestResponse struct {
	ID         uuid.UUID  `json:"access_request_id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func toAccessResponse(r *access.AccessRequest) AccessRequestResponse {
	return AccessRequestResponse{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		PatientID:  r.PatientID,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		VerifiedAt: r.VerifiedAt,
	}
}

type CreateAppointmentRequest struct {
	PatientID   string    `json:"patient_id"`
	ProviderID  string    `json:"provider_id"`
	FacilityID  string    `json:"facility_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes,omitempty"`
}

type SetStatusRequest struct {
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
}

type PaymentRequestRequest struct {
	ProviderID string          `json:"provider_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	FacilityID      uuid.UUID `json:"facility_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Notes           *string   `json:"notes,omitempty"`
	Status          string    `json:"status"`
	PaymentRequired bool      `json:"payment_required"`
	PaymentAmount   *string   `json:"payment_amount,omitempty"`
	PaymentStatus   string    `json:"payment_status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		FacilityID:      a.FacilityID,
		ScheduledAt:     a.ScheduledAt,
		Notes:           a.Notes,
		Status:          string(a.Status),
		PaymentRequired: a.PaymentRequired,
		PaymentStatus:   string(a.PaymentStatus),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.PaymentAmount.Valid {
		amount := a.PaymentAmount.Decimal.StringFixed(2)
		resp.PaymentAmount = &amount
	}
	return resp
}

type InitiatePaymentRequest struct {
	PatientID string `json:"patient_id"`
}

type PaymentIntentResponse struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	KeyID       string `json:"key_id"`
}

func toIntentResponse(in *payment.Intent, keyID string) PaymentIntentResponse {
	return PaymentIntentResponse{
		OrderID:     in.OrderID,
		Amount:      in.Amount.StringFixed(2),
		AmountMinor: payment.MinorUnits(in.Amount),
		Currency:    in.Currency,
		KeyID:       keyID,
	}
}

type VerifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type VerifyPaymentResponse struct {
	Approved bool `json:"approved"`
}

type RecordConsultationRequest struct {
	AccessRequestID string                  `json:"access_request_id"`
	ProviderID      string                  `json:"provider_id"`
	PatientID       string                  `json:"patient_id"`
	FacilityID      string                  `json:"facility_id"`
	Vitals          consultation.Vitals     `json:"vitals"`
	Diagnosis       string                  `json:"diagnosis"`
	Medicines       []consultation.Medicine `json:"medicines"`
}

type ConsultationResponse struct {
	ID           uuid.UUID               `json:"id"`
	PatientID    uuid.UUID               `json:"patient_id"`
	ProviderID   uuid.UUID               `json:"provider_id"`
	FacilityID   uuid.UUID               `json:"facility_id"`
	Vitals       consultation.Vitals     `json:"vitals"`
	Diagnosis    string                  `json:"diagnosis"`
	Medicines    []consultation.Medicine `json:"medicines"`
	DocumentPath *string                 `json:"document_path"`
	RecordedAt   time.Time               `json:"recorded_at"`
}

func toConsultationResponse(c *consultation.Consultation) ConsultationResponse {
	medicines := c.Medicines
	if medicines == nil {
		medicines = []consultation.Medicine{}
	}
	return ConsultationResponse{
		ID:           c.ID,
		PatientID:    c.PatientID,
		ProviderID:   c.ProviderID,
		FacilityID:   c.FacilityID,
		Vitals:       c.Vitals,
		Diagnosis:    c.Diagnosis,
		Medicines:    medicines,
		DocumentPath: c.DocumentPath,
		RecordedAt:   c.RecordedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
