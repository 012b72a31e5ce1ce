package access

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusExpired  Status = "EXPIRED"
	StatusDenied   Status = "DENIED"
)

// AccessRequest binds one provider to one patient's history once the patient
// hands the OTP back. VerifiedAt is set iff Status is APPROVED.
type AccessRequest struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	OTP        string
	Status     Status
	CreatedAt  time.Time
	OTPSentAt  time.Time
	VerifiedAt *time.Time
	ExpiresAt  time.Time
}

func (r *AccessRequest) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Grants reports whether the request authorizes providerID to read patientID.
func (r *AccessRequest) Grants(providerID, patientID uuid.UUID) bool {
	return r.Status == StatusApproved &&
		r.ProviderID == providerID &&
		r.PatientID == patientID
}
