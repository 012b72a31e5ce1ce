package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Vitals struct {
	BloodPressure string `json:"blood_pressure"`
	Sugar         string `json:"sugar"`
	Temperature   string `json:"temperature"`
}

type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// Consultation is written once per visit. Only DocumentPath changes afterwards.
type Consultation struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	ProviderID   uuid.UUID
	FacilityID   uuid.UUID
	Vitals       Vitals
	Diagnosis    string
	Medicines    []Medicine
	DocumentPath *string
	RecordedAt   time.Time
}

type RecordInput struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	FacilityID uuid.UUID
	Vitals     Vitals
	Diagnosis  string
	Medicines  []Medicine
}
