package consultation

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hackgods/medivault/internal/directory"
)

const notAvailable = "N/A"

type Report struct {
	Title          string        `json:"title"`
	ConsultationID string        `json:"consultation_id"`
	GeneratedAt    time.Time     `json:"generated_at"`
	RecordedAt     time.Time     `json:"recorded_at"`
	Provider       ProviderBlock `json:"provider"`
	Patient        PatientBlock  `json:"patient"`
	Vitals         VitalsBlock   `json:"vitals"`
	Clinical       ClinicalBlock `json:"clinical"`
}

type ProviderBlock struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Facility       string `json:"facility"`
}

type PatientBlock struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

type VitalsBlock struct {
	BloodPressure string `json:"blood_pressure"`
	Sugar         string `json:"sugar"`
	Temperature   string `json:"temperature"`
}

type ClinicalBlock struct {
	Diagnosis string     `json:"diagnosis"`
	Medicines []Medicine `json:"medicines"`
}

func buildReport(c *Consultation, provider *directory.Provider, patient *directory.Patient, facility *directory.Facility, generatedAt time.Time) Report {
	title := cases.Title(language.English)

	age := notAvailable
	if patient.Age != nil {
		age = strconv.Itoa(*patient.Age)
	}

	medicines := c.Medicines
	if medicines == nil {
		medicines = []Medicine{}
	}

	return Report{
		Title:          "MEDICAL CONSULTATION REPORT",
		ConsultationID: c.ID.String(),
		GeneratedAt:    generatedAt,
		RecordedAt:     c.RecordedAt,
		Provider: ProviderBlock{
			Name:           title.String(provider.Name),
			Specialization: orNA(ptr(provider.Specialization)),
			Facility:       facility.Name,
		},
		Patient: PatientBlock{
			Name:   title.String(patient.Name),
			Age:    age,
			Gender: orNA(ptr(patient.Gender)),
		},
		Vitals: VitalsBlock{
			BloodPressure: orNA(c.Vitals.BloodPressure),
			Sugar:         orNA(c.Vitals.Sugar),
			Temperature:   orNA(c.Vitals.Temperature),
		},
		Clinical: ClinicalBlock{
			Diagnosis: orNA(c.Diagnosis),
			Medicines: medicines,
		},
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func ptr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
