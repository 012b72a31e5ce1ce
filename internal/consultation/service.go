// Package consultation records provider visits and serves the history that an
// approved access request unlocks.
//
// Recorder does not check access itself. Callers must have a true result from
// access.Manager.CheckAccess for the same provider and patient first.
package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/directory"
	"github.com/hackgods/medivault/internal/document"
	"github.com/hackgods/medivault/internal/metrics"
)

const EventConsultationRecorded = "CONSULTATION_RECORDED"

type Recorder struct {
	repo    Repository
	dir     directory.Directory
	docs    document.Store
	audit   *audit.Recorder
	metrics *metrics.Metrics
	logger  *zap.Logger

	now func() time.Time
}

func NewRecorder(repo Repository, dir directory.Directory, docs document.Store, recorder *audit.Recorder, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		dir:     dir,
		docs:    docs,
		audit:   recorder,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func DocumentName(id uuid.UUID) string {
	return "consultation_" + id.String() + ".json"
}

// Record persists the consultation and then its document. A document failure
// leaves the record in place with no DocumentPath.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*Consultation, error) {
	provider, err := r.dir.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	patient, err := r.dir.GetPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	facility, err := r.dir.GetFacility(ctx, in.FacilityID)
	if err != nil {
		return nil, err
	}

	saved, err := r.repo.Create(ctx, Consultation{
		ID:         uuid.New(),
		PatientID:  in.PatientID,
		ProviderID: in.ProviderID,
		FacilityID: in.FacilityID,
		Vitals:     in.Vitals,
		Diagnosis:  in.Diagnosis,
		Medicines:  in.Medicines,
		RecordedAt: r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	r.audit.Record(ctx, audit.AggregateConsultation, saved.ID, EventConsultationRecorded, map[string]any{
		"provider_id": in.ProviderID.String(),
		"patient_id":  in.PatientID.String(),
		"facility_id": in.FacilityID.String(),
	})

	report := buildReport(saved, provider, patient, facility, r.now())
	path, err := r.docs.Write(ctx, DocumentName(saved.ID), report)
	if err != nil {
		r.degrade(saved.ID, "write document", err)
		return saved, nil
	}
	if err := r.repo.SetDocumentPath(ctx, saved.ID, path); err != nil {
		r.degrade(saved.ID, "save document path", err)
		return saved, nil
	}

	r.metrics.ConsultationDocument(metrics.OutcomeSuccess)
	saved.DocumentPath = &path
	return saved, nil
}

func (r *Recorder) degrade(id uuid.UUID, step string, err error) {
	r.metrics.ConsultationDocument(metrics.OutcomeDegraded)
	r.logger.Warn("consultation document unavailable",
		zap.String("consultation_id", id.String()),
		zap.String("step", step),
		zap.Error(err))
}

// History lists the pair's consultations, newest first.
func (r *Recorder) History(ctx context.Context, providerID, patientID uuid.UUID) ([]Consultation, error) {
	items, err := r.repo.ListByPair(ctx, patientID, providerID)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	return items, nil
}
