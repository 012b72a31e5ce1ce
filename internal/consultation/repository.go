package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/medivault/internal/apperr"
)

var ErrConsultationNotFound = apperr.NotFound("consultation not found")

type Repository interface {
	Create(ctx context.Context, c Consultation) (*Consultation, error)
	SetDocumentPath(ctx context.Context, id uuid.UUID, path string) error

	// ListByPair returns the pair's consultations, newest first.
	ListByPair(ctx context.Context, patientID, providerID uuid.UUID) ([]Consultation, error)
}
