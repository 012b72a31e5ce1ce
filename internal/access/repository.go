package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medivault/internal/apperr"
)

var (
	ErrAccessRequestNotFound = apperr.NotFound("access request not found")
	ErrOTPMismatch           = apperr.Authentication("invalid OTP")
	ErrOTPExpired            = apperr.Authentication("OTP has expired")
	ErrAccessDenied          = apperr.InvalidTransition("access request was denied")
)

// Repository persists access requests.
type Repository interface {
	Create(ctx context.Context, req AccessRequest) (*AccessRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AccessRequest, error)

	// Approve moves a PENDING, unexpired request to APPROVED. It returns
	// ErrAccessRequestNotFound when no row matched those conditions.
	Approve(ctx context.Context, id uuid.UUID, verifiedAt time.Time) (*AccessRequest, error)

	// UpdateStatus is a compare-and-set on the status column.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*AccessRequest, error)
}
