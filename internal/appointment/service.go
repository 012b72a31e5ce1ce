package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/directory"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

const (
	EventAppointmentCreated          = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged    = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentPaymentRequested = "APPOINTMENT_PAYMENT_REQUESTED"
	EventAppointmentApproved         = "APPOINTMENT_APPROVED"
)

var (
	ErrDirectApproval     = apperr.InvalidTransition("appointments are approved only through payment verification")
	ErrNotProviderOwned   = apperr.InvalidRequest("appointment does not belong to this provider")
	ErrNotPatientOwned    = apperr.InvalidRequest("appointment does not belong to this patient")
	ErrInvalidAmount      = apperr.InvalidRequest("payment amount must be positive, below 10000000000 and have at most two decimal places")
	ErrAppointmentBusy    = apperr.InvalidTransition("appointment is being updated, please retry")
	ErrProviderNotAtSite  = apperr.InvalidRequest("provider does not belong to the selected facility")
	ErrMissingSchedule    = apperr.InvalidRequest("scheduled_at is required")
	ErrAppointmentSettled = apperr.InvalidTransition("appointment is no longer pending")
)

type Service struct {
	repo   Repository
	dir    directory.Directory
	locker redisclient.Locker
	audit  *audit.Recorder
	logger *zap.Logger
}

func NewService(repo Repository, dir directory.Directory, locker redisclient.Locker, recorder *audit.Recorder, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		dir:    dir,
		locker: locker,
		audit:  recorder,
		logger: logger,
	}
}

// Create books a PENDING appointment. The provider must work at the chosen facility.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if in.ScheduledAt.IsZero() {
		return nil, ErrMissingSchedule
	}
	if _, err := s.dir.GetPatient(ctx, in.PatientID); err != nil {
		return nil, err
	}
	provider, err := s.dir.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.GetFacility(ctx, in.FacilityID); err != nil {
		return nil, err
	}
	if provider.FacilityID != in.FacilityID {
		return nil, ErrProviderNotAtSite
	}

	created, err := s.repo.Create(ctx, Appointment{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		ProviderID:  in.ProviderID,
		FacilityID:  in.FacilityID,
		ScheduledAt: in.ScheduledAt,
		Notes:       in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.audit.Record(ctx, audit.AggregateAppointment, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id":   in.PatientID.String(),
		"provider_id":  in.ProviderID.String(),
		"facility_id":  in.FacilityID.String(),
		"scheduled_at": in.ScheduledAt,
	})

	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// SetStatus is the provider's manual transition. APPROVED is never accepted
// here whatever the current state.
func (s *Service) SetStatus(ctx context.Context, providerID, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if to == StatusApproved {
		return nil, ErrDirectApproval
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.ProviderID != providerID {
		return nil, ErrNotProviderOwned
	}
	if to == StatusPending || appt.Status != StatusPending {
		return nil, apperr.InvalidTransition("cannot move appointment from %s to %s", appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusPending, to)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrAppointmentSettled
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.audit.Record(ctx, audit.AggregateAppointment, id, EventAppointmentStatusChanged, map[string]any{
		"from":        string(StatusPending),
		"to":          string(to),
		"provider_id": providerID.String(),
	})

	return updated, nil
}

// RequestPayment marks the appointment as requiring payment of amount. It
// holds the per-appointment lock so it cannot interleave with payment
// initiation or verification.
func (s *Service) RequestPayment(ctx context.Context, providerID, id uuid.UUID, amount decimal.Decimal) (*Appointment, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	var updated *Appointment
	err := s.locker.WithLock(ctx, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		appt, err := s.repo.GetByID(lockCtx, id)
		if err != nil {
			return err
		}
		if appt.ProviderID != providerID {
			return ErrNotProviderOwned
		}
		if appt.Status != StatusPending {
			return ErrAppointmentSettled
		}
		if appt.PaymentStatus == PaymentCompleted {
			return apperr.InvalidTransition("payment for appointment %s is already completed", id)
		}

		updated, err = s.repo.RequestPayment(lockCtx, id, amount)
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrAppointmentSettled
		}
		if err != nil {
			return fmt.Errorf("request payment: %w", err)
		}

		s.audit.Record(lockCtx, audit.AggregateAppointment, id, EventAppointmentPaymentRequested, map[string]any{
			"amount":      amount.StringFixed(2),
			"provider_id": providerID.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAppointmentBusy
		}
		return nil, err
	}

	return updated, nil
}

// Approve is the payment path into APPROVED. It joins the transaction carried
// by ctx so the payment and the appointment commit together.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	approved, err := s.repo.Approve(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		current, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == StatusPending && !current.PaymentRequired {
			return nil, apperr.InvalidTransition("appointment %s does not require payment", id)
		}
		return nil, ErrAppointmentSettled
	}
	if err != nil {
		return nil, fmt.Errorf("approve appointment: %w", err)
	}

	s.audit.Record(ctx, audit.AggregateAppointment, id, EventAppointmentApproved, map[string]any{
		"approved_at": time.Now(),
	})
	s.logger.Info("appointment approved", zap.String("appointment_id", id.String()))

	return approved, nil
}
