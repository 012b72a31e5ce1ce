// Package payment creates gateway orders for appointments and verifies the
// signed completion callback before the appointment may be approved.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/apperr"
	"github.com/hackgods/medivault/internal/appointment"
	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/db"
	"github.com/hackgods/medivault/internal/metrics"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

const (
	EventPaymentInitiated = "PAYMENT_INITIATED"
	EventPaymentCompleted = "PAYMENT_COMPLETED"
	EventPaymentFailed    = "PAYMENT_FAILED"

	signatureFailureReason = "Signature verification failed"
)

var (
	ErrPaymentNotRequired = apperr.InvalidRequest("payment is not required for this appointment")
	ErrPaymentCompleted   = apperr.InvalidRequest("payment is already completed")
	ErrNoGatewayOrder     = apperr.NotFound("no gateway order exists for this appointment")
	ErrSignatureMismatch  = apperr.Authentication("payment signature verification failed")
)

// Appointments is the slice of the appointment lifecycle the verifier drives.
type Appointments interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Approve(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Option func(*Verifier)

func WithAudit(r *audit.Recorder) Option {
	return func(v *Verifier) { v.audit = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

type Verifier struct {
	repo     Repository
	appts    Appointments
	gateway  Gateway
	locker   redisclient.Locker
	tx       db.TxRunner
	secret   string
	currency string
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	now func() time.Time
}

func NewVerifier(repo Repository, appts Appointments, gateway Gateway, locker redisclient.Locker, tx db.TxRunner, cfg config.GatewayConfig, logger *zap.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		repo:     repo,
		appts:    appts,
		gateway:  gateway,
		locker:   locker,
		tx:       tx,
		secret:   cfg.KeySecret,
		currency: cfg.Currency,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// InitiatePaymentForPatient is InitiatePayment behind an ownership check.
func (v *Verifier) InitiatePaymentForPatient(ctx context.Context, appointmentID, patientID uuid.UUID) (*Intent, error) {
	appt, err := v.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, appointment.ErrNotPatientOwned
	}
	return v.InitiatePayment(ctx, appointmentID)
}

// InitiatePayment creates a gateway order for the requested amount, or hands
// back the outstanding one when the amount has not changed.
func (v *Verifier) InitiatePayment(ctx context.Context, appointmentID uuid.UUID) (*Intent, error) {
	var intent *Intent
	err := v.withAppointmentLock(ctx, appointmentID, func(lockCtx context.Context) error {
		var err error
		intent, err = v.initiate(lockCtx, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (v *Verifier) initiate(ctx context.Context, appointmentID uuid.UUID) (*Intent, error) {
	appt, err := v.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.PaymentRequired || !appt.PaymentAmount.Valid {
		return nil, ErrPaymentNotRequired
	}
	if appt.Status != appointment.StatusPending {
		return nil, appointment.ErrAppointmentSettled
	}
	amount := appt.PaymentAmount.Decimal
	if MinorUnits(amount) <= 0 {
		return nil, appointment.ErrInvalidAmount
	}

	existing, err := v.repo.GetByAppointment(ctx, appointmentID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if existing != nil {
		if existing.Status == appointment.PaymentCompleted {
			return nil, ErrPaymentCompleted
		}
		if existing.GatewayOrderID != nil && existing.Amount.Equal(amount) && existing.Currency == v.currency {
			return v.reuse(ctx, existing)
		}
	}

	receipt := ReceiptID(appointmentID)
	order, err := v.gateway.CreateOrder(ctx, OrderRequest{
		AmountMinor:    MinorUnits(amount),
		Currency:       v.currency,
		Receipt:        receipt,
		Notes:          map[string]string{"appointment_id": appointmentID.String()},
		IdempotencyKey: receipt + ":" + amount.StringFixed(2),
	})
	if err != nil {
		v.metrics.PaymentOrder(metrics.OutcomeFailed)
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	row := Payment{
		ID:             uuid.New(),
		AppointmentID:  appointmentID,
		Amount:         amount,
		Currency:       v.currency,
		Status:         appointment.PaymentPending,
		GatewayOrderID: &order.ID,
		RequestedAt:    v.now(),
	}
	if existing != nil {
		row.ID = existing.ID
	}

	saved, err := v.repo.Upsert(ctx, row)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, ErrPaymentCompleted
	}
	if err != nil {
		// the order exists at the gateway; the same receipt and idempotency
		// key are sent on retry
		v.logger.Error("persist gateway order",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("save payment: %w", err)
	}

	v.metrics.PaymentOrder(metrics.OutcomeSuccess)
	v.audit.Record(ctx, audit.AggregatePayment, saved.ID, EventPaymentInitiated, map[string]any{
		"appointment_id": appointmentID.String(),
		"order_id":       order.ID,
		"amount":         amount.StringFixed(2),
		"currency":       v.currency,
	})

	return &Intent{OrderID: order.ID, Amount: amount, Currency: v.currency}, nil
}

// reuse hands back the outstanding order. A FAILED row goes back to PENDING
// with a fresh requested_at so the patient can retry checkout on the same order.
func (v *Verifier) reuse(ctx context.Context, existing *Payment) (*Intent, error) {
	if existing.Status != appointment.PaymentPending {
		reset := *existing
		reset.RequestedAt = v.now()
		saved, err := v.repo.Upsert(ctx, reset)
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, ErrPaymentCompleted
		}
		if err != nil {
			return nil, fmt.Errorf("reset payment: %w", err)
		}
		v.audit.Record(ctx, audit.AggregatePayment, saved.ID, EventPaymentInitiated, map[string]any{
			"appointment_id": saved.AppointmentID.String(),
			"order_id":       *existing.GatewayOrderID,
			"amount":         saved.Amount.StringFixed(2),
			"currency":       saved.Currency,
			"reused":         true,
		})
	}

	v.metrics.PaymentOrder(metrics.OutcomeReplayed)
	return &Intent{OrderID: *existing.GatewayOrderID, Amount: existing.Amount, Currency: existing.Currency, Reused: true}, nil
}

// VerifyPayment checks the gateway signature for paymentID. A mismatch is
// committed as FAILED and reported as an authentication failure. A match
// completes the payment and approves the appointment in one transaction.
func (v *Verifier) VerifyPayment(ctx context.Context, appointmentID uuid.UUID, paymentID, signature string) (bool, error) {
	var res verifyResult

	err := v.withAppointmentLock(ctx, appointmentID, func(lockCtx context.Context) error {
		return v.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			var err error
			res, err = v.verify(txCtx, appointmentID, paymentID, signature)
			return err
		})
	})
	if err != nil {
		v.metrics.PaymentVerification(metrics.OutcomeFailed)
		return false, err
	}
	if res.outcome != nil {
		return false, res.outcome
	}
	return res.approved, nil
}

// verifyResult.outcome is reported to the caller after the transaction
// commits. An error returned next to it rolls the transaction back instead.
type verifyResult struct {
	approved bool
	outcome  error
}

func (v *Verifier) verify(ctx context.Context, appointmentID uuid.UUID, paymentID, signature string) (verifyResult, error) {
	p, err := v.repo.GetByAppointmentForUpdate(ctx, appointmentID)
	if err != nil {
		return verifyResult{}, err
	}
	if p.GatewayOrderID == nil || *p.GatewayOrderID == "" {
		return verifyResult{}, ErrNoGatewayOrder
	}

	valid := VerifySignature(v.secret, *p.GatewayOrderID, paymentID, signature)

	if p.Status == appointment.PaymentCompleted {
		return v.replay(ctx, p, paymentID, valid)
	}

	if !valid {
		if _, err := v.repo.MarkFailed(ctx, p.ID, paymentID, signature, signatureFailureReason); err != nil {
			return verifyResult{}, fmt.Errorf("record failed payment: %w", err)
		}
		v.metrics.PaymentVerification(metrics.OutcomeRejected)
		v.audit.Record(ctx, audit.AggregatePayment, p.ID, EventPaymentFailed, map[string]any{
			"appointment_id": appointmentID.String(),
			"payment_id":     paymentID,
			"reason":         signatureFailureReason,
		})
		v.logger.Warn("payment signature mismatch",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("payment_id", paymentID))
		return verifyResult{outcome: ErrSignatureMismatch}, nil
	}

	if _, err := v.repo.MarkCompleted(ctx, p.ID, paymentID, signature, v.now()); err != nil {
		return verifyResult{}, fmt.Errorf("complete payment: %w", err)
	}
	v.audit.Record(ctx, audit.AggregatePayment, p.ID, EventPaymentCompleted, map[string]any{
		"appointment_id": appointmentID.String(),
		"order_id":       *p.GatewayOrderID,
		"payment_id":     paymentID,
	})

	if _, err := v.appts.Approve(ctx, appointmentID); err != nil {
		if errors.Is(err, apperr.ErrInvalidTransition) {
			// money was taken; keep the COMPLETED payment and leave the appointment as is
			v.logger.Warn("payment completed for appointment that is no longer pending",
				zap.String("appointment_id", appointmentID.String()))
			v.metrics.PaymentVerification(metrics.OutcomeSuccess)
			return verifyResult{outcome: err}, nil
		}
		return verifyResult{}, err
	}

	v.metrics.PaymentVerification(metrics.OutcomeSuccess)
	return verifyResult{approved: true}, nil
}

// replay answers a callback for a payment that is already COMPLETED without
// touching either row.
func (v *Verifier) replay(ctx context.Context, p *Payment, paymentID string, valid bool) (verifyResult, error) {
	if !valid {
		v.metrics.PaymentVerification(metrics.OutcomeRejected)
		return verifyResult{outcome: ErrSignatureMismatch}, nil
	}
	if p.GatewayPaymentID == nil || *p.GatewayPaymentID != paymentID {
		return verifyResult{outcome: apperr.InvalidTransition("appointment %s was already paid by another payment", p.AppointmentID)}, nil
	}

	appt, err := v.appts.Get(ctx, p.AppointmentID)
	if err != nil {
		return verifyResult{}, err
	}
	if appt.Status != appointment.StatusApproved {
		return verifyResult{outcome: apperr.InvalidTransition("appointment %s is %s", appt.ID, appt.Status)}, nil
	}

	v.metrics.PaymentVerification(metrics.OutcomeReplayed)
	return verifyResult{approved: true}, nil
}

func (v *Verifier) withAppointmentLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error {
	err := v.locker.WithLock(ctx, redisclient.AppointmentKey(appointmentID), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return appointment.ErrAppointmentBusy
	}
	return err
}
