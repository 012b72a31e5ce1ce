// Package access issues and verifies OTP-bound grants that let a provider
// read one patient's consultation history.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/directory"
	"github.com/hackgods/medivault/internal/metrics"
	"github.com/hackgods/medivault/internal/notify"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

const (
	EventAccessRequested   = "ACCESS_REQUESTED"
	EventAccessApproved    = "ACCESS_APPROVED"
	EventAccessOTPRejected = "ACCESS_OTP_REJECTED"
	EventAccessExpired     = "ACCESS_EXPIRED"
)

// Limiter throttles calls per subject. *redisclient.RateLimiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, subject string) error
}

type Option func(*Manager)

func WithRateLimiter(l Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// WithAttemptLimiter caps code comparisons per request id.
func WithAttemptLimiter(l Limiter) Option {
	return func(m *Manager) { m.attempts = l }
}

func WithAudit(r *audit.Recorder) Option {
	return func(m *Manager) { m.audit = r }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

type Manager struct {
	repo     Repository
	dir      directory.Directory
	notifier notify.Notifier
	limiter  Limiter
	attempts Limiter
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      config.OTPConfig

	now     func() time.Time
	newCode func(digits int) (string, error)
}

func NewManager(repo Repository, dir directory.Directory, notifier notify.Notifier, cfg config.OTPConfig, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		dir:      dir,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newCode:  randomCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a PENDING request for the pair and sends the OTP to the
// patient. Delivery failures are logged and do not undo the request.
func (m *Manager) Issue(ctx context.Context, providerID, patientID uuid.UUID) (*AccessRequest, error) {
	provider, err := m.dir.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	patient, err := m.dir.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if err := m.allow(ctx, m.limiter, providerID.String()+":"+patientID.String()); err != nil {
		return nil, err
	}

	code, err := m.newCode(m.cfg.Length)
	if err != nil {
		return nil, err
	}

	now := m.now()
	created, err := m.repo.Create(ctx, AccessRequest{
		ID:         uuid.New(),
		ProviderID: providerID,
		PatientID:  patientID,
		OTP:        code,
		Status:     StatusPending,
		CreatedAt:  now,
		OTPSentAt:  now,
		ExpiresAt:  now.Add(m.cfg.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create access request: %w", err)
	}

	m.metrics.AccessIssued()
	m.audit.Record(ctx, audit.AggregateAccessRequest, created.ID, EventAccessRequested, map[string]any{
		"provider_id": providerID.String(),
		"patient_id":  patientID.String(),
		"expires_at":  created.ExpiresAt,
	})

	body := otpMessage(patient.Name, provider.Name, code, m.cfg.TTL)
	if err := m.notifier.Send(ctx, patient.Email, otpSubject, body); err != nil {
		m.logger.Warn("otp delivery failed",
			zap.String("access_request_id", created.ID.String()),
			zap.Error(err))
	}

	return created, nil
}

// Verify approves the request when otp matches before expiry. An already
// approved request is returned as is without looking at otp.
func (m *Manager) Verify(ctx context.Context, requestID uuid.UUID, otp string) (*AccessRequest, error) {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if done, err := m.settled(req); done {
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	now := m.now()
	if req.ExpiredAt(now) {
		return m.expire(ctx, req)
	}

	if err := m.allow(ctx, m.attempts, req.ID.String()); err != nil {
		m.metrics.OTPVerification(metrics.OutcomeRejected)
		return nil, err
	}

	if !codesMatch(req.OTP, otp) {
		m.metrics.OTPVerification(metrics.OutcomeRejected)
		m.audit.Record(ctx, audit.AggregateAccessRequest, req.ID, EventAccessOTPRejected, map[string]any{})
		return nil, ErrOTPMismatch
	}

	approved, err := m.repo.Approve(ctx, req.ID, now)
	if errors.Is(err, ErrAccessRequestNotFound) {
		// another verification moved it first, or it expired since the check
		return m.reload(ctx, req.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("approve access request: %w", err)
	}

	m.metrics.OTPVerification(metrics.OutcomeSuccess)
	m.audit.Record(ctx, audit.AggregateAccessRequest, approved.ID, EventAccessApproved, map[string]any{
		"provider_id": approved.ProviderID.String(),
		"patient_id":  approved.PatientID.String(),
	})
	m.logger.Info("access request approved", zap.String("access_request_id", approved.ID.String()))

	return approved, nil
}

// settled handles requests that already left PENDING.
func (m *Manager) settled(req *AccessRequest) (bool, error) {
	switch req.Status {
	case StatusApproved:
		m.metrics.OTPVerification(metrics.OutcomeReplayed)
		return true, nil
	case StatusExpired:
		m.metrics.OTPVerification(metrics.OutcomeExpired)
		return true, ErrOTPExpired
	case StatusDenied:
		return true, ErrAccessDenied
	}
	return false, nil
}

func (m *Manager) expire(ctx context.Context, req *AccessRequest) (*AccessRequest, error) {
	_, err := m.repo.UpdateStatus(ctx, req.ID, StatusPending, StatusExpired)
	if errors.Is(err, ErrAccessRequestNotFound) {
		return m.reload(ctx, req.ID)
	}
	if err != nil {
		m.logger.Warn("mark access request expired",
			zap.String("access_request_id", req.ID.String()),
			zap.Error(err))
	} else {
		m.audit.Record(ctx, audit.AggregateAccessRequest, req.ID, EventAccessExpired, map[string]any{
			"expires_at": req.ExpiresAt,
		})
	}

	m.metrics.OTPVerification(metrics.OutcomeExpired)
	return nil, ErrOTPExpired
}

func (m *Manager) reload(ctx context.Context, id uuid.UUID) (*AccessRequest, error) {
	current, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if done, err := m.settled(current); done {
		if err != nil {
			return nil, err
		}
		return current, nil
	}
	if current.ExpiredAt(m.now()) {
		return m.expire(ctx, current)
	}
	return nil, fmt.Errorf("access request %s still pending after lost update", id)
}

// allow consults l and fails open when the limiter itself is unavailable.
func (m *Manager) allow(ctx context.Context, l Limiter, subject string) error {
	if l == nil {
		return nil
	}
	err := l.Allow(ctx, subject)
	if err == nil || errors.Is(err, redisclient.ErrRateLimited) {
		return err
	}
	m.logger.Warn("otp rate limiter unavailable", zap.String("subject", subject), zap.Error(err))
	return nil
}

// CheckAccess is the guard in front of every history read and consultation
// write. Lookup failures deny access.
func (m *Manager) CheckAccess(ctx context.Context, providerID, patientID, requestID uuid.UUID) bool {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		if !errors.Is(err, ErrAccessRequestNotFound) {
			m.logger.Error("check access lookup failed",
				zap.String("access_request_id", requestID.String()),
				zap.Error(err))
		}
		return false
	}
	return req.Grants(providerID, patientID)
}

func (m *Manager) Get(ctx context.Context, requestID uuid.UUID) (*AccessRequest, error) {
	return m.repo.GetByID(ctx, requestID)
}
