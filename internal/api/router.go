package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/access"
	"github.com/hackgods/medivault/internal/appointment"
	"github.com/hackgods/medivault/internal/consultation"
	"github.com/hackgods/medivault/internal/metrics"
	"github.com/hackgods/medivault/internal/payment"
)

type AccessService interface {
	Issue(ctx context.Context, providerID, patientID uuid.UUID) (*access.AccessRequest, error)
	Verify(ctx context.Context, requestID uuid.UUID, otp string) (*access.AccessRequest, error)
	Get(ctx context.Context, requestID uuid.UUID) (*access.AccessRequest, error)
	CheckAccess(ctx context.Context, providerID, patientID, requestID uuid.UUID) bool
}

type AppointmentService interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, providerID, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error)
	RequestPayment(ctx context.Context, providerID, id uuid.UUID, amount decimal.Decimal) (*appointment.Appointment, error)
}

type PaymentService interface {
	InitiatePaymentForPatient(ctx context.Context, appointmentID, patientID uuid.UUID) (*payment.Intent, error)
	VerifyPayment(ctx context.Context, appointmentID uuid.UUID, paymentID, signature string) (bool, error)
}

type ConsultationService interface {
	Record(ctx context.Context, in consultation.RecordInput) (*consultation.Consultation, error)
	History(ctx context.Context, providerID, patientID uuid.UUID) ([]consultation.Consultation, error)
}

type RouterConfig struct {
	Access        AccessService
	Appointments  AppointmentService
	Payments      PaymentService
	Consultations ConsultationService
	Health        *HealthHandler
	Metrics       *metrics.Metrics
	Logger        *zap.Logger

	CORSOrigins    []string
	GatewayKeyID   string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	errs := errorWriter{logger: cfg.Logger}

	// Access grant endpoints
	r.Post("/access-requests", issueAccessHandler(cfg.Access, errs))
	r.Get("/access-requests/{id}", getAccessHandler(cfg.Access, errs))
	r.Post("/access-requests/{id}/verify", verifyOTPHandler(cfg.Access, errs))

	// Grant-gated consultation endpoints
	r.Get("/patients/{patientID}/consultations", consultationHistoryHandler(cfg.Access, cfg.Consultations, errs))
	r.Post("/consultations", recordConsultationHandler(cfg.Access, cfg.Consultations, errs))

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Appointments, errs))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, errs))
	r.Post("/appointments/{id}/status", setAppointmentStatusHandler(cfg.Appointments, errs))
	r.Post("/appointments/{id}/payment-request", requestPaymentHandler(cfg.Appointments, errs))

	// Payment endpoints
	r.Post("/appointments/{id}/payments", initiatePaymentHandler(cfg.Payments, cfg.GatewayKeyID, errs))
	r.Post("/appointments/{id}/payments/verify", verifyPaymentHandler(cfg.Payments, errs))

	return r
}
