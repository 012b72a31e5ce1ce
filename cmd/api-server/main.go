package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/access"
	"github.com/hackgods/medivault/internal/api"
	"github.com/hackgods/medivault/internal/appointment"
	"github.com/hackgods/medivault/internal/audit"
	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/consultation"
	"github.com/hackgods/medivault/internal/db"
	"github.com/hackgods/medivault/internal/directory"
	"github.com/hackgods/medivault/internal/document"
	"github.com/hackgods/medivault/internal/logger"
	"github.com/hackgods/medivault/internal/metrics"
	"github.com/hackgods/medivault/internal/notify"
	"github.com/hackgods/medivault/internal/payment"
	redisclient "github.com/hackgods/medivault/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.Pool)
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		lg.Fatal("schema migration error", zap.Error(err))
	}
	lg.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		lg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("error closing redis", zap.Error(err))
		}
	}()
	lg.Info("connected to Redis")

	docs, err := document.NewFileStore(cfg.Document.Dir, cfg.Document.URLPrefix)
	if err != nil {
		lg.Fatal("document store error", zap.Error(err))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(lg)
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP, lg)
	} else {
		lg.Warn("SMTP_HOST not set, OTP messages are logged instead of sent")
	}

	m := metrics.New()
	recorder := audit.NewRecorder(audit.NewPgStore(pgPool), lg)
	dir := directory.NewPgDirectory(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	limiter := redisclient.NewRateLimiter(rdb, "otp", cfg.OTP.Cooldown, cfg.OTP.Window, cfg.OTP.MaxPerWindow)
	attempts := redisclient.NewRateLimiter(rdb, "otp-verify", 0, cfg.OTP.TTL, cfg.OTP.MaxAttempts)

	accessMgr := access.NewManager(access.NewPgRepository(pgPool), dir, notifier, cfg.OTP, lg,
		access.WithRateLimiter(limiter),
		access.WithAttemptLimiter(attempts),
		access.WithAudit(recorder),
		access.WithMetrics(m))

	appointments := appointment.NewService(appointment.NewPgRepository(pgPool), dir, locker, recorder, lg)

	verifier := payment.NewVerifier(
		payment.NewPgRepository(pgPool),
		appointments,
		payment.NewRazorpayClient(cfg.Gateway, lg),
		locker,
		db.NewTxRunner(pgPool),
		cfg.Gateway,
		lg,
		payment.WithAudit(recorder),
		payment.WithMetrics(m))

	consultations := consultation.NewRecorder(consultation.NewPgRepository(pgPool), dir, docs, recorder, m, lg)

	health := api.NewHealthHandler(pgPool, api.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}), cfg.Env, version)

	router := api.NewRouter(api.RouterConfig{
		Access:        accessMgr,
		Appointments:  appointments,
		Payments:      verifier,
		Consultations: consultations,
		Health:        health,
		Metrics:       m,
		Logger:        lg,
		CORSOrigins:   cfg.CORSOrigins,
		GatewayKeyID:  cfg.Gateway.KeyID,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	lg.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
}
