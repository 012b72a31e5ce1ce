package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/db"
	"github.com/hackgods/medivault/internal/logger"
	"github.com/hackgods/medivault/internal/payment"
)

type SimConfig struct {
	APIBaseURL       string
	Duration         time.Duration
	Workers          int
	AccessRatio      float64
	AppointmentRatio float64
	ReadRatio        float64
	PaymentRatio     float64 // share of appointments taken through a signed gateway callback
	PatientLimit     int
	ProviderLimit    int
	PostgresDSN      string
	Pool             config.PoolConfig
	GatewaySecret    string
}

type provider struct {
	ID         uuid.UUID
	FacilityID uuid.UUID
}

type grant struct {
	RequestID  uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	FacilityID uuid.UUID
}

type DataPool struct {
	Patients  []uuid.UUID
	Providers []provider

	mu           sync.RWMutex
	grants       []grant
	appointments []uuid.UUID
}

func (dp *DataPool) AddGrant(g grant) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.grants = append(dp.grants, g)
}

func (dp *DataPool) RandomGrant(rng *rand.Rand) (grant, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.grants) == 0 {
		return grant{}, false
	}
	return dp.grants[rng.Intn(len(dp.grants))], true
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64 // 4xx the flow expects, such as 409 or 429
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && (status == http.StatusConflict || status == http.StatusTooManyRequests):
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	IssueAccess    OperationMetrics
	VerifyOTP      OperationMetrics
	Record         OperationMetrics
	History        OperationMetrics
	CreateAppt     OperationMetrics
	PaymentRequest OperationMetrics
	Initiate       OperationMetrics
	VerifyPayment  OperationMetrics
	ReadAppt       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	pg      *pgxpool.Pool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	cfg := loadConfig()

	lg, err := logger.New("dev", getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := validateConfig(cfg); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("access_ratio", cfg.AccessRatio),
		zap.Float64("appointment_ratio", cfg.AppointmentRatio),
		zap.Float64("read_ratio", cfg.ReadRatio))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.Pool)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		lg.Fatal("load data pool", zap.Error(err))
	}
	lg.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("providers", len(dataPool.Providers)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		pg:     pgPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: lg,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:       strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:         getDuration("SIM_DURATION", 30*time.Second),
		Workers:          getInt("SIM_WORKERS", 10),
		AccessRatio:      getFloat("SIM_ACCESS_RATIO", 0.4),
		AppointmentRatio: getFloat("SIM_APPOINTMENT_RATIO", 0.4),
		ReadRatio:        getFloat("SIM_READ_RATIO", 0.2),
		PaymentRatio:     getFloat("SIM_PAYMENT_RATIO", 0),
		PatientLimit:     getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit:    getInt("SIM_PROVIDER_LIMIT", 100),
		PostgresDSN:      baseCfg.PostgresDSN,
		Pool:             config.PoolConfig{MaxConns: 4},
		GatewaySecret:    baseCfg.Gateway.KeySecret,
	}

	// Normalize ratios
	total := cfg.AccessRatio + cfg.AppointmentRatio + cfg.ReadRatio
	if total > 0 {
		cfg.AccessRatio /= total
		cfg.AppointmentRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT p.id, p.facility_id
		FROM providers p
		JOIN facilities f ON f.id = p.facility_id
		WHERE p.active AND f.active
		LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	for rows.Next() {
		var p provider
		if err := rows.Scan(&p.ID, &p.FacilityID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, p)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.AccessRatio:
				s.accessFlow(ctx, rng)
			case r < s.config.AccessRatio+s.config.AppointmentRatio:
				s.appointmentFlow(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doHistory(ctx, rng)
				} else {
					s.doReadAppointment(ctx, rng)
				}
			}
		}
	}
}

// accessFlow issues a grant, reads the code the patient would receive from
// Postgres and hands it back, then records a consultation under the grant.
func (s *Simulator) accessFlow(ctx context.Context, rng *rand.Rand) {
	prov := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var issued struct {
		ID uuid.UUID `json:"access_request_id"`
	}
	status, err := s.call(ctx, &s.metrics.IssueAccess, http.MethodPost, "/access-requests", map[string]string{
		"provider_id": prov.ID.String(),
		"patient_id":  patientID.String(),
	}, &issued)
	if err != nil || status != http.StatusCreated {
		return
	}

	var otp string
	if err := s.pg.QueryRow(ctx, `SELECT otp FROM access_requests WHERE id = $1`, issued.ID).Scan(&otp); err != nil {
		s.logger.Debug("read otp", zap.Error(err))
		return
	}

	status, err = s.call(ctx, &s.metrics.VerifyOTP, http.MethodPost, "/access-requests/"+issued.ID.String()+"/verify",
		map[string]string{"otp": otp}, nil)
	if err != nil || status != http.StatusOK {
		return
	}

	g := grant{RequestID: issued.ID, ProviderID: prov.ID, PatientID: patientID, FacilityID: prov.FacilityID}
	s.pool.AddGrant(g)

	_, _ = s.call(ctx, &s.metrics.Record, http.MethodPost, "/consultations", map[string]any{
		"access_request_id": g.RequestID.String(),
		"provider_id":       g.ProviderID.String(),
		"patient_id":        g.PatientID.String(),
		"facility_id":       g.FacilityID.String(),
		"vitals":            map[string]string{"blood_pressure": "120/80", "temperature": "98.6F"},
		"diagnosis":         "routine checkup",
		"medicines":         []map[string]string{{"name": "Paracetamol", "dosage": "500mg"}},
	}, nil)
}

func (s *Simulator) appointmentFlow(ctx context.Context, rng *rand.Rand) {
	prov := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, &s.metrics.CreateAppt, http.MethodPost, "/appointments", map[string]any{
		"patient_id":   patientID.String(),
		"provider_id":  prov.ID.String(),
		"facility_id":  prov.FacilityID.String(),
		"scheduled_at": time.Now().Add(time.Duration(rng.Intn(72)+1) * time.Hour).UTC(),
	}, &appt)
	if err != nil || status != http.StatusCreated {
		return
	}
	s.pool.AddAppointment(appt.ID)
	base := "/appointments/" + appt.ID.String()

	status, err = s.call(ctx, &s.metrics.PaymentRequest, http.MethodPost, base+"/payment-request", map[string]any{
		"provider_id": prov.ID.String(),
		"amount":      fmt.Sprintf("%d.00", 100*(rng.Intn(10)+1)),
	}, nil)
	if err != nil || status != http.StatusOK {
		return
	}

	if s.config.GatewaySecret == "" || rng.Float64() >= s.config.PaymentRatio {
		return
	}

	var intent struct {
		OrderID string `json:"order_id"`
	}
	status, err = s.call(ctx, &s.metrics.Initiate, http.MethodPost, base+"/payments",
		map[string]string{"patient_id": patientID.String()}, &intent)
	if err != nil || (status != http.StatusCreated && status != http.StatusOK) {
		return
	}

	paymentID := "pay_sim_" + strconv.FormatInt(rng.Int63(), 36)
	_, _ = s.call(ctx, &s.metrics.VerifyPayment, http.MethodPost, base+"/payments/verify", map[string]string{
		"payment_id": paymentID,
		"signature":  payment.Sign(s.config.GatewaySecret, intent.OrderID, paymentID),
	}, nil)
}

func (s *Simulator) doHistory(ctx context.Context, rng *rand.Rand) {
	g, ok := s.pool.RandomGrant(rng)
	if !ok {
		return
	}
	path := fmt.Sprintf("/patients/%s/consultations?provider_id=%s&access_request_id=%s",
		g.PatientID, g.ProviderID, g.RequestID)
	_, _ = s.call(ctx, &s.metrics.History, http.MethodGet, path, nil, nil)
}

func (s *Simulator) doReadAppointment(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	_, _ = s.call(ctx, &s.metrics.ReadAppt, http.MethodGet, "/appointments/"+id.String(), nil, nil)
}

// call sends one JSON request, records it in om and decodes a 2xx body into out.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, 0, err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	om.Record(latency, resp.StatusCode, nil)

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Issue access", &s.metrics.IssueAccess)
	printOperationReport("Verify OTP", &s.metrics.VerifyOTP)
	printOperationReport("Record consultation", &s.metrics.Record)
	printOperationReport("Consultation history", &s.metrics.History)
	printOperationReport("Create appointment", &s.metrics.CreateAppt)
	printOperationReport("Request payment", &s.metrics.PaymentRequest)
	printOperationReport("Initiate payment", &s.metrics.Initiate)
	printOperationReport("Verify payment", &s.metrics.VerifyPayment)
	printOperationReport("Read appointment", &s.metrics.ReadAppt)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
