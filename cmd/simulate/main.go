package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telecare-scheduling/internal/config"
	"github.com/hackgods/telecare-scheduling/internal/db"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/logging"
)

type booked struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
}

// DataPool holds the users the workers act as and the appointments they
// created along the way.
type DataPool struct {
	Patients  []uuid.UUID
	Providers []uuid.UUID
	tokens    map[uuid.UUID]string

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking  OperationMetrics
	Decision OperationMetrics
	Read     OperationMetrics
}

type Simulator struct {
	config  config.Simulation
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init("simulate", baseCfg.Env)

	if baseCfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}
	cfg, err := config.LoadSimulation()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("decision", cfg.DecisionRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	tokens := identity.NewTokens(baseCfg.JWTSecret, baseCfg.JWTIssuer)
	dataPool, err := loadDataPool(ctx, identity.NewPgDirectory(pgPool), tokens, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("providers", len(dataPool.Providers)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
	if err := sim.Run(); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap audit failed")
	}
	if overlaps > 0 {
		logger.Error().Int("pairs", overlaps).Msg("overlapping appointments found")
		os.Exit(1)
	}
	logger.Info().Msg("no overlapping appointments")
}

func loadDataPool(ctx context.Context, users *identity.PgDirectory, tokens *identity.Tokens, cfg config.Simulation) (*DataPool, error) {
	patients, err := users.IDsByRole(ctx, identity.RolePatient, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	providers, err := users.IDsByRole(ctx, identity.RoleProvider, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(patients) == 0 || len(providers) == 0 {
		return nil, fmt.Errorf("no users loaded; run cmd/seed first")
	}

	dp := &DataPool{Patients: patients, Providers: providers, tokens: make(map[uuid.UUID]string)}
	mint := func(ids []uuid.UUID, role identity.Role) error {
		for _, id := range ids {
			tok, err := tokens.Issue(identity.Caller{ID: id, Role: role}, cfg.Duration+time.Hour)
			if err != nil {
				return err
			}
			dp.tokens[id] = tok
		}
		return nil
	}
	if err := mint(patients, identity.RolePatient); err != nil {
		return nil, err
	}
	if err := mint(providers, identity.RoleProvider); err != nil {
		return nil, err
	}
	return dp, nil
}

func (s *Simulator) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Int("workers", s.config.Workers).Msg("starting simulation")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(ctx, workerID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info().Msg("simulation complete")
	return nil
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.DecisionRatio:
			s.doDecision(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format(time.DateOnly)

	body, _ := json.Marshal(map[string]string{
		"provider_id": providerID.String(),
		"date":        date,
		"reason":      "simulated visit",
	})

	start := time.Now()
	status, resp, err := s.call(ctx, patientID, http.MethodPost, "/appointments", body)
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(resp, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(booked{ID: appt.ID, ProviderID: providerID, PatientID: patientID})
		}
	}
}

// doDecision approves or rejects a random appointment as its provider.
// Already-decided appointments answer 409 and count as conflicts.
func (s *Simulator) doDecision(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	action := "approve"
	var body []byte
	if rng.Intn(4) == 0 {
		action = "reject"
		body = []byte(`{"reason":"simulated rejection"}`)
	}

	start := time.Now()
	status, _, err := s.call(ctx, b.ProviderID, http.MethodPut, fmt.Sprintf("/appointments/%s/%s", b.ID, action), body)
	s.metrics.Decision.Record(time.Since(start), status, err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	var status int
	var err error
	start := time.Now()

	switch rng.Intn(3) {
	case 0:
		b, ok := s.pool.RandomAppointment(rng)
		if !ok {
			return
		}
		status, _, err = s.call(ctx, b.PatientID, http.MethodGet, "/appointments/"+b.ID.String(), nil)
	case 1:
		patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		status, _, err = s.call(ctx, patientID, http.MethodGet, "/appointments?limit=20", nil)
	default:
		providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
		date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format(time.DateOnly)
		status, _, err = s.call(ctx, providerID, http.MethodGet,
			fmt.Sprintf("/providers/%s/slots/next?date=%s", providerID, date), nil)
	}

	s.metrics.Read.Record(time.Since(start), status, err)
}

func (s *Simulator) call(ctx context.Context, as uuid.UUID, method, path string, body []byte) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, r)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.pool.tokens[as])
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// countOverlaps audits the store for pairs of live appointments sharing time
// on the same provider.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		 AND tstzrange(a.slot_start, a.slot_end) && tstzrange(b.slot_start, b.slot_end)
		WHERE a.status IN ('pending', 'approved')
		  AND b.status IN ('pending', 'approved')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Approve/Reject", &s.metrics.Decision)
	printOperationReport("Reads", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
