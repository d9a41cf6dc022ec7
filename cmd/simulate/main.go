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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/clinic-scheduling/internal/config"
	"github.com/carelink/clinic-scheduling/internal/db"
	"github.com/carelink/clinic-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	AvailabilityRatio float64
	ReadRatio         float64
	PatientLimit      int
	DaysAhead         int
	PostgresDSN       string
}

// DataPool holds IDs loaded from Postgres plus appointments created during
// the run, shared across workers.
type DataPool struct {
	Patients  []uuid.UUID
	Doctors   []uuid.UUID
	Locations []uuid.UUID
	Types     []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
	owners       map[uuid.UUID]uuid.UUID // appointment -> patient
}

func (dp *DataPool) AddAppointment(id, patientID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
	dp.owners[id] = patientID
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (appt, patient uuid.UUID, ok bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, uuid.Nil, false
	}
	id := dp.appointments[rng.Intn(len(dp.appointments))]
	return id, dp.owners[id], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	ReadByID     OperationMetrics
	ListHistory  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f availability=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.AvailabilityRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors, %d locations, %d types",
		len(dataPool.Patients), len(dataPool.Doctors), len(dataPool.Locations), len(dataPool.Types))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
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
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.4),
		AvailabilityRatio: getFloat("SIM_AVAILABILITY_RATIO", 0.4),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit:      getInt("SIM_PATIENT_LIMIT", 2000),
		DaysAhead:         getInt("SIM_DAYS_AHEAD", 14),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AvailabilityRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AvailabilityRatio /= total
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
	dataPool := &DataPool{owners: make(map[uuid.UUID]uuid.UUID)}

	load := func(query string, limit int, dst *[]uuid.UUID) error {
		rows, err := pool.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			*dst = append(*dst, id)
		}
		return rows.Err()
	}

	if err := load(`SELECT id FROM patients LIMIT $1`, cfg.PatientLimit, &dataPool.Patients); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if err := load(`SELECT id FROM doctors LIMIT $1`, 100, &dataPool.Doctors); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	if err := load(`SELECT id FROM locations LIMIT $1`, 20, &dataPool.Locations); err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	if err := load(`SELECT id FROM appointment_types LIMIT $1`, 20, &dataPool.Types); err != nil {
		return nil, fmt.Errorf("load appointment types: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seed first")
	}
	if len(dataPool.Doctors) == 0 || len(dataPool.Locations) == 0 || len(dataPool.Types) == 0 {
		return nil, fmt.Errorf("missing doctors/locations/types, run the seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
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
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AvailabilityRatio:
				s.doAvailability(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListHistory(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) randomDay(rng *rand.Rand) string {
	return time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format(schedule.DateFormat)
}

// doAvailability fetches a day's free slots; doBooking does the same and
// then races other workers for one of them.

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	location := s.pool.Locations[rng.Intn(len(s.pool.Locations))]

	url := fmt.Sprintf("%s/doctors/%s/availability?location_id=%s&date=%s",
		s.config.APIBaseURL, doctor, location, s.randomDay(rng))

	start := time.Now()
	status, _ := s.get(ctx, url, uuid.Nil, "")
	s.metrics.Availability.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	location := s.pool.Locations[rng.Intn(len(s.pool.Locations))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	typ := s.pool.Types[rng.Intn(len(s.pool.Types))]
	day := s.randomDay(rng)

	availURL := fmt.Sprintf("%s/doctors/%s/availability?location_id=%s&date=%s",
		s.config.APIBaseURL, doctor, location, day)

	status, body := s.get(ctx, availURL, uuid.Nil, "")
	if status != http.StatusOK {
		return
	}

	var avail struct {
		Slots []string `json:"slots"`
	}
	if err := json.Unmarshal(body, &avail); err != nil || len(avail.Slots) == 0 {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"doctor_id":           doctor.String(),
		"location_id":         location.String(),
		"appointment_type_id": typ.String(),
		"date":                day,
		"start":               avail.Slots[rng.Intn(len(avail.Slots))],
		"reason":              "load test booking",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", patient.String())
	req.Header.Set("X-Actor-Role", "patient")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID, patient)
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.metrics.Booking.Record(latency, false, false)
	}
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, patientID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	url := fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID)

	start := time.Now()
	status, _ := s.get(ctx, url, patientID, "patient")
	s.metrics.ReadByID.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doListHistory(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	url := s.config.APIBaseURL + "/appointments"

	start := time.Now()
	status, _ := s.get(ctx, url, patient, "patient")
	s.metrics.ListHistory.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) get(ctx context.Context, url string, actorID uuid.UUID, role string) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil
	}
	if actorID != uuid.Nil {
		req.Header.Set("X-Actor-ID", actorID.String())
		req.Header.Set("X-Actor-Role", role)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("availability", &s.metrics.Availability)
	printOp("booking", &s.metrics.Booking)
	printOp("read by id", &s.metrics.ReadByID)
	printOp("list history", &s.metrics.ListHistory)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-14s no operations\n", name)
		return
	}
	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-14s total=%d success=%d conflict=%d error=%d avg=%s min=%s max=%s p50=%s p95=%s\n",
		name, total,
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, min, max, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
