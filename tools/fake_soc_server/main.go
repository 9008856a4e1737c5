package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc/soctest"
)

type fakeSOCServer struct {
	start    time.Time
	failRate float64
	inner    *soctest.Server
	paths    soc.Paths

	mu         sync.Mutex
	byPath     map[string]int64
	byStatus   map[int]int64
	totalCalls int64
}

func main() {
	addr := getenvDefault("FAKE_SOC_ADDR", ":18081")
	latencyMs := getenvIntDefault("FAKE_SOC_LATENCY_MS", 0)
	fixturePath := getenvDefault("FAKE_SOC_FIXTURE", "")
	submitStatus := getenvIntDefault("FAKE_SOC_SUBMIT_STATUS", 0)
	failRate := getenvFloatDefault("FAKE_SOC_FAIL_RATE", 0)
	token := getenvDefault("FAKE_SOC_TOKEN", "")

	fixture := soctest.DefaultFixture()
	if fixturePath != "" {
		data, err := os.ReadFile(fixturePath)
		if err != nil {
			log.Fatalf("read fixture: %v", err)
		}
		fixture, err = soctest.ParseFixture(data)
		if err != nil {
			log.Fatalf("parse fixture: %v", err)
		}
	}

	inner := soctest.NewServer(fixture)
	inner.SetLatency(time.Duration(latencyMs) * time.Millisecond)
	if submitStatus != 0 {
		inner.SetSubmitResponse(submitStatus, http.StatusText(submitStatus))
	}
	if token != "" {
		inner.RequireToken(token)
	}

	srv := &fakeSOCServer{
		start:    time.Now().UTC(),
		failRate: failRate,
		inner:    inner,
		paths:    soc.DefaultPaths(),
		byPath:   make(map[string]int64),
		byStatus: make(map[int]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/stats", srv.handleStats)
	mux.Handle("/", srv)

	log.Printf("fake SOC server listening on %s (%d types)", addr, len(fixture.Types))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeSOCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if r.Method == http.MethodPost && r.URL.Path == s.paths.Submit && s.failRate > 0 && rand.Float64() < s.failRate {
		http.Error(rec, "fake submission failed", http.StatusInternalServerError)
	} else {
		s.inner.ServeHTTP(rec, r)
	}
	s.recordCall(r.URL.Path, rec.status)
}

func (s *fakeSOCServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeSOCServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[string]int64, len(s.byStatus))
	for status, n := range s.byStatus {
		byStatus[strconv.Itoa(status)] = n
	}
	payload := map[string]any{
		"started_at":  s.start.Format(time.RFC3339),
		"total":       atomic.LoadInt64(&s.totalCalls),
		"by_path":     s.byPath,
		"by_status":   byStatus,
		"submissions": len(s.inner.Submissions()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *fakeSOCServer) recordCall(path string, status int) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPath[path]++
	s.byStatus[status]++
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
