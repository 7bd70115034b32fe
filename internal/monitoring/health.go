package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// staleAfter marks the run degraded when no tick has completed recently
const staleAfter = 5 * time.Minute

// HealthChecker tracks pipeline liveness for the health endpoint
type HealthChecker struct {
	mu        sync.RWMutex
	lastTick  time.Time
	netDelta  float64
	feedAlive bool
	errors    []string
}

// HealthStatus is the health endpoint payload
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastTick  time.Time `json:"last_tick"`
	NetDelta  float64   `json:"net_delta"`
	FeedAlive bool      `json:"feed_alive"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// TickCompleted records a completed orchestration tick
func (h *HealthChecker) TickCompleted(netDelta float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = time.Now()
	h.netDelta = netDelta
	h.feedAlive = true
}

// FeedLost marks the data feed as unavailable
func (h *HealthChecker) FeedLost() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedAlive = false
}

// RecordError appends an operator-visible error
func (h *HealthChecker) RecordError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// settle on one status before touching the response: recorded errors
	// outrank staleness
	status := "healthy"
	code := http.StatusOK
	if !h.feedAlive || time.Since(h.lastTick) > staleAfter {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastTick:  h.lastTick,
		NetDelta:  h.netDelta,
		FeedAlive: h.feedAlive,
		Uptime:    time.Since(startTime).String(),
		Errors:    h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
