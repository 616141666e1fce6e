// Package observability provides health checks, Prometheus metrics and
// OpenTelemetry tracing for the gateway.
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusReady     = "ready"
	statusNotReady  = "not_ready"
)

// HealthChecker is a component that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Name() string
}

// ReadinessChecker is a component that can report whether it accepts traffic.
type ReadinessChecker interface {
	ReadinessCheck(ctx context.Context) error
	Name() string
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Components []HealthStatus `json:"components"`
}

// HealthManager manages health and readiness checks
type HealthManager struct {
	logger            *zap.SugaredLogger
	healthCheckers    []HealthChecker
	readinessCheckers []ReadinessChecker
	timeout           time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger *zap.SugaredLogger) *HealthManager {
	return &HealthManager{
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (hm *HealthManager) AddHealthChecker(checker HealthChecker) {
	hm.healthCheckers = append(hm.healthCheckers, checker)
}

func (hm *HealthManager) AddReadinessChecker(checker ReadinessChecker) {
	hm.readinessCheckers = append(hm.readinessCheckers, checker)
}

func (hm *HealthManager) SetTimeout(timeout time.Duration) {
	hm.timeout = timeout
}

// HealthzHandler returns an HTTP handler for the /healthz endpoint
func (hm *HealthManager) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hm.timeout)
		defer cancel()

		response := hm.CheckHealth(ctx)
		statusCode := http.StatusOK
		if response.Status != statusHealthy {
			statusCode = http.StatusServiceUnavailable
		}
		hm.writeJSONResponse(w, statusCode, response)
	}
}

// ReadyzHandler returns an HTTP handler for the /readyz endpoint
func (hm *HealthManager) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hm.timeout)
		defer cancel()

		response := hm.CheckReadiness(ctx)
		statusCode := http.StatusOK
		if response.Status != statusReady {
			statusCode = http.StatusServiceUnavailable
		}
		hm.writeJSONResponse(w, statusCode, response)
	}
}

// CheckHealth runs every registered health checker.
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthResponse {
	checks := make([]func(context.Context) error, len(hm.healthCheckers))
	names := make([]string, len(hm.healthCheckers))
	for i, c := range hm.healthCheckers {
		checks[i], names[i] = c.HealthCheck, c.Name()
	}
	return hm.run(ctx, names, checks, statusHealthy, statusUnhealthy)
}

// CheckReadiness runs every registered readiness checker.
func (hm *HealthManager) CheckReadiness(ctx context.Context) HealthResponse {
	checks := make([]func(context.Context) error, len(hm.readinessCheckers))
	names := make([]string, len(hm.readinessCheckers))
	for i, c := range hm.readinessCheckers {
		checks[i], names[i] = c.ReadinessCheck, c.Name()
	}
	return hm.run(ctx, names, checks, statusReady, statusNotReady)
}

func (hm *HealthManager) run(ctx context.Context, names []string, checks []func(context.Context) error, ok, bad string) HealthResponse {
	response := HealthResponse{
		Status:     ok,
		Timestamp:  time.Now(),
		Components: make([]HealthStatus, 0, len(checks)),
	}

	for i, check := range checks {
		start := time.Now()
		status := HealthStatus{Name: names[i], Status: ok}
		if err := check(ctx); err != nil {
			status.Status = bad
			status.Error = err.Error()
			response.Status = bad
			hm.logger.Warnw("Check failed", "component", names[i], "state", bad, "error", err)
		}
		status.Latency = time.Since(start).String()
		response.Components = append(response.Components, status)
	}
	return response
}

func (hm *HealthManager) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hm.logger.Errorw("Failed to encode health response", "error", err)
	}
}
