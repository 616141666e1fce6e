package observability

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Status label values shared by the counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Config holds configuration for observability features
type Config struct {
	HealthTimeout  time.Duration
	MetricsEnabled bool
	Tracing        TracingConfig
}

// Manager coordinates health, metrics and tracing. Health is always on;
// metrics and tracing are optional and nil when disabled.
type Manager struct {
	logger  *zap.SugaredLogger
	health  *HealthManager
	metrics *MetricsManager
	tracing *TracingManager
}

// NewManager creates a new observability manager
func NewManager(logger *zap.SugaredLogger, cfg Config) (*Manager, error) {
	m := &Manager{
		logger: logger,
		health: NewHealthManager(logger),
	}
	if cfg.HealthTimeout > 0 {
		m.health.SetTimeout(cfg.HealthTimeout)
	}

	if cfg.MetricsEnabled {
		m.metrics = NewMetricsManager(logger)
		logger.Info("Prometheus metrics enabled")
	}

	if cfg.Tracing.Enabled {
		tm, err := NewTracingManager(logger, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		m.tracing = tm
	}

	return m, nil
}

func (m *Manager) Health() *HealthManager { return m.health }

// Metrics may return nil; every MetricsManager method tolerates a nil receiver.
func (m *Manager) Metrics() *MetricsManager { return m.metrics }

// Tracing may return nil; every TracingManager method tolerates a nil receiver.
func (m *Manager) Tracing() *TracingManager { return m.tracing }

// RegisterHealthChecker registers a checker for both /healthz and /readyz.
func (m *Manager) RegisterHealthChecker(checker HealthChecker) {
	m.health.AddHealthChecker(checker)
	if rc, ok := checker.(ReadinessChecker); ok {
		m.health.AddReadinessChecker(rc)
	}
}

// HTTPMiddleware returns combined HTTP middleware for observability
func (m *Manager) HTTPMiddleware() func(http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler
	if m.metrics != nil {
		chain = append(chain, m.metrics.HTTPMiddleware())
	}
	if m.tracing != nil {
		chain = append(chain, m.tracing.HTTPMiddleware())
	}
	return func(next http.Handler) http.Handler {
		for i := len(chain) - 1; i >= 0; i-- {
			next = chain[i](next)
		}
		return next
	}
}

// Close gracefully shuts down observability components
func (m *Manager) Close(ctx context.Context) error {
	if m.tracing != nil {
		if err := m.tracing.Close(ctx); err != nil {
			m.logger.Errorw("Failed to close tracing manager", "error", err)
			return err
		}
	}
	return nil
}
