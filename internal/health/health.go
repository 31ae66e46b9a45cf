// Package health exposes liveness and readiness probes over HTTP. The
// orchestrator registers one check per backing service (Redis,
// Postgres, Temporal); a failed critical check flips readiness, a
// failed non-critical one only degrades the report.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// ComponentStatus is one dependency's probe outcome.
type ComponentStatus struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Critical bool   `json:"critical"`
	Duration string `json:"duration"`
}

// Report is the full health snapshot.
type Report struct {
	Status     string                     `json:"status"`
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  int64                      `json:"timestamp"`
}

// Manager runs registered checks on demand.
type Manager struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
	logger  *zap.Logger
}

// NewManager creates a health manager. Each check gets a 3s budget.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: 3 * time.Second, logger: logger}
}

// Register adds a named check. Critical checks gate readiness.
func (m *Manager) Register(name string, critical bool, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check{name: name, fn: fn, critical: critical})
	sort.Slice(m.checks, func(i, j int) bool { return m.checks[i].name < m.checks[j].name })
}

// Check probes every dependency and assembles the report.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checks := make([]check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	report := Report{
		Status:     "healthy",
		Ready:      true,
		Components: make(map[string]ComponentStatus, len(checks)),
		Timestamp:  time.Now().Unix(),
	}

	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		err := c.fn(cctx)
		cancel()

		cs := ComponentStatus{
			Status:   "healthy",
			Critical: c.critical,
			Duration: time.Since(start).String(),
		}
		if err != nil {
			cs.Status = "unhealthy"
			cs.Error = err.Error()
			m.logger.Warn("health check failed",
				zap.String("component", c.name),
				zap.Bool("critical", c.critical),
				zap.Error(err),
			)
			if c.critical {
				report.Status = "unhealthy"
				report.Ready = false
			} else if report.Status == "healthy" {
				report.Status = "degraded"
			}
		}
		report.Components[c.name] = cs
	}
	return report
}

// IsReady reports whether every critical check passes.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Check(ctx).Ready
}
