package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/exlog/internal/core/breaker"
)

// Checker is a dependency that can report whether it is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// BreakerState exposes the store circuit breaker.
type BreakerState interface {
	State() breaker.State
	Until() (time.Time, bool)
}

// Monitor aggregates health status from the store, the breaker and optional failover sinks.
type Monitor struct {
	store      Checker
	breaker    BreakerState
	optional   map[string]Checker
	interval   time.Duration
	timeout    time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Reports are cached for interval.
func NewMonitor(store Checker, b BreakerState, interval time.Duration) *Monitor {
	return &Monitor{
		store:    store,
		breaker:  b,
		optional: make(map[string]Checker),
		interval: interval,
		timeout:  2 * time.Second,
	}
}

// AddOptional registers a dependency whose failure only degrades the system.
func (m *Monitor) AddOptional(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optional[name] = c
}

// CheckHealth performs a health check of every component.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Avoid hammering the store from the health endpoint
	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Breaker:      string(breaker.StateAvailable),
		Components:   make(map[string]ComponentHealth),
		CheckedAt:    time.Now().UTC(),
	}

	// 1. Store
	report.Components["store"] = m.check(ctx, m.store, StatusCritical)

	// 2. Breaker
	if m.breaker != nil {
		report.Breaker = string(m.breaker.State())
		if until, ok := m.breaker.Until(); ok {
			u := until.UTC()
			report.RetryAt = &u
		}
	}

	// 3. Optional sinks
	for name, c := range m.optional {
		report.Components[name] = m.check(ctx, c, StatusDegraded)
	}

	// Evaluate Status (worst case wins)
	for _, c := range report.Components {
		report.SystemStatus = worse(report.SystemStatus, c.Status)
	}
	if report.Breaker == string(breaker.StateUnavailable) {
		report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func (m *Monitor) check(ctx context.Context, c Checker, onFailure SystemStatus) ComponentHealth {
	if c == nil {
		return ComponentHealth{Status: StatusHealthy}
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		return ComponentHealth{Status: onFailure, Error: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}

func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
