// Package monitor keeps a current view of backend reachability. A cron
// schedule refreshes every backend's connectivity probe and the results
// feed both the status snapshot and the health endpoints.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/pkg/observability"
)

// DefaultSchedule refreshes connectivity twice a minute.
const DefaultSchedule = "@every 30s"

// Status is the last probe outcome for one backend.
type Status struct {
	Kind        env.Kind
	Healthy     bool
	LastChecked time.Time
	Error       string
}

// Monitor probes environment backends on a schedule.
type Monitor struct {
	adapters []env.Adapter
	cron     *cron.Cron
	timeout  time.Duration

	mu     sync.RWMutex
	status map[env.Kind]Status
}

// New builds a Monitor over the given adapters.
func New(adapters []env.Adapter) *Monitor {
	return &Monitor{
		adapters: adapters,
		cron:     cron.New(),
		timeout:  10 * time.Second,
		status:   make(map[env.Kind]Status),
	}
}

// Start probes all backends once, registers them with the health
// checker, and begins the periodic refresh. schedule uses cron syntax;
// empty means DefaultSchedule.
func (m *Monitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	checker := observability.GetHealthChecker()
	for _, a := range m.adapters {
		checker.RegisterCheck(observability.EnvironmentCheck(string(a.Kind()), a.TestConnection))
	}

	m.RefreshAll(context.Background())

	if _, err := m.cron.AddFunc(schedule, func() {
		m.RefreshAll(context.Background())
	}); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop ends the periodic refresh and waits for a running probe pass.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// RefreshAll probes every backend now.
func (m *Monitor) RefreshAll(ctx context.Context) {
	for _, a := range m.adapters {
		m.refresh(ctx, a)
	}
}

func (m *Monitor) refresh(ctx context.Context, a env.Adapter) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := a.TestConnection(probeCtx)
	st := Status{
		Kind:        a.Kind(),
		Healthy:     err == nil,
		LastChecked: time.Now(),
	}
	if err != nil {
		st.Error = err.Error()
		log.Printf("monitor: %s backend unreachable: %v", a.Kind(), err)
	}

	m.mu.Lock()
	m.status[a.Kind()] = st
	m.mu.Unlock()
}

// Snapshot returns the last probe outcome per backend.
func (m *Monitor) Snapshot() map[env.Kind]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[env.Kind]Status, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// Healthy reports whether the backend's last probe succeeded. Unknown
// kinds are unhealthy.
func (m *Monitor) Healthy(kind env.Kind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[kind].Healthy
}
