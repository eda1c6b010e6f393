package health

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Reporter is implemented by components that can describe their own health
type Reporter interface {
	Health() Status
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func() Status

// Health implements Reporter
func (f ReporterFunc) Health() Status { return f() }

// TransitionFunc is called when a component's status level changes. prev is the zero
// Status the first time a component is seen.
type TransitionFunc func(prev, next Status)

// Monitor tracks component health. Statuses are pushed with Update or pulled from
// registered Reporters on Refresh.
type Monitor struct {
	mu        sync.RWMutex
	statuses  map[string]Status
	reporters map[string]Reporter
	onChange  TransitionFunc
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses:  make(map[string]Status),
		reporters: make(map[string]Reporter),
	}
}

// OnTransition installs fn, replacing any previous callback. fn runs on the updating
// goroutine without the monitor's lock held.
func (m *Monitor) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Register adds a reporter polled on every Refresh and records its current status
func (m *Monitor) Register(name string, r Reporter) {
	m.mu.Lock()
	m.reporters[name] = r
	m.mu.Unlock()

	m.Update(name, r.Health())
}

// Update records status for name, stamping it if the reporter left Timestamp zero
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	prev, seen := m.statuses[name]
	m.statuses[name] = status
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil && (!seen || prev.Status != status.Status) {
		fn(prev, status)
	}
}

// UpdateHealthy marks a component healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy marks a component unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded marks a component degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Refresh pulls a fresh status from every registered reporter
func (m *Monitor) Refresh() {
	m.mu.RLock()
	reporters := maps.Clone(m.reporters)
	m.mu.RUnlock()

	// reporters take their own locks
	for name, r := range reporters {
		m.Update(name, r.Health())
	}
}

// Run refreshes reporters every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}

// Get returns the last status recorded for name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	return s, ok
}

// GetAll returns a copy of every recorded status
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.statuses)
}

// Remove stops tracking a component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.reporters, name)
}

// AggregateHealth rolls every tracked component into one status, sub-statuses sorted by name
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subs := slices.Collect(maps.Values(m.statuses))
	m.mu.RUnlock()

	slices.SortFunc(subs, func(a, b Status) int { return strings.Compare(a.Component, b.Component) })
	return Aggregate(systemName, subs)
}

// ListComponents returns the sorted names of all tracked components
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.statuses))
}

// Count returns the number of tracked components
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Clear forgets every component and reporter. The transition callback is kept.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.statuses)
	clear(m.reporters)
}
