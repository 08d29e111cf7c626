// Package cleanup runs the retention loops: trash sweep, audit prune, session purge and vacuum.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
)

// Config defines retention policies and loop intervals. A zero interval disables that loop.
type Config struct {
	Enabled              bool
	AuditRetention       time.Duration
	TrashSweepInterval   time.Duration
	AuditPruneInterval   time.Duration
	SessionPurgeInterval time.Duration
	VacuumInterval       time.Duration
	// InitialDelay postpones the first run of each loop after Start
	InitialDelay time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		AuditRetention:       365 * 24 * time.Hour,
		TrashSweepInterval:   time.Hour,
		AuditPruneInterval:   24 * time.Hour,
		SessionPurgeInterval: time.Hour,
		VacuumInterval:       7 * 24 * time.Hour,
		InitialDelay:         time.Minute,
	}
}

// TrashSweeper deletes expired trash items
type TrashSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// AuditPruner deletes audit entries older than a retention window
type AuditPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

// SessionPurger deletes expired sessions
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Vacuumer reclaims database space
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}

// Task names
const (
	TaskTrash    = "trash"
	TaskAudit    = "audit"
	TaskSessions = "sessions"
	TaskVacuum   = "vacuum"
)

// TaskStats tracks one retention loop
type TaskStats struct {
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastDeleted  int           `json:"last_deleted"`
	TotalDeleted int64         `json:"total_deleted"`
	Runs         int64         `json:"runs"`
	LastError    string        `json:"last_error,omitempty"`
}

type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)
}

// Manager handles the retention loops
type Manager struct {
	config Config
	tasks  []task
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stats   map[string]TaskStats
	started bool
}

// NewManager creates a manager. Nil dependencies disable their loop.
func NewManager(config Config, trash TrashSweeper, audit AuditPruner, sessions SessionPurger, db Vacuumer, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		config: config,
		logger: logger.WithComponent("cleanup"),
		stats:  map[string]TaskStats{},
	}
	if trash != nil {
		m.tasks = append(m.tasks, task{TaskTrash, config.TrashSweepInterval, func(ctx context.Context) (int, error) {
			return trash.Sweep(ctx, time.Now().UTC())
		}})
	}
	if audit != nil && config.AuditRetention > 0 {
		m.tasks = append(m.tasks, task{TaskAudit, config.AuditPruneInterval, func(ctx context.Context) (int, error) {
			return audit.Prune(ctx, config.AuditRetention)
		}})
	}
	if sessions != nil {
		m.tasks = append(m.tasks, task{TaskSessions, config.SessionPurgeInterval, sessions.PurgeExpired})
	}
	if db != nil {
		m.tasks = append(m.tasks, task{TaskVacuum, config.VacuumInterval, func(ctx context.Context) (int, error) {
			return 0, db.Vacuum(ctx)
		}})
	}
	return m
}

// Start begins the retention loops
func (m *Manager) Start() {
	if !m.config.Enabled {
		m.logger.Info("Cleanup manager disabled", nil)
		return
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.logger.Info("Starting cleanup manager", map[string]interface{}{
		"audit_retention": m.config.AuditRetention.String(),
		"trash_interval":  m.config.TrashSweepInterval.String(),
	})
	for _, t := range m.tasks {
		if t.interval <= 0 {
			continue
		}
		m.wg.Add(1)
		go m.loop(t)
	}
}

// Stop cancels the loops and waits for running tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	m.logger.Info("Stopping cleanup manager", nil)
	cancel()
	m.wg.Wait()
	m.logger.Info("Cleanup manager stopped", nil)
}

// Shutdown adapts Stop to the shutdown manager
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop(t task) {
	defer m.wg.Done()

	if m.config.InitialDelay > 0 {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.config.InitialDelay):
		}
	}
	m.execute(m.ctx, t)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.execute(m.ctx, t)
		}
	}
}

func (m *Manager) execute(ctx context.Context, t task) {
	start := time.Now()
	deleted, err := t.run(ctx)
	duration := time.Since(start)

	m.mu.Lock()
	st := m.stats[t.name]
	st.LastRun = start.UTC()
	st.LastDuration = duration
	st.Runs++
	st.LastDeleted = deleted
	st.TotalDeleted += int64(deleted)
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	m.stats[t.name] = st
	m.mu.Unlock()

	if deleted > 0 && t.name != TaskTrash {
		metrics.CleanupDeleted.WithLabelValues(t.name).Add(float64(deleted))
	}
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("Cleanup task failed", map[string]interface{}{"task": t.name, "error": err})
		}
		return
	}
	m.logger.Debug("Cleanup task complete", map[string]interface{}{
		"task":        t.name,
		"deleted":     deleted,
		"duration_ms": duration.Milliseconds(),
	})
}

// RunNow runs every retention task once, skipping vacuum, and returns the rows deleted per task
func (m *Manager) RunNow(ctx context.Context) map[string]int {
	m.logger.Info("Manual cleanup triggered", nil)
	out := map[string]int{}
	for _, t := range m.tasks {
		if t.name == TaskVacuum {
			continue
		}
		m.execute(ctx, t)
		m.mu.RLock()
		out[t.name] = m.stats[t.name].LastDeleted
		m.mu.RUnlock()
	}
	return out
}

// VacuumNow runs the vacuum task once
func (m *Manager) VacuumNow(ctx context.Context) {
	for _, t := range m.tasks {
		if t.name == TaskVacuum {
			m.execute(ctx, t)
		}
	}
}

// Stats returns a copy of the per-task statistics
func (m *Manager) Stats() map[string]TaskStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]TaskStats, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}
