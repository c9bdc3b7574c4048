package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wsideid/internal/importexport"
	"wsideid/internal/logging"
	"wsideid/internal/store"
)

// Manager runs the background ingest poll for `wsideid serve`.
type Manager struct {
	service      *Service
	store        *store.Store
	logger       *slog.Logger
	pollInterval time.Duration

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastIngest *importexport.Result
	lastRun    time.Time
}

// NewManager constructs a manager. A zero poll interval disables polling;
// Start then only reclaims jobs left RUNNING by a previous process.
func NewManager(service *Service, st *store.Store, pollInterval time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		service:      service,
		store:        st,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		pollInterval: pollInterval,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.reclaimStaleJobs(runCtx)
	if m.pollInterval <= 0 {
		m.logger.Info("ingest polling disabled")
		return nil
	}
	m.wg.Add(1)
	go m.pollLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) reclaimStaleJobs(ctx context.Context) {
	reclaimed, err := m.store.FailRunningJobs(ctx, "Job interrupted by a restart.")
	if err != nil {
		logging.WarnWithContext(m.logger, "failed to reclaim stale jobs", "job_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "interrupted jobs may still show RUNNING"),
		)
		return
	}
	if reclaimed > 0 {
		m.logger.Info("marked interrupted jobs as failed", logging.Int64("count", reclaimed))
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		m.runIngest(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) runIngest(ctx context.Context) {
	result, err := m.service.Ingest(ctx, "")
	m.mu.Lock()
	m.lastRun = time.Now()
	m.lastErr = err
	if err == nil {
		m.lastIngest = &result
	}
	m.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.logger.Error("scheduled ingest failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scheduled_ingest_failed"),
			logging.String(logging.FieldErrorHint, "check the import directory and folder bindings"),
		)
		return
	}
	if result.Added > 0 || result.Failed > 0 {
		m.logger.Info("scheduled ingest imported files",
			logging.Int("added", result.Added),
			logging.Int("failed", result.Failed),
		)
	}
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                 `json:"running"`
	LastError  string               `json:"last_error,omitempty"`
	LastRun    time.Time            `json:"last_run"`
	LastIngest *importexport.Result `json:"last_ingest,omitempty"`
	InFlight   []string             `json:"in_flight"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running:  m.running,
		LastRun:  m.lastRun,
		InFlight: m.service.Registry().Snapshot(),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastIngest != nil {
		copy := *m.lastIngest
		summary.LastIngest = &copy
	}
	return summary
}
