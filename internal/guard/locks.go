package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"wsideid/internal/config"
	"wsideid/internal/logging"
)

const lockRetryDelay = 250 * time.Millisecond

// Guard owns the ingest and export locks plus the in-flight registry.
type Guard struct {
	registry *Registry
	ingest   *namedLock
	export   *namedLock
	logger   *slog.Logger
}

type namedLock struct {
	name string
	mu   sync.Mutex
	file *flock.Flock
}

// New constructs a guard whose file locks live under cfg's data directory.
func New(cfg *config.Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		registry: NewRegistry(),
		ingest:   &namedLock{name: "ingest", file: flock.New(cfg.LockPath("ingest"))},
		export:   &namedLock{name: "export", file: flock.New(cfg.LockPath("export"))},
		logger:   logging.NewComponentLogger(logger, "guard"),
	}
}

// Registry exposes the in-flight set.
func (g *Guard) Registry() *Registry {
	return g.registry
}

// WithIngestLock runs fn while holding the ingest lock.
func (g *Guard) WithIngestLock(ctx context.Context, fn func(context.Context) error) error {
	return g.with(ctx, g.ingest, fn)
}

// WithExportLock runs fn while holding the export lock.
func (g *Guard) WithExportLock(ctx context.Context, fn func(context.Context) error) error {
	return g.with(ctx, g.export, fn)
}

func (g *Guard) with(ctx context.Context, lock *namedLock, fn func(context.Context) error) error {
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(lock.file.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	started := time.Now()
	ok, err := lock.file.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", lock.name, err)
	}
	if !ok {
		return fmt.Errorf("acquire %s lock: not acquired", lock.name)
	}
	defer func() {
		if err := lock.file.Unlock(); err != nil {
			g.logger.Warn("failed to release lock",
				logging.String("lock", lock.name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the stale lock file if no other process is running"),
			)
		}
	}()
	if waited := time.Since(started); waited > lockRetryDelay {
		g.logger.Info("lock acquired after wait",
			logging.String("lock", lock.name),
			logging.Duration("waited", waited),
		)
	}
	return fn(ctx)
}
