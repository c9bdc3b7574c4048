package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"wsideid/internal/config"
	"wsideid/internal/guard"
	"wsideid/internal/logging"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

// Metadata keys owned by the lifecycle.
const (
	MetaQuarantine = "quarantine"
	MetaUploadInfo = "wsi_uploadInfo"
	MetaDeidUpload = "deidUpload"
	MetaRedactList = "redactList"
	MetaRedacted   = "redacted"
	MetaProcessed  = "wsi_deidProcessed"
	MetaImportPath = "wsi_importPath"
)

// Export history keys, folded into the next redaction audit entry.
const (
	MetaExported       = "wsi_deidExported"
	MetaExportedRemote = "wsi_deidExportedRemote"
)

// ExportHistoryKeys lists the live export history keys in fold order.
var ExportHistoryKeys = []string{MetaExported, MetaExportedRemote}

// Machine performs state transitions against the object store.
type Machine struct {
	cfg      *config.Config
	store    *store.Store
	registry *guard.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a lifecycle machine. registry may be nil when no in-flight
// tracking is needed.
func New(cfg *config.Config, st *store.Store, registry *guard.Registry, logger *slog.Logger) *Machine {
	if registry == nil {
		registry = guard.NewRegistry()
	}
	return &Machine{
		cfg:      cfg,
		store:    st,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Registry exposes the in-flight registry shared with the action service.
func (m *Machine) Registry() *guard.Registry {
	return m.registry
}

// Store exposes the underlying object store.
func (m *Machine) Store() *store.Store {
	return m.store
}

// RoleFolder loads the folder bound to role.
func (m *Machine) RoleFolder(ctx context.Context, role Role) (*store.Folder, error) {
	id := m.cfg.RoleBindings()[string(role)]
	if id == "" {
		return nil, services.Wrap(services.ErrConfiguration, "lifecycle", string(role),
			"The appropriate folder is not configured.", nil)
	}
	folder, err := m.store.LoadFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "lifecycle", string(role),
			"The appropriate folder does not exist.", nil)
	}
	return folder, nil
}

func (m *Machine) timestamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

func userValue(user string) any {
	if user == "" {
		return nil
	}
	return user
}
