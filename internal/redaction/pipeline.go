package redaction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wsideid/internal/buildinfo"
	"wsideid/internal/config"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/redactspec"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

var tracer = otel.Tracer("wsideid/redaction")

// Pipeline processes items through the codec.
type Pipeline struct {
	cfg     *config.Config
	machine *lifecycle.Machine
	codec   Codec
	logger  *slog.Logger
	version string
	now     func() time.Time
}

// New constructs a redaction pipeline.
func New(cfg *config.Config, machine *lifecycle.Machine, codec Codec, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		machine: machine,
		codec:   codec,
		logger:  logging.NewComponentLogger(logger, "redaction"),
		version: buildinfo.String(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessItem redacts item and moves it to the processed folder.
func (p *Pipeline) ProcessItem(ctx context.Context, item *store.Item, user string) (*store.Item, error) {
	ctx, span := tracer.Start(ctx, "redaction.ProcessItem")
	span.SetAttributes(attribute.String("item.id", item.ID))
	defer span.End()

	processed, err := p.process(ctx, item, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return processed, err
}

func (p *Pipeline) process(ctx context.Context, item *store.Item, user string) (*store.Item, error) {
	st := p.machine.Store()
	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldItemID, item.ID))

	for _, role := range []lifecycle.Role{lifecycle.RoleOriginal, lifecycle.RoleProcessed} {
		if _, err := p.machine.RoleFolder(ctx, role); err != nil {
			return nil, err
		}
	}
	source, err := st.SourceFile(ctx, item)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, services.Wrap(services.ErrRedaction, "redaction", "process", "item "+item.Name+" has no image file", nil)
	}

	if err := os.MkdirAll(p.cfg.Paths.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	scratch, err := os.MkdirTemp(p.cfg.Paths.ScratchDir, "wsi_deid")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	// 1. Redact first so a codec failure leaves the item untouched.
	redactList := item.Meta.Map(lifecycle.MetaRedactList)
	redactedPath, info, err := p.codec.Redact(ctx, Source{Item: item, Path: st.FilePath(source)}, redactList, scratch)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to redact item", "redaction_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the redaction command output"),
		)
		return nil, services.Wrap(services.ErrRedaction, "redaction", "codec", err.Error(), err)
	}
	newSize, err := fileSize(redactedPath)
	if err != nil {
		return nil, services.Wrap(services.ErrRedaction, "redaction", "codec output", err.Error(), err)
	}

	// 2. Archive an unmodified copy under the original folder.
	archiveFolder, err := p.machine.MirrorInto(ctx, item, user, lifecycle.RoleOriginal)
	if err != nil {
		return nil, err
	}
	archived, err := st.CopyItem(ctx, item, item.CreatorID, archiveFolder, item.Name)
	if err != nil {
		return nil, err
	}
	if _, err := st.SetMetadata(ctx, archived, store.Metadata{
		lifecycle.MetaProcessed: map[string]any{
			"itemId": item.ID,
			"time":   p.timestamp(),
			"user":   userValue(user),
		},
	}); err != nil {
		return nil, err
	}

	// 3. Drop the pixel representation and existing files.
	if err := st.DeleteLargeImage(ctx, item); err != nil {
		return nil, err
	}
	originalSize, err := st.RemoveFiles(ctx, item)
	if err != nil {
		return nil, err
	}

	// 4-5. Upload the redacted file.
	newName := redactedName(item.Name, redactedPath)
	f, err := os.Open(redactedPath)
	if err != nil {
		return nil, err
	}
	_, err = st.UploadFile(ctx, f, newSize, newName, item, info.MimeType())
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := st.SetLargeImage(ctx, item); err != nil {
		return nil, err
	}
	current, err := st.LoadItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "redaction", "reload", item.ID, nil)
	}
	if current.Name != newName {
		if current, err = st.RenameItem(ctx, current, newName); err != nil {
			return nil, err
		}
	}

	// 6-7. Append the audit entry, fold export history, clear quarantine.
	previous := map[string]any{}
	for _, key := range lifecycle.ExportHistoryKeys {
		if current.Meta.Has(key) {
			previous[key] = current.Meta[key]
		}
	}
	entry := AuditEntry{
		User:            userPointer(user),
		Time:            p.timestamp(),
		OriginalSize:    originalSize,
		RedactedSize:    newSize,
		RedactList:      nilIfEmpty(current.Meta[lifecycle.MetaRedactList]),
		Details:         info,
		Version:         p.version,
		PreviousExports: previous,
	}
	entryMeta, err := entry.toMeta()
	if err != nil {
		return nil, err
	}
	history := append(append([]any(nil), current.Meta.List(lifecycle.MetaRedacted)...), entryMeta)
	update := store.Metadata{
		lifecycle.MetaRedacted:   history,
		lifecycle.MetaQuarantine: nil,
	}
	for _, key := range lifecycle.ExportHistoryKeys {
		update[key] = nil
	}
	if current, err = st.SetMetadata(ctx, current, update); err != nil {
		return nil, err
	}

	// 8. Regenerate thumbnails for geometry redactions, or when unsure.
	if geometry, err := redactspec.HasGeometry(current.Meta.Map(lifecycle.MetaRedactList)); err != nil || geometry {
		if _, err := st.RemoveThumbnails(ctx, current); err != nil {
			logging.WarnWithContext(logger, "failed to remove cached thumbnails", "thumbnail_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale thumbnails may be shown until regenerated"),
			)
		}
	}

	// 9. Move to processed.
	moved, err := p.machine.Move(ctx, current, user, lifecycle.RoleProcessed)
	if err != nil {
		return nil, err
	}
	logger.Info("item redacted",
		logging.String("name", moved.Name),
		logging.Int64("original_size", originalSize),
		logging.Int64("redacted_size", newSize),
		logging.String("archive_item_id", archived.ID),
		logging.String(logging.FieldEventType, "item_processed"),
	)
	return moved, nil
}

func (p *Pipeline) timestamp() string {
	return p.now().UTC().Format(time.RFC3339Nano)
}

// redactedName keeps the original name unless it lacks a real extension, in
// which case the redacted file's extension is appended to the base name.
func redactedName(original, redactedPath string) string {
	ext := filepath.Ext(original)
	if len(ext) > 1 {
		return original
	}
	return strings.TrimSuffix(original, ext) + filepath.Ext(redactedPath)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func userValue(user string) any {
	if user == "" {
		return nil
	}
	return user
}

func userPointer(user string) *string {
	if user == "" {
		return nil
	}
	return &user
}

func nilIfEmpty(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return v
}
