package importexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wsideid/internal/fileutil"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

type exportEntry struct {
	item *store.Item
	dir  []string
}

// Export sends finished items to the configured destinations. With all set
// every finished item is sent again; otherwise only items lacking an export
// record for a destination are sent there.
func (o *Orchestrator) Export(ctx context.Context, user string, all bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "importexport.Export")
	defer span.End()

	result := Result{Action: "export"}
	if all {
		result.Action = "exportall"
	}
	err := o.guard.WithExportLock(ctx, func(ctx context.Context) error {
		return o.export(ctx, user, all, &result)
	})
	span.SetAttributes(
		attribute.Bool("export.all", all),
		attribute.Int("export.exported", result.Exported),
		attribute.Int("export.failed", result.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (o *Orchestrator) export(ctx context.Context, user string, all bool, result *Result) error {
	logger := logging.WithContext(ctx, o.logger)
	finished, err := o.machine.RoleFolder(ctx, lifecycle.RoleFinished)
	if err != nil {
		return err
	}
	local := o.cfg.ExportsLocal()
	remote := o.cfg.ExportsRemote()
	if remote && o.sink == nil {
		return services.Wrap(services.ErrConfiguration, "importexport", "export",
			"remote export requested but no remote destination is configured", nil)
	}

	var entries []exportEntry
	if err := o.collect(ctx, finished, &entries); err != nil {
		return err
	}

	st := o.machine.Store()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := entry.item
		wantLocal := local && (all || !item.Meta.Has(lifecycle.MetaExported))
		wantRemote := remote && (all || !item.Meta.Has(lifecycle.MetaExportedRemote))
		if !wantLocal && !wantRemote {
			result.Skipped++
			continue
		}
		source, err := st.SourceFile(ctx, item)
		if err == nil && source == nil {
			err = fmt.Errorf("item %s has no image file", item.Name)
		}
		if err != nil {
			o.exportFailed(logger, result, item, err)
			continue
		}

		rel := path.Join(append(append([]string(nil), entry.dir...), fileutil.SafeName(item.Name))...)
		update := store.Metadata{}
		var errs []error
		if wantLocal {
			dir := filepath.Join(append([]string{o.cfg.Paths.ExportDir}, entry.dir...)...)
			if _, digest, err := fileutil.CopyInto(st.FilePath(source), dir, fileutil.SafeName(item.Name)); err != nil {
				errs = append(errs, fmt.Errorf("local copy: %w", err))
			} else {
				update[lifecycle.MetaExported] = o.appendHistory(item, lifecycle.MetaExported, user,
					map[string]any{"path": rel, "sha256": digest})
			}
		}
		if wantRemote {
			key := o.sink.Key(rel)
			if err := o.sink.Put(ctx, key, st.FilePath(source), source.Size, source.MimeType); err != nil {
				errs = append(errs, fmt.Errorf("remote upload: %w", err))
			} else {
				update[lifecycle.MetaExportedRemote] = o.appendHistory(item, lifecycle.MetaExportedRemote, user,
					map[string]any{"key": key})
			}
		}
		if len(update) > 0 {
			if _, err := st.SetMetadata(ctx, item, update); err != nil {
				return err
			}
		}
		if len(errs) > 0 {
			o.exportFailed(logger, result, item, errors.Join(errs...))
			continue
		}
		result.Exported++
		result.message(fmt.Sprintf("Exported %s", rel))
	}

	if result.Exported > 0 || result.Failed > 0 {
		o.attachReport(ctx, "Export", user, result)
	}
	logger.Info("export finished",
		logging.Bool("all", all),
		logging.Int("exported", result.Exported),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.String(logging.FieldEventType, "export_finished"),
	)
	return nil
}

// collect lists every item under folder with its folder path relative to
// the finished root.
func (o *Orchestrator) collect(ctx context.Context, folder *store.Folder, out *[]exportEntry) error {
	st := o.machine.Store()
	return lifecycle.WalkTree(ctx, st, folder, func(f *store.Folder, rel []string) error {
		items, err := st.ChildItems(ctx, f, store.ItemQuery{Sort: store.SortLowerName})
		if err != nil {
			return err
		}
		dir := make([]string, len(rel))
		for i, name := range rel {
			dir[i] = fileutil.SafeName(name)
		}
		for _, item := range items {
			*out = append(*out, exportEntry{item: item, dir: dir})
		}
		return nil
	})
}

// appendHistory adds one export record, carrying where the copy went, to the
// item's history under key.
func (o *Orchestrator) appendHistory(item *store.Item, key, user string, where map[string]any) []any {
	entry := map[string]any{
		"time": o.timestamp(),
		"user": userValue(user),
	}
	for k, v := range where {
		entry[k] = v
	}
	return append(append([]any(nil), item.Meta.List(key)...), entry)
}

func (o *Orchestrator) exportFailed(logger *slog.Logger, result *Result, item *store.Item, err error) {
	result.Failed++
	result.message(fmt.Sprintf("Failed to export %s: %v", item.Name, err))
	logging.WarnWithContext(logger, "failed to export item", "export_failed",
		logging.String(logging.FieldItemID, item.ID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "item will be retried on the next export"),
	)
}
