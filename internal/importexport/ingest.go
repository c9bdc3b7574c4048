package importexport

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wsideid/internal/jobs"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/manifest"
	"wsideid/internal/redactspec"
	"wsideid/internal/store"
)

type importScan struct {
	manifests []string
	images    []string
}

// Ingest imports new files from the import directory.
func (o *Orchestrator) Ingest(ctx context.Context, user string) (Result, error) {
	ctx, span := tracer.Start(ctx, "importexport.Ingest")
	defer span.End()

	result := Result{Action: "ingest"}
	err := o.guard.WithIngestLock(ctx, func(ctx context.Context) error {
		return o.ingest(ctx, user, &result)
	})
	span.SetAttributes(
		attribute.Int("ingest.added", result.Added),
		attribute.Int("ingest.matched", result.Matched),
		attribute.Int("ingest.failed", result.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (o *Orchestrator) ingest(ctx context.Context, user string, result *Result) error {
	logger := logging.WithContext(ctx, o.logger)
	ingestFolder, err := o.machine.RoleFolder(ctx, lifecycle.RoleIngest)
	if err != nil {
		return err
	}
	unfiledFolder, err := o.machine.RoleFolder(ctx, lifecycle.RoleUnfiled)
	if err != nil {
		return err
	}
	st := o.machine.Store()

	scan, err := o.scanImportDir()
	if err != nil {
		return err
	}

	cols := manifest.Columns{Token: o.cfg.Import.FolderNameField, Image: o.cfg.Import.ImageNameField}
	var rows []manifest.Record
	for _, path := range scan.manifests {
		records, err := manifest.ReadFile(path, cols)
		if err != nil {
			result.Failed++
			result.message(fmt.Sprintf("Failed to read manifest %s: %v", o.relImportPath(path), err))
			logging.WarnWithContext(logger, "failed to read manifest", "manifest_read_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "rows from this manifest are not used for filing"),
			)
			continue
		}
		rows = append(rows, records...)
	}
	result.ManifestRows = len(rows)
	records := manifest.Index(rows)

	known, err := st.MetaStringValues(ctx, lifecycle.MetaImportPath)
	if err != nil {
		return err
	}

	used := map[string]bool{}
	var unfiled []*store.Item
	for _, path := range scan.images {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := known[path]; ok {
			result.Skipped++
			continue
		}
		item, matched, err := o.importFile(ctx, path, user, records, used, ingestFolder, unfiledFolder)
		if err != nil {
			result.Failed++
			result.message(fmt.Sprintf("Failed to import %s: %v", o.relImportPath(path), err))
			logging.WarnWithContext(logger, "failed to import file", "import_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file will be retried on the next ingest"),
			)
			continue
		}
		result.Added++
		if matched {
			result.Matched++
			result.message(fmt.Sprintf("Imported %s as %s", o.relImportPath(path), item.Name))
			continue
		}
		result.Unfiled++
		result.message(fmt.Sprintf("Imported %s to unfiled", o.relImportPath(path)))
		unfiled = append(unfiled, item)
	}

	unmatched := manifest.Records{}
	for key, rec := range records {
		if !used[key] {
			unmatched[key] = rec
		}
	}
	if len(unfiled) > 0 && len(unmatched) > 0 {
		uploadInfo := unmatched.Meta()
		for _, item := range unfiled {
			if _, err := st.SetMetadata(ctx, item, store.Metadata{lifecycle.MetaUploadInfo: uploadInfo}); err != nil {
				return err
			}
		}
	}

	if o.cfg.Import.OCROnImport && o.associator != nil && o.runner != nil && len(unfiled) > 0 && len(unmatched) > 0 {
		ids := make([]string, 0, len(unfiled))
		for _, item := range unfiled {
			ids = append(ids, item.ID)
		}
		handle, err := o.runner.Submit(ctx, jobs.Spec{
			Title:  fmt.Sprintf("Associating %d unfiled images with upload records", len(ids)),
			Type:   jobs.TypeAssociateUnfiled,
			UserID: user,
		}, func(ctx context.Context, h *jobs.Handle) error {
			_, err := o.associator.AssociateUnfiled(ctx, ids, unmatched, user, h.Log)
			return err
		}, true)
		if err != nil {
			return err
		}
		result.JobID = handle.ID()
	}

	if result.Added > 0 || result.Failed > 0 {
		o.attachReport(ctx, "Import", user, result)
	}
	logger.Info("ingest finished",
		logging.Int("added", result.Added),
		logging.Int("matched", result.Matched),
		logging.Int("unfiled", result.Unfiled),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Int("manifest_rows", result.ManifestRows),
		logging.String(logging.FieldEventType, "ingest_finished"),
	)
	return nil
}

// importFile creates one item. A file named after a manifest image id is
// filed under ingest/{token}; anything else goes to the unfiled folder.
func (o *Orchestrator) importFile(ctx context.Context, path, user string, records manifest.Records, used map[string]bool, ingestFolder, unfiledFolder *store.Folder) (*store.Item, bool, error) {
	st := o.machine.Store()
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	imageID := strings.TrimSuffix(name, ext)

	dest := unfiledFolder
	meta := store.Metadata{}
	matched := false
	if rec, ok := records[imageID]; ok && !used[imageID] {
		taken, err := st.ItemsNamedLike(ctx, imageID+".", "")
		if err != nil {
			return nil, false, err
		}
		if len(taken) == 0 {
			folder, err := st.CreateFolder(ctx, ingestFolder, rec.TokenID, user, true)
			if err != nil {
				return nil, false, err
			}
			dest = folder
			name = imageID + ext
			meta[lifecycle.MetaDeidUpload] = rec.FieldsMeta()
			meta[lifecycle.MetaRedactList] = redactspec.Standard(imageID, name)
			matched = true
		}
	}

	item, err := st.CreateItem(ctx, dest, name, user, meta)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	if _, err := st.UploadFile(ctx, f, info.Size(), name, item, ""); err != nil {
		return nil, false, err
	}
	if err := st.SetLargeImage(ctx, item); err != nil {
		return nil, false, err
	}
	item, err = st.SetMetadata(ctx, item, store.Metadata{lifecycle.MetaImportPath: path})
	if err != nil {
		return nil, false, err
	}
	if matched {
		used[imageID] = true
	}
	return item, matched, nil
}

func (o *Orchestrator) scanImportDir() (importScan, error) {
	var scan importScan
	root := o.cfg.Paths.ImportDir
	if strings.TrimSpace(root) == "" {
		return scan, nil
	}
	allowed := make(map[string]bool, len(o.cfg.Import.ImageExtensions))
	for _, ext := range o.cfg.Import.ImageExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		switch {
		case ext == ".csv":
			scan.manifests = append(scan.manifests, path)
		case allowed[ext]:
			scan.images = append(scan.images, path)
		}
		return nil
	})
	if err != nil {
		return scan, fmt.Errorf("scan import directory: %w", err)
	}
	sort.Strings(scan.manifests)
	sort.Strings(scan.images)
	return scan, nil
}

func (o *Orchestrator) relImportPath(path string) string {
	if rel, err := filepath.Rel(o.cfg.Paths.ImportDir, path); err == nil {
		return rel
	}
	return path
}
