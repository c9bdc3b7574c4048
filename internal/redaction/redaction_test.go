package redaction_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"wsideid/internal/config"
	"wsideid/internal/lifecycle"
	"wsideid/internal/redaction"
	"wsideid/internal/redactspec"
	"wsideid/internal/services"
	"wsideid/internal/store"
	"wsideid/internal/testsupport"
)

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	roles    testsupport.Roles
	codec    *testsupport.FakeCodec
	pipeline *redaction.Pipeline
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	roles := testsupport.MustSetupRoles(t, st, cfg)
	codec := testsupport.NewFakeCodec()
	machine := lifecycle.New(cfg, st, nil, nil)
	return fixture{
		cfg:      cfg,
		store:    st,
		roles:    roles,
		codec:    codec,
		pipeline: redaction.New(cfg, machine, codec, nil),
	}
}

func TestProcessItemRedactsArchivesAndMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leaf := testsupport.MustCreateFolder(t, f.store, f.roles.Folder("ingest"), "T1")
	item := testsupport.MustCreateItem(t, f.store, leaf, "P100.svs", store.Metadata{
		lifecycle.MetaRedactList: redactspec.Standard("P100", "P100.svs"),
	})

	processed, err := f.pipeline.ProcessItem(ctx, item, "reviewer")
	if err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}
	if processed.ID != item.ID {
		t.Fatalf("processed item id changed: %s", processed.ID)
	}
	if processed.Name != "P100.svs" {
		t.Fatalf("expected name kept, got %q", processed.Name)
	}

	folder, err := f.store.LoadFolder(ctx, processed.FolderID)
	if err != nil || folder == nil {
		t.Fatalf("LoadFolder: %v", err)
	}
	if folder.Name != "T1" || folder.ParentID != f.roles.Folder("processed").ID {
		t.Fatalf("expected processed/T1, got %#v", folder)
	}
	if remaining, _ := f.store.LoadFolder(ctx, leaf.ID); remaining != nil {
		t.Fatal("expected emptied ingest folder to be pruned")
	}

	source, err := f.store.SourceFile(ctx, processed)
	if err != nil || source == nil {
		t.Fatalf("SourceFile: %v", err)
	}
	data, err := os.ReadFile(f.store.FilePath(source))
	if err != nil {
		t.Fatalf("read redacted file: %v", err)
	}
	if string(data) != "redacted:P100.svs" {
		t.Fatalf("unexpected redacted payload %q", data)
	}
	if source.MimeType != "image/tiff" || !processed.LargeImage {
		t.Fatalf("expected tiff large image, got mime=%q large=%v", source.MimeType, processed.LargeImage)
	}

	history, err := redaction.History(processed)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(history))
	}
	entry := history[0]
	if entry.User == nil || *entry.User != "reviewer" {
		t.Fatalf("unexpected audit user %v", entry.User)
	}
	if entry.OriginalSize != int64(len("pixels:P100.svs")) || entry.RedactedSize != int64(len("redacted:P100.svs")) {
		t.Fatalf("unexpected sizes %d/%d", entry.OriginalSize, entry.RedactedSize)
	}
	if entry.Details["mimetype"] != "image/tiff" || entry.Version == "" || entry.Time == "" {
		t.Fatalf("incomplete audit entry %#v", entry)
	}
	if len(entry.PreviousExports) != 0 {
		t.Fatalf("expected no previous exports, got %v", entry.PreviousExports)
	}

	archiveFolder := findChildFolder(t, f.store, f.roles.Folder("original"), "T1")
	archived, err := f.store.ChildItems(ctx, archiveFolder, store.ItemQuery{})
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected one archived copy, got %d err=%v", len(archived), err)
	}
	orig := archived[0]
	if orig.CreatorID != item.CreatorID {
		t.Fatalf("archive creator %q, want %q", orig.CreatorID, item.CreatorID)
	}
	marker := orig.Meta.Map(lifecycle.MetaProcessed)
	if marker["itemId"] != item.ID || marker["user"] != "reviewer" {
		t.Fatalf("unexpected processed marker %#v", marker)
	}
	origSource, err := f.store.SourceFile(ctx, orig)
	if err != nil || origSource == nil {
		t.Fatalf("archived source: %v", err)
	}
	if data, _ := os.ReadFile(f.store.FilePath(origSource)); string(data) != "pixels:P100.svs" {
		t.Fatalf("archive should hold original bytes, got %q", data)
	}

	calls := f.codec.Calls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0], item.Meta.Map(lifecycle.MetaRedactList)) {
		t.Fatalf("codec called with %v", calls)
	}
	scratch, _ := os.ReadDir(f.cfg.Paths.ScratchDir)
	if len(scratch) != 0 {
		t.Fatalf("expected scratch dir cleaned, found %d entries", len(scratch))
	}
}

func TestProcessItemAppendsHistoryAndFoldsExports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prior := map[string]any{"user": "earlier", "time": "2020-01-01T00:00:00Z"}
	exported := []any{map[string]any{"time": "2020-02-01T00:00:00Z"}}
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("quarantine"), "S1.svs", store.Metadata{
		lifecycle.MetaRedacted:   []any{prior},
		lifecycle.MetaExported:   exported,
		lifecycle.MetaQuarantine: map[string]any{"originalFolderId": "gone"},
	})

	processed, err := f.pipeline.ProcessItem(ctx, item, "")
	if err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}
	history := processed.Meta.List(lifecycle.MetaRedacted)
	if len(history) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(history))
	}
	if !reflect.DeepEqual(history[0], prior) {
		t.Fatalf("prior entry modified: %#v", history[0])
	}
	latest, ok := history[1].(map[string]any)
	if !ok {
		t.Fatalf("unexpected entry type %T", history[1])
	}
	if latest["user"] != nil {
		t.Fatalf("expected null user, got %v", latest["user"])
	}
	previous, _ := latest["previousExports"].(map[string]any)
	if !reflect.DeepEqual(previous[lifecycle.MetaExported], exported) {
		t.Fatalf("expected export history folded, got %#v", previous)
	}
	for _, key := range append([]string{lifecycle.MetaQuarantine}, lifecycle.ExportHistoryKeys...) {
		if processed.Meta.Has(key) {
			t.Fatalf("expected %s cleared", key)
		}
	}
	if processed.FolderID != f.roles.Folder("processed").ID {
		t.Fatalf("expected item in processed root, got folder %s", processed.FolderID)
	}
}

func TestProcessItemCodecFailureLeavesItemUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "bad.svs", nil)
	f.codec.Err = errors.New("unsupported format")

	_, err := f.pipeline.ProcessItem(ctx, item, "reviewer")
	if !errors.Is(err, services.ErrRedaction) {
		t.Fatalf("expected redaction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected codec message in error, got %v", err)
	}
	after := testsupport.MustLoadItem(t, f.store, item.ID)
	if after.FolderID != item.FolderID || !reflect.DeepEqual(after.Meta, item.Meta) || !after.LargeImage {
		t.Fatalf("item mutated after codec failure: %#v", after)
	}
	if source, _ := f.store.SourceFile(ctx, after); source == nil {
		t.Fatal("expected source file to survive codec failure")
	}
	archived, err := f.store.ChildItems(ctx, f.roles.Folder("original"), store.ItemQuery{})
	if err != nil || len(archived) != 0 {
		t.Fatalf("expected no archive copy, got %d err=%v", len(archived), err)
	}
}

func TestProcessItemRequiresArchiveFolders(t *testing.T) {
	f := newFixture(t)
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "a.svs", nil)
	f.cfg.Folders.Original = ""

	if _, err := f.pipeline.ProcessItem(context.Background(), item, "admin"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(f.codec.Calls()) != 0 {
		t.Fatal("codec must not run without archive folders")
	}
}

func TestProcessItemNamesExtensionlessItems(t *testing.T) {
	f := newFixture(t)
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "slide", nil)

	processed, err := f.pipeline.ProcessItem(context.Background(), item, "admin")
	if err != nil {
		t.Fatalf("ProcessItem: %v", err)
	}
	if processed.Name != "slide.tiff" {
		t.Fatalf("expected extension from redacted file, got %q", processed.Name)
	}
}

func TestProcessItemThumbnailHandling(t *testing.T) {
	geometry := map[string]any{
		"area": map[string]any{"_wsi": map[string]any{"geojson": map[string]any{"type": "FeatureCollection"}}},
	}
	tests := []struct {
		name       string
		redactList any
		wantThumbs int
	}{
		{name: "standard list keeps thumbnails", redactList: redactspec.Standard("X1", "X1.svs"), wantThumbs: 1},
		{name: "area geometry removes thumbnails", redactList: geometry, wantThumbs: 0},
		{name: "malformed list removes thumbnails", redactList: map[string]any{"images": "bogus"}, wantThumbs: 0},
		{name: "null area removes thumbnails", redactList: map[string]any{"area": nil}, wantThumbs: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "X1.svs", store.Metadata{
				lifecycle.MetaRedactList: tc.redactList,
			})
			if _, err := f.store.UploadThumbnail(ctx, strings.NewReader("thumb"), 5, "thumb.png", item, "image/png"); err != nil {
				t.Fatalf("UploadThumbnail: %v", err)
			}
			processed, err := f.pipeline.ProcessItem(ctx, item, "admin")
			if err != nil {
				t.Fatalf("ProcessItem: %v", err)
			}
			thumbs, err := f.store.ItemFiles(ctx, processed, store.FileThumbnail)
			if err != nil {
				t.Fatalf("ItemFiles: %v", err)
			}
			if len(thumbs) != tc.wantThumbs {
				t.Fatalf("expected %d thumbnails, got %d", tc.wantThumbs, len(thumbs))
			}
		})
	}
}

type stubExecutor struct {
	binary string
	args   []string
	write  map[string]string
	out    string
	err    error
}

func (s *stubExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	s.binary = binary
	s.args = args
	if s.err != nil {
		return nil, s.err
	}
	outDir := args[len(args)-1]
	for name, body := range s.write {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	return []byte(s.out), nil
}

func TestCommandCodecRunsTool(t *testing.T) {
	exec := &stubExecutor{
		write: map[string]string{"out.tiff": "redacted"},
		out:   `{"mimetype": "image/tiff", "images": {"label": 1}}`,
	}
	codec, err := redaction.NewCommandCodec("wsi-redact", 30, redaction.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandCodec: %v", err)
	}
	scratch := t.TempDir()
	list := map[string]any{"images": map[string]any{"macro": map[string]any{"value": "redact"}}}

	path, info, err := codec.Redact(context.Background(), redaction.Source{Path: "/data/a.svs"}, list, scratch)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if exec.binary != "wsi-redact" || exec.args[0] != "/data/a.svs" {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
	listData, err := os.ReadFile(exec.args[1])
	if err != nil || !strings.Contains(string(listData), `"macro"`) {
		t.Fatalf("redact list not written: %q err=%v", listData, err)
	}
	if filepath.Base(path) != "out.tiff" || info.MimeType() != "image/tiff" {
		t.Fatalf("unexpected result path=%s info=%v", path, info)
	}
}

func TestCommandCodecRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name string
		exec *stubExecutor
	}{
		{name: "tool failure", exec: &stubExecutor{err: errors.New("exit status 2")}},
		{name: "no mimetype", exec: &stubExecutor{write: map[string]string{"a.tiff": "x"}, out: `{}`}},
		{name: "not json", exec: &stubExecutor{write: map[string]string{"a.tiff": "x"}, out: `ok`}},
		{name: "two outputs", exec: &stubExecutor{write: map[string]string{"a.tiff": "x", "b.tiff": "y"}, out: `{"mimetype": "image/tiff"}`}},
		{name: "missing path", exec: &stubExecutor{out: `{"mimetype": "image/tiff", "path": "nope.tiff"}`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			codec, err := redaction.NewCommandCodec("wsi-redact", 0, redaction.WithExecutor(tc.exec))
			if err != nil {
				t.Fatalf("NewCommandCodec: %v", err)
			}
			if _, _, err := codec.Redact(context.Background(), redaction.Source{Path: "a.svs"}, nil, t.TempDir()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewCommandCodecRequiresCommand(t *testing.T) {
	if _, err := redaction.NewCommandCodec("  ", 10); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func findChildFolder(t *testing.T, st *store.Store, parent *store.Folder, name string) *store.Folder {
	t.Helper()
	children, err := st.ChildFolders(context.Background(), parent)
	if err != nil {
		t.Fatalf("ChildFolders: %v", err)
	}
	for _, child := range children {
		if child.Name == name {
			return child
		}
	}
	t.Fatalf("folder %s not found under %s", name, parent.Name)
	return nil
}
