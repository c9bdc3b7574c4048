package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wsideid/internal/config"
	"wsideid/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("scratch", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a one byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("scratch", dir, ^uint64(0)); result.Passed || !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected failure with an impossible minimum, got: %#v", result)
	}
	if result := CheckFreeSpace("scratch", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckRoleFolders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustSetupRoles(t, st, cfg)
	cfg.Folders.Reports = ""
	cfg.Folders.Unfiled = "does-not-exist"

	results := CheckRoleFolders(context.Background(), cfg, st)
	if len(results) != len(config.RoleNames()) {
		t.Fatalf("expected one result per role, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected two failures, got %#v", failed)
	}
	for _, r := range failed {
		if r.Name != "Folder reports" && r.Name != "Folder unfiled" {
			t.Fatalf("unexpected failure %#v", r)
		}
	}
}

func TestCheckRemoteConfigurationError(t *testing.T) {
	result := CheckRemote(context.Background(), config.Remote{Path: "slides"})
	if result.Passed || !strings.Contains(result.Detail, "remote.host") {
		t.Fatalf("expected configuration failure, got %#v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("tesseract", "wsi-redact"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustSetupRoles(t, st, cfg)
	cfg.OCR.Command = "tesseract"
	cfg.Redaction.Command = "wsi-redact"

	results := RunAll(context.Background(), cfg, st)
	names := make(map[string]Result, len(results))
	for _, r := range results {
		names[r.Name] = r
	}
	for _, want := range []string{"Data directory", "Import directory", "Scratch directory", "Export directory", "OCR", "Redaction", "Folder ingest"} {
		r, ok := names[want]
		if !ok {
			t.Fatalf("missing check %q in %#v", want, results)
		}
		if !r.Passed {
			t.Errorf("check %q failed: %s", want, r.Detail)
		}
	}
	if _, ok := names["Remote export"]; ok {
		t.Fatal("remote check should be skipped in local mode")
	}
}

func TestRunAll_MissingRedactionToolFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.OCR.Command = ""
	cfg.Redaction.Command = "clearly-not-present-binary"

	var ocr, redact *Result
	results := RunAll(context.Background(), cfg, nil)
	for i := range results {
		switch results[i].Name {
		case "OCR":
			ocr = &results[i]
		case "Redaction":
			redact = &results[i]
		}
	}
	if ocr == nil || !ocr.Passed {
		t.Fatalf("unconfigured OCR is optional: %#v", ocr)
	}
	if redact == nil || redact.Passed {
		t.Fatalf("expected redaction tool failure: %#v", redact)
	}
}
