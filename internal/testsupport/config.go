package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"wsideid/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.ImportDir = filepath.Join(base, "import")
	cfgVal.Paths.ExportDir = filepath.Join(base, "export")
	cfgVal.Workflow.MetricsBind = ""

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	for _, dir := range []string{cfgVal.Paths.ImportDir, cfgVal.Paths.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithAssociationColumns sets the manifest columns used for OCR matching.
func WithAssociationColumns(columns ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.TextAssociationColumns = columns
	}
}

// WithOCROnImport toggles OCR association during ingest.
func WithOCROnImport(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.OCROnImport = enabled
	}
}

// WithSFTPMode sets the export transfer mode and a placeholder remote.
func WithSFTPMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.SFTPMode = mode
		if mode != config.SFTPModeLocal {
			b.cfg.Remote.Host = "remote.invalid"
			b.cfg.Remote.Path = "exports"
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.OCR.Command, b.cfg.Redaction.Command}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
