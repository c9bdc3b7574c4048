package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"wsideid/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "wsideid", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.ImportDir != filepath.Join(tempHome, "wsi", "import") {
		t.Fatalf("unexpected import dir: %q", cfg.Paths.ImportDir)
	}
	if cfg.Remote.SFTPMode != config.SFTPModeLocal {
		t.Fatalf("expected local transfer mode by default, got %q", cfg.Remote.SFTPMode)
	}
	if cfg.Import.FolderNameField != "TokenID" {
		t.Fatalf("unexpected folder name field: %q", cfg.Import.FolderNameField)
	}
	if cfg.Workflow.ActionTimeoutSeconds != 86400 {
		t.Fatalf("expected day-long action timeout, got %d", cfg.Workflow.ActionTimeoutSeconds)
	}
	if !cfg.ExportsLocal() || cfg.ExportsRemote() {
		t.Fatal("expected local-only exports by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("WSIDEID_REMOTE_PASSWORD", "from-env")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":   "~/custom/data",
			"import_dir": "~/incoming",
		},
		"folders": map[string]any{
			"ingest":     "f-ingest",
			"quarantine": "f-quarantine",
		},
		"remote": map[string]any{
			"sftp_mode": "Both",
			"host":      "s3.example.org",
			"path":      "/deid/exports/",
			"user":      "svc",
		},
		"import": map[string]any{
			"text_association_columns": []string{" PatientID ", ""},
			"image_extensions":         []string{"SVS", ".svs", "ndpi"},
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected to load %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "custom", "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Remote.SFTPMode != config.SFTPModeBoth {
		t.Fatalf("expected normalized sftp mode, got %q", cfg.Remote.SFTPMode)
	}
	if cfg.Remote.Path != "deid/exports" {
		t.Fatalf("expected trimmed remote path, got %q", cfg.Remote.Path)
	}
	if cfg.Remote.Password != "from-env" {
		t.Fatalf("expected password from env, got %q", cfg.Remote.Password)
	}
	if got := strings.Join(cfg.Import.TextAssociationColumns, ","); got != "PatientID" {
		t.Fatalf("unexpected association columns: %q", got)
	}
	if got := strings.Join(cfg.Import.ImageExtensions, ","); got != ".svs,.ndpi" {
		t.Fatalf("unexpected extensions: %q", got)
	}
	if cfg.RoleBindings()["quarantine"] != "f-quarantine" {
		t.Fatalf("unexpected role bindings: %#v", cfg.RoleBindings())
	}
}

func TestSaveRoundTripsRoleBindings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	if err := cfg.SetRoleBinding("finished", "f-finished"); err != nil {
		t.Fatalf("SetRoleBinding: %v", err)
	}
	if err := cfg.SetRoleBinding("bogus", "x"); err == nil {
		t.Fatal("expected unknown role to fail")
	}

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || loaded.Folders.Finished != "f-finished" {
		t.Fatalf("expected finished binding to round-trip, got %#v", loaded.Folders)
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if !cfg.Import.OCROnImport {
		t.Fatal("expected sample config to enable OCR on import")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown sftp mode",
			mutate:  func(c *config.Config) { c.Remote.SFTPMode = "ftp" },
			wantErr: "remote.sftp_mode",
		},
		{
			name:    "remote without host",
			mutate:  func(c *config.Config) { c.Remote.SFTPMode = config.SFTPModeRemote; c.Remote.Path = "bucket" },
			wantErr: "remote.host",
		},
		{
			name:    "remote without path",
			mutate:  func(c *config.Config) { c.Remote.SFTPMode = config.SFTPModeBoth; c.Remote.Host = "h" },
			wantErr: "remote.path",
		},
		{
			name: "duplicate role binding",
			mutate: func(c *config.Config) {
				c.Folders.Ingest = "same"
				c.Folders.Finished = "same"
			},
			wantErr: "must not share",
		},
		{
			name:    "non-positive action timeout",
			mutate:  func(c *config.Config) { c.Workflow.ActionTimeoutSeconds = -1 },
			wantErr: "workflow.action_timeout_seconds",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
