package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Transfer modes for exports.
const (
	SFTPModeLocal  = "local"
	SFTPModeRemote = "remote"
	SFTPModeBoth   = "both"
)

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	ImportDir  string `toml:"import_dir"`
	ExportDir  string `toml:"export_dir"`
	ScratchDir string `toml:"scratch_dir"`
}

// Folders binds each workflow role to exactly one folder identity.
type Folders struct {
	Ingest     string `toml:"ingest"`
	Quarantine string `toml:"quarantine"`
	Processed  string `toml:"processed"`
	Rejected   string `toml:"rejected"`
	Original   string `toml:"original"`
	Finished   string `toml:"finished"`
	Unfiled    string `toml:"unfiled"`
	Reports    string `toml:"reports"`
}

// Remote describes the remote export destination. Path is "bucket" or
// "bucket/prefix".
type Remote struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Path     string `toml:"path"`
	UseSSL   bool   `toml:"use_ssl"`
	SFTPMode string `toml:"sftp_mode"`
}

// Import controls manifest handling during ingest.
type Import struct {
	OCROnImport            bool     `toml:"ocr_on_import"`
	TextAssociationColumns []string `toml:"text_association_columns"`
	FolderNameField        string   `toml:"folder_name_field"`
	ImageNameField         string   `toml:"image_name_field"`
	ImageExtensions        []string `toml:"image_extensions"`
}

// OCR configures the label text recognizer.
type OCR struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Redaction configures the external codec that rewrites image bytes.
type Redaction struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains timing for background work.
type Workflow struct {
	IngestPollInterval   int    `toml:"ingest_poll_interval"`
	ActionTimeoutSeconds int    `toml:"action_timeout_seconds"`
	MetricsBind          string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for wsideid.
//
// Configuration sections by subsystem:
//   - Paths: data, log, import, export, and scratch directories
//   - Folders: role to folder bindings
//   - Remote: S3-compatible export destination and transfer mode
//   - Import: manifest columns and OCR-on-import
//   - OCR / Redaction: external tools
//   - Workflow: polling and action timeouts
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Folders   Folders   `toml:"folders"`
	Remote    Remote    `toml:"remote"`
	Import    Import    `toml:"import"`
	OCR       OCR       `toml:"ocr"`
	Redaction Redaction `toml:"redaction"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wsideid/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("wsideid.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// Save writes the configuration as TOML, replacing any existing file.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories wsideid writes to. The export
// directory is created on a best-effort basis so ingest keeps working while an
// export share is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ScratchDir, c.AssetstoreDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ExportDir) != "" && c.ExportsLocal() {
		_ = os.MkdirAll(c.Paths.ExportDir, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite object store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "wsideid.db")
}

// AssetstoreDir returns the directory holding uploaded file bytes.
func (c *Config) AssetstoreDir() string {
	return filepath.Join(c.Paths.DataDir, "assetstore")
}

// LockPath returns the cross-process lock file for a named operation.
func (c *Config) LockPath(name string) string {
	return filepath.Join(c.Paths.DataDir, name+".lock")
}

// ExportsLocal reports whether exports are written to the export directory.
func (c *Config) ExportsLocal() bool {
	return c.Remote.SFTPMode == SFTPModeLocal || c.Remote.SFTPMode == SFTPModeBoth
}

// ExportsRemote reports whether exports are pushed to the remote destination.
func (c *Config) ExportsRemote() bool {
	return c.Remote.SFTPMode == SFTPModeRemote || c.Remote.SFTPMode == SFTPModeBoth
}

// RoleNames lists the bindable roles in display order.
func RoleNames() []string {
	return []string{"ingest", "quarantine", "processed", "rejected", "original", "finished", "unfiled", "reports"}
}

// RoleBindings returns the configured folder id per role. Unbound roles map to "".
func (c *Config) RoleBindings() map[string]string {
	return map[string]string{
		"ingest":     c.Folders.Ingest,
		"quarantine": c.Folders.Quarantine,
		"processed":  c.Folders.Processed,
		"rejected":   c.Folders.Rejected,
		"original":   c.Folders.Original,
		"finished":   c.Folders.Finished,
		"unfiled":    c.Folders.Unfiled,
		"reports":    c.Folders.Reports,
	}
}

// SetRoleBinding binds role to folderID.
func (c *Config) SetRoleBinding(role, folderID string) error {
	folderID = strings.TrimSpace(folderID)
	switch role {
	case "ingest":
		c.Folders.Ingest = folderID
	case "quarantine":
		c.Folders.Quarantine = folderID
	case "processed":
		c.Folders.Processed = folderID
	case "rejected":
		c.Folders.Rejected = folderID
	case "original":
		c.Folders.Original = folderID
	case "finished":
		c.Folders.Finished = folderID
	case "unfiled":
		c.Folders.Unfiled = folderID
	case "reports":
		c.Folders.Reports = folderID
	default:
		return fmt.Errorf("unknown folder role %q", role)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
