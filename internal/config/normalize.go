package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFolders()
	c.normalizeRemote()
	c.normalizeImport()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name   string
		value  *string
		defVal string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.scratch_dir", &c.Paths.ScratchDir, defaultScratchDir},
		{"paths.import_dir", &c.Paths.ImportDir, ""},
		{"paths.export_dir", &c.Paths.ExportDir, ""},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.defVal
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeFolders() {
	c.Folders.Ingest = strings.TrimSpace(c.Folders.Ingest)
	c.Folders.Quarantine = strings.TrimSpace(c.Folders.Quarantine)
	c.Folders.Processed = strings.TrimSpace(c.Folders.Processed)
	c.Folders.Rejected = strings.TrimSpace(c.Folders.Rejected)
	c.Folders.Original = strings.TrimSpace(c.Folders.Original)
	c.Folders.Finished = strings.TrimSpace(c.Folders.Finished)
	c.Folders.Unfiled = strings.TrimSpace(c.Folders.Unfiled)
	c.Folders.Reports = strings.TrimSpace(c.Folders.Reports)
}

func (c *Config) normalizeRemote() {
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)
	c.Remote.Path = strings.Trim(strings.TrimSpace(c.Remote.Path), "/")
	c.Remote.SFTPMode = strings.ToLower(strings.TrimSpace(c.Remote.SFTPMode))
	if c.Remote.SFTPMode == "" {
		c.Remote.SFTPMode = defaultSFTPMode
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = defaultRemotePort
	}
	if c.Remote.User == "" {
		if value, ok := os.LookupEnv("WSIDEID_REMOTE_USER"); ok {
			c.Remote.User = strings.TrimSpace(value)
		}
	}
	if c.Remote.Password == "" {
		if value, ok := os.LookupEnv("WSIDEID_REMOTE_PASSWORD"); ok {
			c.Remote.Password = value
		}
	}
}

func (c *Config) normalizeImport() {
	c.Import.FolderNameField = strings.TrimSpace(c.Import.FolderNameField)
	if c.Import.FolderNameField == "" {
		c.Import.FolderNameField = defaultFolderNameField
	}
	c.Import.ImageNameField = strings.TrimSpace(c.Import.ImageNameField)
	if c.Import.ImageNameField == "" {
		c.Import.ImageNameField = defaultImageNameField
	}

	columns := make([]string, 0, len(c.Import.TextAssociationColumns))
	for _, column := range c.Import.TextAssociationColumns {
		if column = strings.TrimSpace(column); column != "" {
			columns = append(columns, column)
		}
	}
	c.Import.TextAssociationColumns = columns

	if len(c.Import.ImageExtensions) == 0 {
		c.Import.ImageExtensions = defaultImageExtensions()
		return
	}
	exts := make([]string, 0, len(c.Import.ImageExtensions))
	seen := make(map[string]struct{}, len(c.Import.ImageExtensions))
	for _, ext := range c.Import.ImageExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Import.ImageExtensions = exts
}

func (c *Config) normalizeTools() {
	c.OCR.Command = strings.TrimSpace(c.OCR.Command)
	if c.OCR.TimeoutSeconds == 0 {
		c.OCR.TimeoutSeconds = defaultOCRTimeout
	}
	c.Redaction.Command = strings.TrimSpace(c.Redaction.Command)
	if c.Redaction.TimeoutSeconds == 0 {
		c.Redaction.TimeoutSeconds = defaultRedactionTimeout
	}
	if c.Workflow.ActionTimeoutSeconds == 0 {
		c.Workflow.ActionTimeoutSeconds = defaultActionTimeoutSeconds
	}
	c.Workflow.MetricsBind = strings.TrimSpace(c.Workflow.MetricsBind)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
