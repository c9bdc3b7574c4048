package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFolders(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

// validateFolders enforces that a folder holds at most one role.
func (c *Config) validateFolders() error {
	bindings := c.RoleBindings()
	owner := make(map[string]string, len(bindings))
	for _, role := range RoleNames() {
		id := bindings[role]
		if id == "" {
			continue
		}
		if other, ok := owner[id]; ok {
			return fmt.Errorf("folders.%s and folders.%s must not share folder %q", other, role, id)
		}
		owner[id] = role
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.SFTPMode {
	case SFTPModeLocal, SFTPModeRemote, SFTPModeBoth:
	default:
		return fmt.Errorf("remote.sftp_mode must be one of local, remote, both (got %q)", c.Remote.SFTPMode)
	}
	if c.Remote.Port < 0 || c.Remote.Port > 65535 {
		return errors.New("remote.port must be between 0 and 65535")
	}
	if c.ExportsRemote() {
		if c.Remote.Host == "" {
			return errors.New("remote.host must be set when remote.sftp_mode is remote or both")
		}
		if c.Remote.Path == "" {
			return errors.New("remote.path must be set when remote.sftp_mode is remote or both")
		}
	}
	return nil
}

func (c *Config) validateImport() error {
	if c.Import.FolderNameField == "" {
		return errors.New("import.folder_name_field must be set")
	}
	if len(c.Import.ImageExtensions) == 0 {
		return errors.New("import.image_extensions must include at least one extension")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.IngestPollInterval < 0 {
		return errors.New("workflow.ingest_poll_interval must be >= 0")
	}
	if c.Workflow.ActionTimeoutSeconds <= 0 {
		return errors.New("workflow.action_timeout_seconds must be positive")
	}
	if c.OCR.TimeoutSeconds <= 0 {
		return errors.New("ocr.timeout_seconds must be positive")
	}
	if c.Redaction.TimeoutSeconds <= 0 {
		return errors.New("redaction.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be console, json, or auto (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
