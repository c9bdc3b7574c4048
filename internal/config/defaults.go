package config

const (
	defaultDataDir              = "~/.local/share/wsideid/data"
	defaultLogDir               = "~/.local/share/wsideid/logs"
	defaultScratchDir           = "~/.local/share/wsideid/scratch"
	defaultImportDir            = "~/wsi/import"
	defaultExportDir            = "~/wsi/export"
	defaultRemotePort           = 9000
	defaultSFTPMode             = SFTPModeLocal
	defaultFolderNameField      = "TokenID"
	defaultImageNameField       = "ImageID"
	defaultOCRCommand           = "tesseract"
	defaultOCRTimeout           = 300
	defaultRedactionCommand     = "wsi-redact"
	defaultRedactionTimeout     = 3600
	defaultIngestPollInterval   = 0
	defaultActionTimeoutSeconds = 86400
	defaultMetricsBind          = "127.0.0.1:9464"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

func defaultImageExtensions() []string {
	return []string{".svs", ".ndpi", ".tif", ".tiff", ".scn", ".czi", ".mrxs", ".bif", ".vsi", ".isyntax"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			ImportDir:  defaultImportDir,
			ExportDir:  defaultExportDir,
			ScratchDir: defaultScratchDir,
		},
		Remote: Remote{
			Port:     defaultRemotePort,
			SFTPMode: defaultSFTPMode,
		},
		Import: Import{
			FolderNameField: defaultFolderNameField,
			ImageNameField:  defaultImageNameField,
			ImageExtensions: defaultImageExtensions(),
		},
		OCR: OCR{
			Command:        defaultOCRCommand,
			TimeoutSeconds: defaultOCRTimeout,
		},
		Redaction: Redaction{
			Command:        defaultRedactionCommand,
			TimeoutSeconds: defaultRedactionTimeout,
		},
		Workflow: Workflow{
			IngestPollInterval:   defaultIngestPollInterval,
			ActionTimeoutSeconds: defaultActionTimeoutSeconds,
			MetricsBind:          defaultMetricsBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
