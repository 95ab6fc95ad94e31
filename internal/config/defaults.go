package config

const (
	defaultBundleDir           = "~/.local/share/folio/bundles"
	defaultDBPath              = "~/.local/share/folio/catalog.db"
	defaultDictionaryPath      = "~/.local/share/folio/chapters.dict"
	defaultLogDir              = "~/.local/share/folio/logs"
	defaultReportLogName       = "runs.jsonl"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultRemoteTimeout       = 20
	defaultRemoteMaxRetries    = 4
	defaultRemoteInitialBackMS = 500
	defaultRemoteMaxBackMS     = 15000
	defaultRemoteRPS           = 4.0
	defaultRemoteUserAgent     = "Folio/dev"
	defaultCompressionLevel    = 19
	defaultIngestWorkers       = 4
	defaultCheckpointEvery     = 100
	defaultChapterAttempts     = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BundleDir:      defaultBundleDir,
			DBPath:         defaultDBPath,
			DictionaryPath: defaultDictionaryPath,
			LogDir:         defaultLogDir,
		},
		Remote: Remote{
			TimeoutSeconds:   defaultRemoteTimeout,
			MaxRetries:       defaultRemoteMaxRetries,
			InitialBackoffMS: defaultRemoteInitialBackMS,
			MaxBackoffMS:     defaultRemoteMaxBackMS,
			RequestsPerSec:   defaultRemoteRPS,
			UserAgent:        defaultRemoteUserAgent,
		},
		Envelope: Envelope{
			VerifyMAC: false,
		},
		Compression: Compression{
			Level: defaultCompressionLevel,
		},
		Ingest: Ingest{
			Workers:         defaultIngestWorkers,
			CheckpointEvery: defaultCheckpointEvery,
			ChapterAttempts: defaultChapterAttempts,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
