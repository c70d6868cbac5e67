package config

const (
	defaultConfigPath         = "~/.config/vaultkeeper/config.toml"
	defaultStateDir           = "~/.local/share/vaultkeeper"
	defaultLogDir             = "~/.local/share/vaultkeeper/logs"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultRemoteBaseURL      = "https://www.bungie.net/Platform"
	defaultMembershipType     = 3
	defaultRemoteTimeout      = 20
	defaultManifestPath       = "~/.local/share/vaultkeeper/manifest.db"
	defaultPollInterval       = 30
	defaultErrorRetryInterval = 10
	defaultMaxBackoff         = 300
	defaultMaxHopsPerSession  = 64
	defaultMaxMovesPerSession = 32
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultTelemetryEndpoint  = "localhost:4318"
	defaultServiceName        = "vaultkeeper"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Remote: Remote{
			BaseURL:        defaultRemoteBaseURL,
			MembershipType: defaultMembershipType,
			TimeoutSeconds: defaultRemoteTimeout,
		},
		Manifest: Manifest{
			Path: defaultManifestPath,
		},
		Sync: Sync{
			PollInterval:          defaultPollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			MaxBackoff:            defaultMaxBackoff,
			RefreshAfterOperation: true,
			SnapshotCache:         true,
		},
		Transfer: Transfer{
			MaxHopsPerSession:  defaultMaxHopsPerSession,
			MaxMovesPerSession: defaultMaxMovesPerSession,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			Endpoint:    defaultTelemetryEndpoint,
			ServiceName: defaultServiceName,
		},
	}
}
