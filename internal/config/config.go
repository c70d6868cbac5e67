package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Remote contains the remote authority connection settings.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	AccessToken    string `toml:"access_token"`
	MembershipType int    `toml:"membership_type"`
	MembershipID   string `toml:"membership_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Manifest points at the item definition database.
type Manifest struct {
	Path string `toml:"path"`
}

// Sync contains snapshot polling behaviour. Intervals are in seconds.
type Sync struct {
	PollInterval          int  `toml:"poll_interval"`
	ErrorRetryInterval    int  `toml:"error_retry_interval"`
	MaxBackoff            int  `toml:"max_backoff"`
	RefreshAfterOperation bool `toml:"refresh_after_operation"`
	SnapshotCache         bool `toml:"snapshot_cache"`
}

// Transfer bounds the work one user action may perform.
type Transfer struct {
	MaxHopsPerSession  int `toml:"max_hops_per_session"`
	MaxMovesPerSession int `toml:"max_moves_per_session"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry contains OpenTelemetry export settings.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Config encapsulates all configuration values for vaultkeeper.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Remote: remote authority credentials and account
//   - Manifest: item definition database
//   - Sync: snapshot polling and cache
//   - Transfer: per-session hop and move limits
//   - Logging: log format and level
//   - Telemetry: optional trace export
type Config struct {
	Paths     Paths     `toml:"paths"`
	Remote    Remote    `toml:"remote"`
	Manifest  Manifest  `toml:"manifest"`
	Sync      Sync      `toml:"sync"`
	Transfer  Transfer  `toml:"transfer"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
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
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vaultkeeper.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath is the SQLite operation journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// SnapshotCachePath is where the last accepted snapshot is cached.
func (c *Config) SnapshotCachePath() string {
	return filepath.Join(c.Paths.StateDir, "snapshot.zst")
}

// SocketPath is the daemon's JSON-RPC Unix socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "vaultkeeper.sock")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vaultkeeper.lock")
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Sync.ErrorRetryInterval) * time.Second
}

func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Sync.MaxBackoff) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
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
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
