package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("remote.api_key is required. Set VAULTKEEPER_API_KEY env var or edit %s (create with 'vaultkeeper config init')", defaultPath)
	}
	if c.Remote.MembershipID == "" {
		return errors.New("remote.membership_id is required (or set VAULTKEEPER_MEMBERSHIP_ID)")
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url must be an absolute URL, got %q", c.Remote.BaseURL)
	}
	if c.Remote.MembershipType <= 0 {
		return errors.New("remote.membership_type must be positive")
	}
	if c.Remote.TimeoutSeconds < 0 {
		return errors.New("remote.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateSync() error {
	return ensurePositiveMap(map[string]int{
		"sync.poll_interval":        c.Sync.PollInterval,
		"sync.error_retry_interval": c.Sync.ErrorRetryInterval,
		"sync.max_backoff":          c.Sync.MaxBackoff,
	})
}

func (c *Config) validateTransfer() error {
	if err := ensurePositiveMap(map[string]int{
		"transfer.max_hops_per_session":  c.Transfer.MaxHopsPerSession,
		"transfer.max_moves_per_session": c.Transfer.MaxMovesPerSession,
	}); err != nil {
		return err
	}
	if c.Transfer.MaxHopsPerSession < c.Transfer.MaxMovesPerSession {
		return errors.New("transfer.max_hops_per_session must be at least transfer.max_moves_per_session")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", strings.TrimSpace(key))
		}
	}
	return nil
}
