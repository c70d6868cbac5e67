package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides holds secrets that may come from the environment instead of
// the config file. File values win; the environment only fills blanks.
type envOverrides struct {
	APIKey       string `env:"VAULTKEEPER_API_KEY"`
	AccessToken  string `env:"VAULTKEEPER_ACCESS_TOKEN"`
	MembershipID string `env:"VAULTKEEPER_MEMBERSHIP_ID"`
	OTelEndpoint string `env:"VAULTKEEPER_OTEL_ENDPOINT"`
	APIToken     string `env:"VAULTKEEPER_API_TOKEN"`
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	fill(&c.Remote.APIKey, overrides.APIKey)
	fill(&c.Remote.AccessToken, overrides.AccessToken)
	fill(&c.Remote.MembershipID, overrides.MembershipID)
	fill(&c.Paths.APIToken, overrides.APIToken)
	if value := strings.TrimSpace(overrides.OTelEndpoint); value != "" {
		c.Telemetry.Endpoint = value
	}
	return nil
}

func fill(dst *string, value string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = strings.TrimSpace(value)
	}
}
