package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
)

var (
	secretBackends = []string{"keyring", "file", "ssm"}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"text", "json"}
)

// Validate checks Config for problems that would break a session.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("ATLAS_SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit.RPS <= 0 {
		errs = append(errs, "ATLAS_SERVER_RATELIMIT_RPS must be positive")
	}
	if c.Server.RateLimit.Burst < 1 {
		errs = append(errs, "ATLAS_SERVER_RATELIMIT_BURST must be at least 1")
	}
	if c.Auth.Expiry <= 0 {
		errs = append(errs, "ATLAS_AUTH_EXPIRY must be positive")
	}

	if strings.TrimSpace(c.Agent.Model) == "" {
		errs = append(errs, "ATLAS_AGENT_MODEL is required")
	}
	if u, err := url.Parse(c.Agent.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("ATLAS_AGENT_BASE_URL must be an absolute URL, got %q", c.Agent.BaseURL))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("ATLAS_AGENT_TEMPERATURE must be 0-2, got %g", c.Agent.Temperature))
	}
	if c.Agent.MaxTurns < 1 {
		errs = append(errs, "ATLAS_AGENT_MAX_TURNS must be at least 1")
	}
	if c.Agent.TurnTimeout < 0 {
		errs = append(errs, "ATLAS_AGENT_TURN_TIMEOUT must not be negative")
	}

	if c.Tools.Workers < 1 {
		errs = append(errs, "ATLAS_TOOLS_WORKERS must be at least 1")
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, "ATLAS_TOOLS_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, "ATLAS_STORAGE_DATA_DIR is required")
	}

	if !slices.Contains(secretBackends, c.Secrets.Backend) {
		errs = append(errs, fmt.Sprintf("ATLAS_SECRETS_BACKEND must be one of %v, got %q", secretBackends, c.Secrets.Backend))
	}
	if c.Secrets.Backend == "ssm" && !strings.HasPrefix(c.Secrets.SSMPrefix, "/") {
		errs = append(errs, "ATLAS_SECRETS_SSM_PREFIX must start with /")
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("ATLAS_LOG_LEVEL must be one of %v, got %q", logLevels, c.Log.Level))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Sprintf("ATLAS_LOG_FORMAT must be one of %v, got %q", logFormats, c.Log.Format))
	}

	// Warnings only
	if !c.Auth.Enabled && c.Server.Host != "127.0.0.1" && c.Server.Host != "localhost" {
		slog.Warn("auth is disabled on a non-loopback listener", "host", c.Server.Host)
	}
	if c.Secrets.Backend == "file" && c.Secrets.Passphrase == "" {
		slog.Warn("file secret backend has no passphrase configured, it will be prompted for")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
