package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8765,
			RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
		},
		Auth: AuthConfig{Enabled: true, Expiry: 24 * time.Hour},
		Agent: AgentConfig{
			Name:        "Atlas",
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 1,
			MaxTurns:    32,
		},
		Tools:   ToolsConfig{Workers: 4, Timeout: time.Minute},
		Storage: StorageConfig{DataDir: "/tmp/atlas"},
		Secrets: SecretsConfig{Backend: "keyring", Service: "ai-agent", SSMPrefix: "/ai-agent"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_SERVER_PORT") {
		t.Fatalf("expected ATLAS_SERVER_PORT error, got: %v", err)
	}
}

func TestValidate_ModelRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.Model = " "
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_AGENT_MODEL is required") {
		t.Fatalf("expected ATLAS_AGENT_MODEL error, got: %v", err)
	}
}

func TestValidate_BaseURLMustBeAbsolute(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.BaseURL = "localhost:11434"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_AGENT_BASE_URL") {
		t.Fatalf("expected ATLAS_AGENT_BASE_URL error, got: %v", err)
	}
}

func TestValidate_TemperatureRange(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.Temperature = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("temperature 0 should be valid, got: %v", err)
	}
	cfg.Agent.Temperature = 2.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_AGENT_TEMPERATURE") {
		t.Fatalf("expected ATLAS_AGENT_TEMPERATURE error, got: %v", err)
	}
}

func TestValidate_SecretBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Secrets.Backend = "vault"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_SECRETS_BACKEND") {
		t.Fatalf("expected ATLAS_SECRETS_BACKEND error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Secrets.Backend = "ssm"
	cfg.Secrets.SSMPrefix = "ai-agent"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ATLAS_SECRETS_SSM_PREFIX") {
		t.Fatalf("expected ATLAS_SECRETS_SSM_PREFIX error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{
		"ATLAS_SERVER_PORT",
		"ATLAS_AGENT_MODEL",
		"ATLAS_AGENT_MAX_TURNS",
		"ATLAS_TOOLS_WORKERS",
		"ATLAS_TOOLS_TIMEOUT",
		"ATLAS_STORAGE_DATA_DIR",
		"ATLAS_SECRETS_BACKEND",
		"ATLAS_LOG_LEVEL",
	} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
