package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read by Load.
	EnvPrefix = "ATLAS_"

	// EnvFile is the optional settings file inside the data directory.
	EnvFile = "atlas.env"

	appDir = "ai-agent"
)

type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Agent   AgentConfig
	Tools   ToolsConfig
	Storage StorageConfig
	Secrets SecretsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	RateLimit   RateLimitConfig
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type AuthConfig struct {
	Enabled bool
	Expiry  time.Duration
}

type AgentConfig struct {
	Name         string
	Model        string
	BaseURL      string
	Temperature  float64
	MaxTurns     int
	TurnTimeout  time.Duration
	SystemPrompt string
}

type ToolsConfig struct {
	Workers int
	Timeout time.Duration
	Allowed []string
	Denied  []string
}

type StorageConfig struct {
	DataDir string
}

type SecretsConfig struct {
	Backend    string
	Service    string
	Passphrase string
	SSMPrefix  string
}

type LogConfig struct {
	Level  string
	Format string
}

// Options adjust Load. Overrides are applied last and use the dotted keys
// ("server.port", "agent.model").
type Options struct {
	DataDir   string
	Overrides map[string]any
}

// DefaultDataDir is <user config dir>/ai-agent, or ./.ai-agent when the user
// config dir cannot be determined.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+appDir)
	}
	return filepath.Join(dir, appDir)
}

// envKey maps ATLAS_AGENT_MAX_TURNS to agent.max.turns.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "_", "."))
}

func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = os.Getenv(EnvPrefix + "STORAGE_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	// Settings files are optional; a missing file is not an error.
	for _, path := range []string{filepath.Join(dataDir, EnvFile), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), dotenv.ParserEnv(EnvPrefix, ".", envKey)); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// Environment variables override the files.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("applying override %s: %w", key, err)
		}
	}

	// ./.env may point somewhere else; the data dir's own file is not re-read.
	if opts.DataDir == "" && k.String("storage.data.dir") != "" {
		dataDir = k.String("storage.data.dir")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: list(k, "server.cors.origins"),
			RateLimit: RateLimitConfig{
				RPS:   k.Float64("server.ratelimit.rps"),
				Burst: k.Int("server.ratelimit.burst"),
			},
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Agent: AgentConfig{
			Name:         k.String("agent.name"),
			Model:        k.String("agent.model"),
			BaseURL:      k.String("agent.base.url"),
			Temperature:  1.0,
			MaxTurns:     k.Int("agent.max.turns"),
			SystemPrompt: k.String("agent.system.prompt"),
		},
		Tools: ToolsConfig{
			Workers: k.Int("tools.workers"),
			Allowed: list(k, "tools.allowed"),
			Denied:  list(k, "tools.denied"),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Secrets: SecretsConfig{
			Backend:    strings.ToLower(k.String("secrets.backend")),
			Service:    k.String("secrets.service"),
			Passphrase: k.String("secrets.passphrase"),
			SSMPrefix:  k.String("secrets.ssm.prefix"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(k.String("log.level")),
			Format: strings.ToLower(k.String("log.format")),
		},
	}

	// Explicit zero values are valid for these, so presence decides.
	if k.Exists("auth.enabled") {
		cfg.Auth.Enabled = k.Bool("auth.enabled")
	}
	if k.Exists("agent.temperature") {
		cfg.Agent.Temperature = k.Float64("agent.temperature")
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.RateLimit.RPS == 0 {
		cfg.Server.RateLimit.RPS = 10
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "Atlas"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "gpt-4o-mini"
	}
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = 32
	}
	if cfg.Tools.Workers == 0 {
		cfg.Tools.Workers = 4
	}
	if cfg.Secrets.Backend == "" {
		cfg.Secrets.Backend = "keyring"
	}
	if cfg.Secrets.Service == "" {
		cfg.Secrets.Service = appDir
	}
	if cfg.Secrets.SSMPrefix == "" {
		cfg.Secrets.SSMPrefix = "/" + appDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	var err error
	if cfg.Auth.Expiry, err = duration(k, "auth.expiry", "24h"); err != nil {
		return nil, err
	}
	if cfg.Agent.TurnTimeout, err = duration(k, "agent.turn.timeout", "0s"); err != nil {
		return nil, err
	}
	if cfg.Tools.Timeout, err = duration(k, "tools.timeout", "60s"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func duration(k *koanf.Koanf, key, def string) (time.Duration, error) {
	if v, ok := k.Get(key).(time.Duration); ok {
		return v, nil
	}
	s := k.String(key)
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

// list reads a comma separated string or a string slice.
func list(k *koanf.Koanf, key string) []string {
	var raw []string
	switch v := k.Get(key).(type) {
	case nil:
		return nil
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = strings.Split(fmt.Sprint(v), ",")
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
