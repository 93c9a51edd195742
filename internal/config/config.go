package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Transport    TransportConfig    `yaml:"transport"`
	Storage      StorageConfig      `yaml:"storage"`
	History      HistoryConfig      `yaml:"history"`
	Log          LogConfig          `yaml:"log"`
	Auth         AuthConfig         `yaml:"auth"`
	Invalidation InvalidationConfig `yaml:"invalidation"`
	Sandbox      SandboxConfig      `yaml:"sandbox"`
	MCP          MCPConfig          `yaml:"mcp"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the MCP surface is served: "http" or "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// StorageConfig selects the durable backend. Driver is "sqlite" or "file".
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Dir    string `yaml:"dir"`
}

type HistoryConfig struct {
	Retention int `yaml:"retention"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// APIKey maps the SHA-256 hex digest of a bearer token to an acting user.
type APIKey struct {
	User      string `yaml:"user"`
	KeySHA256 string `yaml:"key_sha256"`
}

type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

type InvalidationConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisChannel  string        `yaml:"redis_channel"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SandboxConfig bounds the in-memory sandbox sessions.
type SandboxConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TTL         time.Duration `yaml:"ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "folio.db",
			Dir:    "data",
		},
		History: HistoryConfig{
			Retention: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Invalidation: InvalidationConfig{
			RedisChannel: "folio:invalidate",
			Timeout:      5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Enabled:     true,
			TTL:         30 * time.Minute,
			MaxSessions: 256,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from an optional YAML file, an optional .env file
// and environment variables, in that order of increasing precedence.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("FOLIO_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	envFile := os.Getenv("FOLIO_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overwrites variables already set in the environment.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("invalid history retention %d", c.History.Retention)
	}
	if c.Sandbox.Enabled && c.Sandbox.MaxSessions <= 0 {
		return fmt.Errorf("invalid sandbox max sessions %d", c.Sandbox.MaxSessions)
	}
	for i, key := range c.Auth.APIKeys {
		if key.User == "" || len(key.KeySHA256) != 64 {
			return fmt.Errorf("invalid api key %d: user and a sha256 hex digest are required", i)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("FOLIO_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("FOLIO_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if mode := os.Getenv("FOLIO_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if driver := os.Getenv("FOLIO_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("FOLIO_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if dir := os.Getenv("FOLIO_DATA_DIR"); dir != "" {
		cfg.Storage.Dir = dir
	}
	if err := envInt("FOLIO_HISTORY_RETENTION", &cfg.History.Retention); err != nil {
		return err
	}
	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if path := os.Getenv("FOLIO_LOG_PATH"); path != "" {
		cfg.Log.Path = path
	}
	if keys := os.Getenv("FOLIO_API_KEYS"); keys != "" {
		parsed, err := parseAPIKeys(keys)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = parsed
	}
	if url := os.Getenv("FOLIO_WEBHOOK_URL"); url != "" {
		cfg.Invalidation.WebhookURL = url
	}
	if secret := os.Getenv("FOLIO_WEBHOOK_SECRET"); secret != "" {
		cfg.Invalidation.WebhookSecret = secret
	}
	if addr := os.Getenv("FOLIO_REDIS_ADDR"); addr != "" {
		cfg.Invalidation.RedisAddr = addr
	}
	if password := os.Getenv("FOLIO_REDIS_PASSWORD"); password != "" {
		cfg.Invalidation.RedisPassword = password
	}
	if channel := os.Getenv("FOLIO_REDIS_CHANNEL"); channel != "" {
		cfg.Invalidation.RedisChannel = channel
	}
	if err := envDuration("FOLIO_INVALIDATION_TIMEOUT", &cfg.Invalidation.Timeout); err != nil {
		return err
	}
	if err := envBool("FOLIO_SANDBOX_ENABLED", &cfg.Sandbox.Enabled); err != nil {
		return err
	}
	if err := envDuration("FOLIO_SANDBOX_TTL", &cfg.Sandbox.TTL); err != nil {
		return err
	}
	if err := envInt("FOLIO_SANDBOX_MAX_SESSIONS", &cfg.Sandbox.MaxSessions); err != nil {
		return err
	}
	return envBool("FOLIO_MCP_ENABLED", &cfg.MCP.Enabled)
}

// parseAPIKeys reads "user:sha256hex" pairs separated by commas.
func parseAPIKeys(s string) ([]APIKey, error) {
	var keys []APIKey
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, digest, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid FOLIO_API_KEYS entry %q", pair)
		}
		keys = append(keys, APIKey{User: user, KeySHA256: strings.ToLower(digest)})
	}
	return keys, nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = b
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
