package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	DataDir      string `yaml:"data_dir"`
	RegistryPath string `yaml:"registry_path"`
	ScriptsDir   string `yaml:"scripts_dir"`
}

type ProviderConfig struct {
	ID      string `yaml:"id"`
	API     string `yaml:"api"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type WebhookConfig struct {
	// BaseURL is the automation host that webhook-platform paths are
	// resolved against (e.g. a local n8n instance).
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type LedgerConfig struct {
	// Driver is "sqlite" (default, stored in data_dir) or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CacheConfig struct {
	// RedisAddr enables the classifier result cache when set.
	RedisAddr string `yaml:"redis_addr"`
	TTL       string `yaml:"ttl"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics when set (e.g. ":9090").
	Addr string `yaml:"addr"`
}

const (
	defaultWebhookBaseURL = "http://localhost:5678"
	defaultWebhookTimeout = 30 * time.Second
	defaultCacheTTL       = 10 * time.Minute
)

// RequestTimeout returns the outbound dispatch timeout.
func (w WebhookConfig) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(w.Timeout); err == nil && d > 0 {
		return d
	}
	return defaultWebhookTimeout
}

// CacheTTL returns how long classifier results stay cached.
func (c CacheConfig) CacheTTL() time.Duration {
	if d, err := time.ParseDuration(c.TTL); err == nil && d > 0 {
		return d
	}
	return defaultCacheTTL
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandSecrets(cfg *Config) {
	cfg.Provider.BaseURL = expandEnv(cfg.Provider.BaseURL)
	cfg.Provider.APIKey = expandEnv(cfg.Provider.APIKey)
	cfg.Webhook.BaseURL = expandEnv(cfg.Webhook.BaseURL)
	cfg.Ledger.DSN = expandEnv(cfg.Ledger.DSN)
	cfg.Cache.RedisAddr = expandEnv(cfg.Cache.RedisAddr)
}

func applyDefaults(cfg *Config) {
	if cfg.Webhook.BaseURL == "" {
		cfg.Webhook.BaseURL = defaultWebhookBaseURL
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = "config/automations.yaml"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	if cfg.Provider.ID == "" {
		cfg.Provider.ID = "openai"
	}
}

// Load reads and parses the config file at path. A missing file yields
// a default config so the CLI runs without any setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandSecrets(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}
