package config

import (
	"os"
	"testing"
	"time"
)

const testYAML = `
provider:
  id: openai
  api: openai-completions
  api_key: "${OPENAI_API_KEY}"
  model: gpt-4o-mini

webhook:
  base_url: "${AUTOMATION_HOST_URL}"
  timeout: 45s

ledger:
  driver: postgres
  dsn: "${LEDGER_DSN}"

cache:
  redis_addr: "localhost:6379"
  ttl: 5m

metrics:
  addr: ":9090"

data_dir: /var/lib/relay
registry_path: config/automations.yaml
scripts_dir: ./scripts
`

func TestParseConfig(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.ID != "openai" {
		t.Errorf("provider id = %q", cfg.Provider.ID)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider model = %q", cfg.Provider.Model)
	}
	if cfg.Ledger.Driver != "postgres" {
		t.Errorf("ledger driver = %q", cfg.Ledger.Driver)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Cache.RedisAddr)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q", cfg.Metrics.Addr)
	}
	if cfg.DataDir != "/var/lib/relay" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("AUTOMATION_HOST_URL", "http://n8n.internal:5678")
	t.Setenv("LEDGER_DSN", "postgres://relay@db/relay")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-test-123" {
		t.Errorf("api_key = %q", cfg.Provider.APIKey)
	}
	if cfg.Webhook.BaseURL != "http://n8n.internal:5678" {
		t.Errorf("base_url = %q", cfg.Webhook.BaseURL)
	}
	if cfg.Ledger.DSN != "postgres://relay@db/relay" {
		t.Errorf("dsn = %q", cfg.Ledger.DSN)
	}
}

func TestEnvSubstitutionPreservesUnsetVars(t *testing.T) {
	//nolint:errcheck // test cleanup of env var
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("AUTOMATION_HOST_URL", "http://localhost:5678")
	t.Setenv("LEDGER_DSN", "x")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "${OPENAI_API_KEY}" {
		t.Errorf("unset env var should be preserved, got %q", cfg.Provider.APIKey)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webhook.BaseURL != defaultWebhookBaseURL {
		t.Errorf("base_url = %q", cfg.Webhook.BaseURL)
	}
	if cfg.Webhook.RequestTimeout() != 30*time.Second {
		t.Errorf("timeout = %s", cfg.Webhook.RequestTimeout())
	}
	if cfg.Ledger.Driver != "sqlite" {
		t.Errorf("ledger driver = %q", cfg.Ledger.Driver)
	}
	if cfg.DataDir != "data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.RegistryPath != "config/automations.yaml" {
		t.Errorf("registry_path = %q", cfg.RegistryPath)
	}
	if cfg.ScriptsDir != "scripts" {
		t.Errorf("scripts_dir = %q", cfg.ScriptsDir)
	}
}

func TestRequestTimeoutParsed(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webhook.RequestTimeout() != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", cfg.Webhook.RequestTimeout())
	}
}

func TestRequestTimeoutInvalidFallsBack(t *testing.T) {
	w := WebhookConfig{Timeout: "soon"}
	if w.RequestTimeout() != defaultWebhookTimeout {
		t.Errorf("timeout = %s", w.RequestTimeout())
	}
}

func TestCacheTTL(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.CacheTTL() != 5*time.Minute {
		t.Errorf("ttl = %s", cfg.Cache.CacheTTL())
	}
	empty := CacheConfig{}
	if empty.CacheTTL() != defaultCacheTTL {
		t.Errorf("default ttl = %s", empty.CacheTTL())
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("{{invalid yaml"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_VAR}", "hello"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${NONEXISTENT}", "${NONEXISTENT}"},
		{"no vars here", "no vars here"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandEnv(tt.input)
		if got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	if err := os.WriteFile(path, []byte(testYAML), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webhook.BaseURL != defaultWebhookBaseURL {
		t.Errorf("base_url = %q", cfg.Webhook.BaseURL)
	}
}
