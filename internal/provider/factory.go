package provider

import "fmt"

const (
	APIOpenAI    = "openai-completions"
	APIAnthropic = "anthropic-messages"
)

// Config mirrors config.ProviderConfig to avoid circular imports.
type Config struct {
	ID      string
	BaseURL string
	APIKey  string
	API     string
	Model   string
}

// FromConfig creates a Provider from a config entry. The api field
// determines which wire format to use:
//   - "openai-completions"  -> OpenAI-compatible (OpenAI, Ollama, vLLM, etc.)
//   - "anthropic-messages"  -> Anthropic Messages API
func FromConfig(cfg Config) (Provider, error) {
	switch cfg.API {
	case APIOpenAI, "":
		return NewOpenAIProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case APIAnthropic:
		return NewAnthropicProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown api type %q for provider %q (supported: %s, %s)",
			cfg.API, cfg.ID, APIOpenAI, APIAnthropic)
	}
}
