package openailm

import (
	"fmt"

	"plutus/pkg/config"
	"plutus/pkg/llm"
)

// OpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Factory builds clients for one OpenAI-compatible provider name.
type Factory struct {
	provider       string
	defaultBaseURL string
}

// Create builds one client per configured model. Multiple api_keys are
// assigned round-robin.
func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("%s: no api key configured", f.provider)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("%s: no models configured", f.provider)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = f.defaultBaseURL
	}

	clients := make([]llm.LLMClient, 0, len(cfg.Models))
	for i, model := range cfg.Models {
		client := NewClient(f.provider, cfg.APIKeys[i%len(cfg.APIKeys)], model, baseURL, cfg.Options)
		if sys != nil {
			client.SetDebug(sys.DebugChunks)
			if sys.InternalChannelBuffer > 0 {
				client.bufferSize = sys.InternalChannelBuffer
			}
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{provider: "openai"})
	llm.RegisterProvider("openrouter", &Factory{provider: "openrouter", defaultBaseURL: OpenRouterBaseURL})
}
