package ollama

import (
	"log/slog"

	"plutus/pkg/config"
	"plutus/pkg/llm"
)

// OllamaFactory builds Ollama clients.
type OllamaFactory struct{}

// Create builds one client per model, defaulting the URL to
// system.ollama_default_url.
func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sys.OllamaDefaultURL
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, baseURL, cfg.Options)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
			continue
		}
		client.SetDebug(sys.DebugChunks)
		if sys.InternalChannelBuffer > 0 {
			client.bufferSize = sys.InternalChannelBuffer
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
