package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"plutus/pkg/config"
	"plutus/pkg/llm"
)

// GeminiFactory builds Gemini clients.
type GeminiFactory struct{}

// Create builds models x keys clients, models first.
func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini: no api key configured")
	}

	useThought := cfg.UseThoughtSignature
	if effort, ok := cfg.Options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		useThought = true
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewGeminiClient(context.Background(), key, model, useThought)
			if err != nil {
				slog.Error("Failed to create Gemini client", "model", model, "error", err)
				continue
			}
			if sys != nil {
				client.SetDebug(sys.DebugChunks)
				if sys.InternalChannelBuffer > 0 {
					client.bufferSize = sys.InternalChannelBuffer
				}
			}
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
