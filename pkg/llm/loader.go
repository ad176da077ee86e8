package llm

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"plutus/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig builds the engine from the ordered provider groups in rawLLM.
// Several clients are wrapped in a FallbackClient. A group with no api_keys
// reads its key from api_key_env.
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (LLMClient, error) {
	if len(rawLLM) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	var clients []LLMClient
	for _, group := range groups {
		if len(group.APIKeys) == 0 && group.APIKeyEnv != "" {
			if key := os.Getenv(group.APIKeyEnv); key != "" {
				group.APIKeys = []string{key}
			}
		}

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown LLM provider type", "type", group.Type)
			continue
		}

		created, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Failed to create LLM clients", "type", group.Type, "error", err)
			continue
		}
		slog.Info("LLM group loaded", "type", group.Type, "clients", len(created))
		clients = append(clients, created...)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}
	if len(clients) == 1 {
		return clients[0], nil
	}

	return &FallbackClient{
		Clients:    clients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}
