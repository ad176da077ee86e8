package llm

import (
	"sync"

	"plutus/pkg/config"
)

// ProviderGroupConfig configures one group of models of the same provider type.
type ProviderGroupConfig struct {
	Type                string         `json:"type"`
	APIKeys             []string       `json:"api_keys,omitempty"`
	APIKeyEnv           string         `json:"api_key_env,omitempty"`
	Models              []string       `json:"models"`
	BaseURL             string         `json:"base_url,omitempty"`
	UseThoughtSignature bool           `json:"use_thought_signature,omitempty"`
	Options             map[string]any `json:"options,omitempty"`
}

// ProviderFactory builds the clients of one provider group.
type ProviderFactory interface {
	Create(group ProviderGroupConfig, system *config.SystemConfig) ([]LLMClient, error)
}

var (
	providerMu       sync.RWMutex
	providerRegistry = make(map[string]ProviderFactory)
)

// RegisterProvider registers factory under name. Called from init().
func RegisterProvider(name string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[name] = factory
}

// GetProviderFactory returns the factory registered under name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	f, ok := providerRegistry[name]
	return f, ok
}
