package web

import (
	"fmt"
	"strconv"

	"plutus/pkg/api"
	"plutus/pkg/channels"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory creates the websocket/HTTP channel.
type WebFactory struct{}

func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	cfg := WebConfig{Path: "/ws"}
	if deps.Secrets != nil && deps.Secrets.Port != "" {
		port, err := strconv.Atoi(deps.Secrets.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", deps.Secrets.Port, err)
		}
		cfg.Port = port
	}
	if err := channels.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse web config: %w", err)
	}
	if cfg.Port == 0 && cfg.Addr == "" {
		cfg.Port = 3001
	}
	return NewWebChannel(cfg), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
