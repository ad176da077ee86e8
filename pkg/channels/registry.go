// Package channels holds the transport factories. Each transport registers
// itself from init() under the key used in config.json "channels".
package channels

import (
	"plutus/pkg/api"
	"plutus/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// Deps are the shared resources a channel may need.
type Deps struct {
	System  *config.SystemHolder
	Secrets *config.Secrets
}

// ChannelFactory creates a channel from its raw config.json entry. A nil
// channel with a nil error means the channel is disabled.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, deps Deps) (api.Channel, error)
}

var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a factory. Called from init().
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a factory by name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
