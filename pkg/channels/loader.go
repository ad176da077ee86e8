package channels

import (
	"log/slog"
	"sort"

	"plutus/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadFromConfig builds every configured channel with a registered factory.
// Unknown names and failing factories are logged and skipped.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, deps Deps) []api.Channel {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []api.Channel
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(configs[name], deps)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel registered", "name", name)
	}
	return out
}

// Decode unmarshals a channel config entry onto v, keeping v's defaults
// when raw is empty.
func Decode(raw jsoniter.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
