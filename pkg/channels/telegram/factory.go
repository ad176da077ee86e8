package telegram

import (
	"fmt"
	"log/slog"

	"plutus/pkg/api"
	"plutus/pkg/channels"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory creates the Telegram channel. Without a token the channel
// is disabled.
type TelegramFactory struct{}

func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	var tgCfg TelegramConfig
	if err := channels.Decode(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tgCfg.Token == "" && deps.Secrets != nil {
		tgCfg.Token = deps.Secrets.TelegramToken
	}
	if tgCfg.Token == "" {
		slog.Info("Telegram channel disabled: no token")
		return nil, nil
	}

	ch, err := NewTelegramChannel(tgCfg, deps.System)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
