package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const greeting = "Hi, I'm Plutus. Ask me about staking yields, providers, or AI agent mindshare."

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token string `json:"token"`
}

// TelegramChannel relays each Telegram chat as one connection.
type TelegramChannel struct {
	config TelegramConfig
	bot    *tgbotapi.BotAPI
	system *config.SystemHolder

	mu    sync.Mutex
	chats map[int64]api.Session

	stopCtx    context.Context // aborts the in-flight long poll on Stop
	stopCancel context.CancelFunc
}

func NewTelegramChannel(cfg TelegramConfig, system *config.SystemHolder) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Tie dials to stopCtx so Stop kills the active long poll and a restarted
	// bot does not hit 409 Conflict.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	botHTTPClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				mergedCtx, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-mergedCtx.Done():
					}
				}()
				return dialer.DialContext(mergedCtx, network, addr)
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHTTPClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	if system == nil {
		system = config.NewSystemHolder(nil)
	}
	return &TelegramChannel{
		config:     cfg,
		bot:        bot,
		system:     system,
		chats:      make(map[int64]api.Session),
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start runs the long-poll loop until Stop or ctx is done.
func (t *TelegramChannel) Start(ctx context.Context, host api.ChannelHost) error {
	go func() {
		select {
		case <-ctx.Done():
			t.stopCancel()
		case <-t.stopCtx.Done():
		}
	}()

	go t.poll(host)
	return nil
}

func (t *TelegramChannel) poll(host api.ChannelHost) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = 60

		// GetUpdates has no context; the dialer above aborts it on Stop.
		updates, err := t.bot.GetUpdates(req)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			default:
				slog.Debug("Failed to get telegram updates", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			t.handle(host, update.Message)
		}
	}
}

func (t *TelegramChannel) handle(host api.ChannelHost, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			t.reply(chatID, greeting)
			return
		case "reset":
			t.forget(chatID)
			t.reply(chatID, "Conversation cleared.")
			return
		}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}

	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("Failed to send typing action", "chat", chatID, "error", err)
	}
	t.session(host, chatID).DeliverText(text)
}

func (t *TelegramChannel) session(host api.ChannelHost, chatID int64) api.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.chats[chatID]; ok {
		return s
	}
	s := host.Open(&chatConn{chatID: chatID, channel: t})
	t.chats[chatID] = s
	return s
}

// forget closes and drops the chat's connection. The next message opens a
// fresh one.
func (t *TelegramChannel) forget(chatID int64) {
	t.mu.Lock()
	s, ok := t.chats[chatID]
	delete(t.chats, chatID)
	t.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (t *TelegramChannel) drop(chatID int64) {
	t.mu.Lock()
	delete(t.chats, chatID)
	t.mu.Unlock()
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("Telegram send failed", "chat", chatID, "error", err)
	}
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()

	t.mu.Lock()
	chats := t.chats
	t.chats = make(map[int64]api.Session)
	t.mu.Unlock()
	for _, s := range chats {
		s.Close()
	}

	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	return nil
}

// chatConn is one Telegram chat seen as a relay connection. Every chat gets
// its own wallet session.
type chatConn struct {
	chatID  int64
	channel *TelegramChannel
}

func (c *chatConn) ID() string {
	return "tg-" + strconv.FormatInt(c.chatID, 10)
}

func (c *chatConn) ChannelID() string {
	return "telegram"
}

func (c *chatConn) WalletSession() string {
	return "telegram:" + strconv.FormatInt(c.chatID, 10)
}

func (c *chatConn) Send(ev api.OutboundEvent) error {
	limit := c.channel.system.Get().TelegramMessageLimit
	for i, part := range renderEvent(ev, limit) {
		if _, err := c.channel.bot.Send(tgbotapi.NewMessage(c.chatID, part)); err != nil {
			// The relay closes this connection; let the next message open a new one.
			c.channel.drop(c.chatID)
			return fmt.Errorf("telegram send chunk %d failed: %w", i, err)
		}
	}
	return nil
}
