package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/kelseyhightower/envconfig"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config defines the business configuration loaded from config.json.
type Config struct {
	// Channels maps a channel identifier ("web", "telegram") to its raw
	// JSON configuration payload.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the ordered reasoning engine provider groups in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt seeds every conversation as its first turn.
	SystemPrompt string `json:"system_prompt"`
	// Tools configures the DeFi tool set.
	Tools ToolsConfig `json:"tools"`
	// Store selects the user/wallet record backend.
	Store StoreConfig `json:"store"`
}

// ToolsConfig holds the endpoints used by the built-in tools.
type ToolsConfig struct {
	StakingRewardsURL string     `json:"staking_rewards_url"`
	CookieURL         string     `json:"cookie_url"`
	Lido              LidoConfig `json:"lido"`
}

// LidoConfig describes the Lido deployment the staking tool targets.
// A provider handle carrying rpcUrl/chainId overrides RPCURL/ChainID.
type LidoConfig struct {
	RPCURL          string `json:"rpc_url"`
	ChainID         int64  `json:"chain_id"`
	StETH           string `json:"steth"`
	WstETH          string `json:"wsteth"`
	WithdrawalQueue string `json:"withdrawal_queue"`
}

// StoreConfig selects the record store. Driver is "sqlite", "redis" or empty
// (records disabled).
type StoreConfig struct {
	Driver    string `json:"driver"`
	Path      string `json:"path,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// Validate ensures the configuration structure contains all mandatory fields.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	switch c.Store.Driver {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// applyDefaults fills the tool endpoints left empty in config.json.
func (c *Config) applyDefaults() {
	if c.Tools.StakingRewardsURL == "" {
		c.Tools.StakingRewardsURL = "https://api.stakingrewards.com/public/query"
	}
	if c.Tools.CookieURL == "" {
		c.Tools.CookieURL = "https://api.cookie.fun"
	}
	l := &c.Tools.Lido
	if l.ChainID == 0 {
		l.ChainID = 17000
	}
	if l.StETH == "" {
		l.StETH = "0x3F1c547b21f65e10480dE3ad8E19fAAC46C95034"
	}
	if l.WstETH == "" {
		l.WstETH = "0x8d09a4502Cc8Cf1547aD300E066060D043f6982D"
	}
	if l.WithdrawalQueue == "" {
		l.WithdrawalQueue = "0xc7cc160b58F8Bb0baC94b80847E2CF2800565C50"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "plutus.db"
	}
	if c.Store.Driver == "redis" && c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "plutus"
	}
}

// RedisConfig is read from REDIS_* environment variables.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Secrets holds credentials sourced from the environment (.env for local runs).
type Secrets struct {
	OpenRouterAPIKey     string `envconfig:"OPENROUTER_API_KEY" required:"true"`
	StakingRewardsAPIKey string `envconfig:"STAKING_REWARDS_API_KEY" required:"true"`
	CookieAPIKey         string `envconfig:"COOKIE_API_KEY"`
	GeminiAPIKey         string `envconfig:"GEMINI_API_KEY"`
	TelegramToken        string `envconfig:"TELEGRAM_BOT_TOKEN"`
	Port                 string `envconfig:"PORT" default:"3001"`

	Redis RedisConfig
}

// LoadSecrets loads envFile when present and parses the environment.
func LoadSecrets(envFile string) (*Secrets, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &s, nil
}

// SystemConfig defines engine-level technical parameters stored in system.json.
type SystemConfig struct {
	// MaxRetries is the number of attempts per engine before falling back.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the base delay between retries (linear backoff).
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs bounds a single engine round-trip.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// ToolTimeoutMs bounds a single tool execution.
	ToolTimeoutMs int `json:"tool_timeout_ms"`
	// ProviderWaitMs bounds how long a tool waits for the wallet provider.
	ProviderWaitMs int `json:"provider_wait_ms"`
	// MaxToolRounds caps engine round-trips inside one turn.
	MaxToolRounds int `json:"max_tool_rounds"`
	// OllamaDefaultURL is used when an ollama group has no base_url.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer sizes stream/event channels.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// InboundQueueSize caps the queued messages per connection.
	InboundQueueSize int `json:"inbound_queue_size"`
	// TelegramMessageLimit is the maximum characters per Telegram message.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// CardOrder overrides the card classification order.
	CardOrder []string `json:"card_order,omitempty"`
	// ShowThinking forwards reasoning blocks to the client as text.
	ShowThinking bool `json:"show_thinking"`
	// DebugChunks dumps every raw engine chunk under debug/.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel: "debug", "info", "warn", "error".
	LogLevel string `json:"log_level"`
	// EnableTools toggles tool calling.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns the values used when system.json is missing
// or corrupt.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		RetryDelayMs:          500,
		LLMTimeoutMs:          120000,
		ToolTimeoutMs:         30000,
		ProviderWaitMs:        30000,
		MaxToolRounds:         8,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		InboundQueueSize:      32,
		TelegramMessageLimit:  4000,
		ShowThinking:          false,
		LogLevel:              "info",
		EnableTools:           true,
	}
}

// Load reads config.json and system.json from the working directory.
func Load() (*Config, *SystemConfig, error) {
	cfg, err := LoadAppConfig("config.json")
	if err != nil {
		return nil, nil, err
	}
	return cfg, LoadSystemConfig("system.json"), nil
}

// LoadAppConfig reads, defaults and validates the business configuration.
func LoadAppConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file '%s' not found. please create one", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig()
	}
	cfg.normalize()
	return cfg
}

// normalize replaces non-positive limits with their defaults.
func (s *SystemConfig) normalize() {
	def := DefaultSystemConfig()
	if s.LLMTimeoutMs <= 0 {
		s.LLMTimeoutMs = def.LLMTimeoutMs
	}
	if s.ToolTimeoutMs <= 0 {
		s.ToolTimeoutMs = def.ToolTimeoutMs
	}
	if s.ProviderWaitMs <= 0 {
		s.ProviderWaitMs = def.ProviderWaitMs
	}
	if s.MaxToolRounds <= 0 {
		s.MaxToolRounds = def.MaxToolRounds
	}
	if s.InternalChannelBuffer <= 0 {
		s.InternalChannelBuffer = def.InternalChannelBuffer
	}
	if s.InboundQueueSize <= 0 {
		s.InboundQueueSize = def.InboundQueueSize
	}
}
