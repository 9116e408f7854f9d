package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Memory    MemoryConfig    `json:"memory"`
	Notify    NotifyConfig    `json:"notify"`
	Digest    DigestConfig    `json:"digest"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Provider string  `json:"provider" env:"JARVIS_AGENT_PROVIDER"`
	Model    string  `json:"model" env:"JARVIS_AGENT_MODEL"`
	// MaxTokens applies to platforms that tolerate long messages (discord);
	// CompactMaxTokens applies to telegram and sms.
	MaxTokens        int     `json:"max_tokens" env:"JARVIS_AGENT_MAX_TOKENS"`
	CompactMaxTokens int     `json:"compact_max_tokens" env:"JARVIS_AGENT_COMPACT_MAX_TOKENS"`
	Temperature      float64 `json:"temperature" env:"JARVIS_AGENT_TEMPERATURE"`
	TimeoutSeconds   int     `json:"timeout_seconds" env:"JARVIS_AGENT_TIMEOUT_SECONDS"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	SMS      SMSConfig      `json:"sms"`
}

type TelegramConfig struct {
	Token     string              `json:"token" env:"JARVIS_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy,omitempty" env:"JARVIS_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"JARVIS_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"JARVIS_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"JARVIS_CHANNELS_DISCORD_ALLOW_FROM"`
}

type SMSConfig struct {
	AccountSID string              `json:"account_sid" env:"JARVIS_CHANNELS_SMS_ACCOUNT_SID"`
	AuthToken  string              `json:"auth_token" env:"JARVIS_CHANNELS_SMS_AUTH_TOKEN"`
	FromNumber string              `json:"from_number" env:"JARVIS_CHANNELS_SMS_FROM_NUMBER"`
	AllowFrom  FlexibleStringSlice `json:"allow_from" env:"JARVIS_CHANNELS_SMS_ALLOW_FROM"`
}

type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic" envPrefix:"JARVIS_PROVIDERS_ANTHROPIC_"`
	OpenAI    ProviderConfig `json:"openai" envPrefix:"JARVIS_PROVIDERS_OPENAI_"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base" env:"API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"PROXY"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"JARVIS_GATEWAY_HOST"`
	Port int    `json:"port" env:"JARVIS_GATEWAY_PORT"`
}

type MemoryConfig struct {
	// StorePath is the sqlite database location; DatabaseURL switches the
	// store to postgres when set.
	StorePath     string `json:"store_path" env:"JARVIS_MEMORY_STORE_PATH"`
	DatabaseURL   string `json:"database_url" env:"JARVIS_MEMORY_DATABASE_URL"`
	HistoryWindow int    `json:"history_window" env:"JARVIS_MEMORY_HISTORY_WINDOW"`
	FactLimit     int    `json:"fact_limit" env:"JARVIS_MEMORY_FACT_LIMIT"`
}

type NotifyConfig struct {
	Platform string `json:"platform" env:"JARVIS_NOTIFY_PLATFORM"`
	ChatID   string `json:"chat_id" env:"JARVIS_NOTIFY_CHAT_ID"`
}

type DigestConfig struct {
	Enabled bool   `json:"enabled" env:"JARVIS_DIGEST_ENABLED"`
	Cron    string `json:"cron" env:"JARVIS_DIGEST_CRON"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider:         "anthropic",
			Model:            "claude-3-5-sonnet-20241022",
			MaxTokens:        1000,
			CompactMaxTokens: 300,
			Temperature:      0.7,
			TimeoutSeconds:   60,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{AllowFrom: FlexibleStringSlice{}},
			Discord:  DiscordConfig{AllowFrom: FlexibleStringSlice{}},
			SMS:      SMSConfig{AllowFrom: FlexibleStringSlice{}},
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{},
			OpenAI:    ProviderConfig{},
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18791,
		},
		Memory: MemoryConfig{
			StorePath:     "~/.jarvis/memory.db",
			HistoryWindow: 20,
			FactLimit:     50,
		},
		Digest: DigestConfig{
			Enabled: false,
			Cron:    "0 9 * * *",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Memory.StorePath)
}

func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.Agent.Provider {
	case "openai":
		return c.Providers.OpenAI.APIKey
	default:
		return c.Providers.Anthropic.APIKey
	}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
