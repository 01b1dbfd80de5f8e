package config

import (
	"encoding/json"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment ("PROD" selects prod chat/channel destinations)
	Stage string `mapstructure:"stage" json:"stage"`

	// Development switches the logger to zap's development profile.
	LogDevelopment bool `mapstructure:"log_development" json:"log_development"`

	// Telegram
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`

	// Discord
	Discord DiscordConfig `mapstructure:"discord" json:"discord"`

	// Polymarket API
	Polymarket PolymarketConfig `mapstructure:"polymarket" json:"polymarket"`

	// Monitoring cycle
	Monitor MonitorConfig `mapstructure:"monitor" json:"monitor"`

	// Suspicion rule thresholds
	Detection DetectionConfig `mapstructure:"detection" json:"detection"`

	// Health server
	HealthServer HealthServerConfig `mapstructure:"health_server" json:"health_server"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken     string        `mapstructure:"bot_token" json:"-"` // Excluded - env var only
	ProdChatID   string        `mapstructure:"prod_chat_id" json:"prod_chat_id"`
	BetaChatID   string        `mapstructure:"beta_chat_id" json:"beta_chat_id"`
	APIURL       string        `mapstructure:"api_url" json:"api_url"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" json:"poll_timeout"` // getUpdates long-poll timeout
	ListenEnable bool          `mapstructure:"listen_enable" json:"listen_enable"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `mapstructure:"bot_token" json:"-"` // Excluded - env var only
	ProdChannelID string `mapstructure:"prod_channel_id" json:"prod_channel_id"`
	BetaChannelID string `mapstructure:"beta_channel_id" json:"beta_channel_id"`
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL  string        `mapstructure:"gamma_api_url" json:"gamma_api_url"`
	ClobAPIURL   string        `mapstructure:"clob_api_url" json:"clob_api_url"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"` // Per-request bound inside a cycle
}

// MonitorConfig holds monitoring cycle configuration.
type MonitorConfig struct {
	CycleInterval         time.Duration `mapstructure:"cycle_interval" json:"cycle_interval"`
	RecheckWindow         time.Duration `mapstructure:"recheck_window" json:"recheck_window"`
	MarketFetchLimit      int           `mapstructure:"market_fetch_limit" json:"market_fetch_limit"`
	MarketTradeFetchLimit int           `mapstructure:"market_trade_fetch_limit" json:"market_trade_fetch_limit"`
	TradesPerMarket       int           `mapstructure:"trades_per_market" json:"trades_per_market"`
	WalletTradeFetchLimit int           `mapstructure:"wallet_trade_fetch_limit" json:"wallet_trade_fetch_limit"`
}

// DetectionConfig holds the suspicion rule thresholds.
type DetectionConfig struct {
	FreshWalletAgeDays    float64 `mapstructure:"fresh_wallet_age_days" json:"fresh_wallet_age_days"`
	UnusualSizeMultiplier float64 `mapstructure:"unusual_size_multiplier" json:"unusual_size_multiplier"`
	MinTradesForWinRate   int     `mapstructure:"min_trades_for_win_rate" json:"min_trades_for_win_rate"`
	HighWinRateThreshold  float64 `mapstructure:"high_win_rate_threshold" json:"high_win_rate_threshold"`

	// Not read by any rule yet.
	NicheMarketVolumeMax float64 `mapstructure:"niche_market_volume_max" json:"niche_market_volume_max"`
	RepeatedEntriesCount int     `mapstructure:"repeated_entries_count" json:"repeated_entries_count"`
}

// HealthServerConfig holds health check server configuration.
type HealthServerConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" json:"port"`
}

// IsProd reports whether the stage is production.
func (c *Config) IsProd() bool {
	return strings.EqualFold(strings.TrimSpace(c.Stage), "PROD")
}

// TelegramChatID returns the default chat for the current stage.
func (c *Config) TelegramChatID() string {
	if c.IsProd() {
		return c.Telegram.ProdChatID
	}
	return c.Telegram.BetaChatID
}

// DiscordChannelID returns the default channel for the current stage.
func (c *Config) DiscordChannelID() string {
	if c.IsProd() {
		return c.Discord.ProdChannelID
	}
	return c.Discord.BetaChannelID
}

// Clone creates a copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ToJSON serializes the config to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		Stage: "BETA",
		Telegram: TelegramConfig{
			APIURL:       "https://api.telegram.org",
			PollTimeout:  30 * time.Second,
			ListenEnable: true,
		},
		Polymarket: PolymarketConfig{
			GammaAPIURL:  "https://gamma-api.polymarket.com",
			ClobAPIURL:   "https://clob.polymarket.com",
			FetchTimeout: 15 * time.Second,
		},
		Monitor: MonitorConfig{
			CycleInterval:         5 * time.Minute,
			RecheckWindow:         1 * time.Hour,
			MarketFetchLimit:      100,
			MarketTradeFetchLimit: 100,
			TradesPerMarket:       10,
			WalletTradeFetchLimit: 500,
		},
		Detection: DetectionConfig{
			FreshWalletAgeDays:    7,
			UnusualSizeMultiplier: 10,
			MinTradesForWinRate:   10,
			HighWinRateThreshold:  0.75,
			NicheMarketVolumeMax:  10000,
			RepeatedEntriesCount:  5,
		},
		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}
