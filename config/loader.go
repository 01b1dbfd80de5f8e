package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// DefaultConfigName is looked up in the working directory when no --config path is given.
	DefaultConfigName = "polysentry"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"stage":          "stage",
	"cycle-interval": "monitor.cycle_interval",
	"health-port":    "health_server.port",
}

// Loader reads configuration from defaults, an optional config file, a .env file,
// and environment variables, in increasing order of priority.
// Environment keys are the config keys upper-cased with dots replaced by
// underscores, e.g. MONITOR_CYCLE_INTERVAL or TELEGRAM_BOT_TOKEN.
type Loader struct {
	logger *zap.Logger
	v      *viper.Viper
	path   string
}

// NewLoader creates a Loader. path may be empty.
func NewLoader(logger *zap.Logger, path string) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		logger: logger,
		v:      v,
		path:   path,
	}
}

// BindFlags binds known command-line flags so that explicitly set flags win over
// every other source.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads all sources and returns a validated config.
func (l *Loader) Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err == nil {
		l.logger.Info("loaded .env file")
	}

	if l.path != "" {
		l.v.SetConfigFile(l.path)
	} else {
		l.v.SetConfigName(DefaultConfigName)
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		l.logger.Info("no config file found, using env/defaults")
	} else {
		l.logger.Info("loaded config file", zap.String("path", l.v.ConfigFileUsed()))
	}

	return l.decode()
}

// Watch re-reads the config file on change and pushes valid results into lc.
// It is a no-op when no config file was loaded.
func (l *Loader) Watch(lc *LiveConfig) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := lc.Update(cfg); err != nil {
			l.logger.Warn("failed to apply config change", zap.Error(err))
			return
		}
		l.logger.Info("config reloaded", zap.String("file", e.Name))
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	result := cfg.Validate()
	if !result.Valid {
		return nil, &ConfigValidationError{Errors: result.Errors}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("stage", d.Stage)
	v.SetDefault("log_development", d.LogDevelopment)

	v.SetDefault("telegram.bot_token", d.Telegram.BotToken)
	v.SetDefault("telegram.prod_chat_id", d.Telegram.ProdChatID)
	v.SetDefault("telegram.beta_chat_id", d.Telegram.BetaChatID)
	v.SetDefault("telegram.api_url", d.Telegram.APIURL)
	v.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	v.SetDefault("telegram.listen_enable", d.Telegram.ListenEnable)

	v.SetDefault("discord.bot_token", d.Discord.BotToken)
	v.SetDefault("discord.prod_channel_id", d.Discord.ProdChannelID)
	v.SetDefault("discord.beta_channel_id", d.Discord.BetaChannelID)

	v.SetDefault("polymarket.gamma_api_url", d.Polymarket.GammaAPIURL)
	v.SetDefault("polymarket.clob_api_url", d.Polymarket.ClobAPIURL)
	v.SetDefault("polymarket.fetch_timeout", d.Polymarket.FetchTimeout)

	v.SetDefault("monitor.cycle_interval", d.Monitor.CycleInterval)
	v.SetDefault("monitor.recheck_window", d.Monitor.RecheckWindow)
	v.SetDefault("monitor.market_fetch_limit", d.Monitor.MarketFetchLimit)
	v.SetDefault("monitor.market_trade_fetch_limit", d.Monitor.MarketTradeFetchLimit)
	v.SetDefault("monitor.trades_per_market", d.Monitor.TradesPerMarket)
	v.SetDefault("monitor.wallet_trade_fetch_limit", d.Monitor.WalletTradeFetchLimit)

	v.SetDefault("detection.fresh_wallet_age_days", d.Detection.FreshWalletAgeDays)
	v.SetDefault("detection.unusual_size_multiplier", d.Detection.UnusualSizeMultiplier)
	v.SetDefault("detection.min_trades_for_win_rate", d.Detection.MinTradesForWinRate)
	v.SetDefault("detection.high_win_rate_threshold", d.Detection.HighWinRateThreshold)
	v.SetDefault("detection.niche_market_volume_max", d.Detection.NicheMarketVolumeMax)
	v.SetDefault("detection.repeated_entries_count", d.Detection.RepeatedEntriesCount)

	v.SetDefault("health_server.enabled", d.HealthServer.Enabled)
	v.SetDefault("health_server.port", d.HealthServer.Port)
}
