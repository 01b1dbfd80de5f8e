package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validatePolymarket(&c.Polymarket)...)
	errors = append(errors, validateMonitor(&c.Monitor)...)
	errors = append(errors, validateDetection(&c.Detection)...)
	errors = append(errors, validateHealthServer(&c.HealthServer)...)

	if c.Telegram.PollTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "telegram.poll_timeout",
			Message: "must be non-negative",
		})
	}

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validatePolymarket(pm *PolymarketConfig) []ValidationError {
	var errors []ValidationError

	if pm.GammaAPIURL == "" {
		errors = append(errors, ValidationError{
			Field:   "polymarket.gamma_api_url",
			Message: "is required",
		})
	}

	if pm.ClobAPIURL == "" {
		errors = append(errors, ValidationError{
			Field:   "polymarket.clob_api_url",
			Message: "is required",
		})
	}

	if pm.FetchTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "polymarket.fetch_timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateMonitor(m *MonitorConfig) []ValidationError {
	var errors []ValidationError

	if m.CycleInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "monitor.cycle_interval",
			Message: "must be at least 1 second",
		})
	}

	if m.RecheckWindow < 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.recheck_window",
			Message: "must be non-negative",
		})
	}

	if m.MarketFetchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.market_fetch_limit",
			Message: "must be at least 1",
		})
	}

	if m.MarketTradeFetchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.market_trade_fetch_limit",
			Message: "must be at least 1",
		})
	}

	if m.TradesPerMarket < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.trades_per_market",
			Message: "must be at least 1",
		})
	}

	if m.WalletTradeFetchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.wallet_trade_fetch_limit",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateDetection(d *DetectionConfig) []ValidationError {
	var errors []ValidationError

	if d.FreshWalletAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.fresh_wallet_age_days",
			Message: "must be non-negative",
		})
	}

	if d.UnusualSizeMultiplier <= 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.unusual_size_multiplier",
			Message: "must be positive",
		})
	}

	if d.MinTradesForWinRate < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.min_trades_for_win_rate",
			Message: "must be at least 1",
		})
	}

	if d.HighWinRateThreshold < 0 || d.HighWinRateThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.high_win_rate_threshold",
			Message: "must be between 0 and 1",
		})
	}

	if d.NicheMarketVolumeMax < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.niche_market_volume_max",
			Message: "must be non-negative",
		})
	}

	if d.RepeatedEntriesCount < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.repeated_entries_count",
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateHealthServer(hs *HealthServerConfig) []ValidationError {
	var errors []ValidationError

	if hs.Enabled && (hs.Port < 1 || hs.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "health_server.port",
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}
