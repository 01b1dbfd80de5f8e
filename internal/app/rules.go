package app

import (
	"polysentry/clients/polymarketapi"
	"polysentry/config"

	"github.com/shopspring/decimal"
)

// FlagType identifies which suspicion rule fired.
type FlagType string

const (
	FlagFreshWallet FlagType = "FRESH_WALLET"
	FlagHighWinRate FlagType = "HIGH_WIN_RATE"
	FlagUnusualSize FlagType = "UNUSUAL_SIZE"
)

// Severity ranks a flag.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
)

// Flag is a single rule hit.
type Flag struct {
	Type     FlagType `json:"type"`
	Severity Severity `json:"severity"`
}

// RuleConfig holds the thresholds read by the rule engine.
type RuleConfig struct {
	FreshWalletAgeDays    float64
	MinTradesForWinRate   int
	HighWinRateThreshold  float64
	UnusualSizeMultiplier float64
}

// RuleConfigFrom extracts rule thresholds from detection config.
// NicheMarketVolumeMax and RepeatedEntriesCount have no rule yet and are not carried.
func RuleConfigFrom(d config.DetectionConfig) RuleConfig {
	return RuleConfig{
		FreshWalletAgeDays:    d.FreshWalletAgeDays,
		MinTradesForWinRate:   d.MinTradesForWinRate,
		HighWinRateThreshold:  d.HighWinRateThreshold,
		UnusualSizeMultiplier: d.UnusualSizeMultiplier,
	}
}

// RuleEngine evaluates wallet statistics against a candidate trade.
// It does no I/O and is safe for concurrent use.
type RuleEngine struct {
	cfg        RuleConfig
	multiplier decimal.Decimal
}

func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	return &RuleEngine{
		cfg:        cfg,
		multiplier: decimal.NewFromFloat(cfg.UnusualSizeMultiplier),
	}
}

// Config returns the thresholds this engine was built with.
func (e *RuleEngine) Config() RuleConfig {
	return e.cfg
}

// Evaluate returns the flags raised for trade, always in the order
// FRESH_WALLET, HIGH_WIN_RATE, UNUSUAL_SIZE. Nil stats yield no flags.
func (e *RuleEngine) Evaluate(stats *WalletStats, trade polymarketapi.ClobTrade) []Flag {
	if stats == nil {
		return nil
	}

	var flags []Flag

	if stats.WalletAgeDays < e.cfg.FreshWalletAgeDays {
		flags = append(flags, Flag{Type: FlagFreshWallet, Severity: SeverityHigh})
	}

	if stats.TotalTrades >= e.cfg.MinTradesForWinRate && stats.WinRate >= e.cfg.HighWinRateThreshold {
		flags = append(flags, Flag{Type: FlagHighWinRate, Severity: SeverityMedium})
	}

	if trade.Notional().GreaterThan(stats.AvgTradeSize.Mul(e.multiplier)) {
		flags = append(flags, Flag{Type: FlagUnusualSize, Severity: SeverityHigh})
	}

	return flags
}
