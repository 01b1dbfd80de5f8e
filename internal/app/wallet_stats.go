package app

import (
	"polysentry/clients/polymarketapi"
	"time"

	"github.com/shopspring/decimal"
)

// outcomeWon marks a winning trade in the CLOB outcome field.
const outcomeWon = "won"

// WalletStats holds statistics derived from a wallet's fetched trade sample.
// They describe that sample only, bounded by the wallet trade fetch limit,
// not the wallet's full history.
type WalletStats struct {
	WalletAgeDays   float64         `json:"wallet_age_days"`
	TotalTrades     int             `json:"total_trades"`
	WinCount        int             `json:"win_count"`
	WinRate         float64         `json:"win_rate"` // 0.0 to 1.0
	TotalVolume     decimal.Decimal `json:"total_volume"`
	AvgTradeSize    decimal.Decimal `json:"avg_trade_size"`
	MarketFrequency map[string]int  `json:"market_frequency"`
	FirstTradeAt    time.Time       `json:"first_trade_at"`
}

// ComputeWalletStats aggregates a wallet's trade sample.
// Returns nil when the sample is empty or no trade carries a usable timestamp;
// callers must skip evaluation in that case.
// Unparseable sizes and prices count as zero.
func ComputeWalletStats(trades []polymarketapi.ClobTrade, now time.Time) *WalletStats {
	if len(trades) == 0 {
		return nil
	}

	stats := &WalletStats{
		TotalTrades:     len(trades),
		TotalVolume:     decimal.Zero,
		MarketFrequency: make(map[string]int),
	}

	var first time.Time
	for i := range trades {
		t := &trades[i]

		if ts, ok := t.Time(); ok && (first.IsZero() || ts.Before(first)) {
			first = ts
		}

		stats.TotalVolume = stats.TotalVolume.Add(t.Notional())

		if key := t.MarketKey(); key != "" {
			stats.MarketFrequency[key]++
		}

		if t.Outcome == outcomeWon {
			stats.WinCount++
		}
	}

	if first.IsZero() {
		return nil
	}

	stats.FirstTradeAt = first
	stats.WalletAgeDays = now.Sub(first).Hours() / 24
	stats.WinRate = float64(stats.WinCount) / float64(stats.TotalTrades)
	stats.AvgTradeSize = stats.TotalVolume.Div(decimal.NewFromInt(int64(stats.TotalTrades)))

	return stats
}
