package app

import (
	"polysentry/clients/polymarketapi"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Alert is a point-in-time record of a flagged trade. Only the first flag is
// surfaced as Type/Severity; Flags keeps every rule that fired.
type Alert struct {
	ID            string          `json:"id"`
	Wallet        string          `json:"wallet"`
	Market        string          `json:"market"`
	ConditionID   string          `json:"condition_id"`
	Type          FlagType        `json:"type"`
	Severity      Severity        `json:"severity"`
	WinRate       float64         `json:"win_rate"`
	TotalTrades   int             `json:"total_trades"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TradeNotional decimal.Decimal `json:"trade_notional"`
	Flags         []Flag          `json:"flags"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewAlert builds an alert from the first of flags. flags must be non-empty.
func NewAlert(
	wallet string,
	market polymarketapi.GammaMarket,
	trade polymarketapi.ClobTrade,
	stats *WalletStats,
	flags []Flag,
	now time.Time,
) Alert {
	return Alert{
		ID:            uuid.NewString(),
		Wallet:        wallet,
		Market:        market.Label(),
		ConditionID:   market.MarketID(),
		Type:          flags[0].Type,
		Severity:      flags[0].Severity,
		WinRate:       stats.WinRate,
		TotalTrades:   stats.TotalTrades,
		TotalVolume:   stats.TotalVolume,
		TradeNotional: trade.Notional(),
		Flags:         append([]Flag(nil), flags...),
		CreatedAt:     now,
	}
}

// AlertLog is an append-only in-memory record of every alert raised.
type AlertLog struct {
	mu     sync.RWMutex
	alerts []Alert
}

func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

func (l *AlertLog) Append(a Alert) {
	l.mu.Lock()
	l.alerts = append(l.alerts, a)
	l.mu.Unlock()
}

// Recent returns up to n alerts, newest first. n <= 0 returns all.
func (l *AlertLog) Recent(n int) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.alerts) {
		n = len(l.alerts)
	}
	out := make([]Alert, 0, n)
	for i := len(l.alerts) - 1; i >= len(l.alerts)-n; i-- {
		out = append(out, l.alerts[i])
	}
	return out
}

// CountByType returns the number of alerts per surfaced flag type.
func (l *AlertLog) CountByType() map[FlagType]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.CountValuesBy(l.alerts, func(a Alert) FlagType { return a.Type })
}

// Last returns the newest alert.
func (l *AlertLog) Last() (Alert, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.alerts) == 0 {
		return Alert{}, false
	}
	return l.alerts[len(l.alerts)-1], true
}

func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
