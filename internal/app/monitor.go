package app

import (
	"context"
	"fmt"
	"polysentry/clients/polymarketapi"
	"polysentry/config"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MarketSource is the upstream the monitor pulls markets and trades from.
// *polymarketapi.PolymarketApiClient satisfies it.
type MarketSource interface {
	GetOpenMarkets(ctx context.Context, limit int) ([]polymarketapi.GammaMarket, error)
	GetMarketTrades(ctx context.Context, conditionID string, limit int) ([]polymarketapi.ClobTrade, error)
	GetWalletTrades(ctx context.Context, wallet string, limit int) ([]polymarketapi.ClobTrade, error)
}

// AlertSink delivers alerts to subscribers.
type AlertSink interface {
	Broadcast(ctx context.Context, alert Alert) BroadcastResult
}

// MonitorConfig holds the monitoring cycle settings.
type MonitorConfig struct {
	MarketFetchLimit      int
	MarketTradeFetchLimit int
	TradesPerMarket       int
	WalletTradeFetchLimit int
	FetchTimeout          time.Duration
	RecheckWindow         time.Duration
	Rules                 RuleConfig
}

// MonitorConfigFrom extracts monitor settings from the app config.
func MonitorConfigFrom(cfg *config.Config) MonitorConfig {
	return MonitorConfig{
		MarketFetchLimit:      cfg.Monitor.MarketFetchLimit,
		MarketTradeFetchLimit: cfg.Monitor.MarketTradeFetchLimit,
		TradesPerMarket:       cfg.Monitor.TradesPerMarket,
		WalletTradeFetchLimit: cfg.Monitor.WalletTradeFetchLimit,
		FetchTimeout:          cfg.Polymarket.FetchTimeout,
		RecheckWindow:         cfg.Monitor.RecheckWindow,
		Rules:                 RuleConfigFrom(cfg.Detection),
	}
}

// CycleReport summarizes one monitoring pass.
type CycleReport struct {
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
	Markets             int           `json:"markets"`
	MarketsWithTrades   int           `json:"markets_with_trades"`
	TradesConsidered    int           `json:"trades_considered"`
	TradesNoWallet      int           `json:"trades_no_wallet"`
	WalletsSkippedFresh int           `json:"wallets_skipped_fresh"`
	WalletsNoStats      int           `json:"wallets_no_stats"`
	WalletsEvaluated    int           `json:"wallets_evaluated"`
	Alerts              int           `json:"alerts"`
	Delivered           int           `json:"delivered"`
	DeliveryFailures    int           `json:"delivery_failures"`
	Panicked            bool          `json:"panicked,omitempty"`
}

// Monitor runs monitoring cycles: markets, then their recent trades, then the
// acting wallets' histories, feeding the rule engine and raising alerts.
type Monitor struct {
	logger *zap.Logger
	source MarketSource
	cache  *StalenessCache
	alerts *AlertLog
	sink   AlertSink
	now    func() time.Time

	// Config with mutex for hot-reload support
	configMu sync.RWMutex
	config   MonitorConfig
	rules    *RuleEngine
}

func NewMonitor(
	logger *zap.Logger,
	source MarketSource,
	cache *StalenessCache,
	alerts *AlertLog,
	sink AlertSink,
	cfg MonitorConfig,
) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewStalenessCache(cfg.RecheckWindow)
	}
	if alerts == nil {
		alerts = NewAlertLog()
	}

	return &Monitor{
		logger: logger,
		source: source,
		cache:  cache,
		alerts: alerts,
		sink:   sink,
		now:    time.Now,
		config: cfg,
		rules:  NewRuleEngine(cfg.Rules),
	}
}

// getConfig returns the current config and rule engine in a thread-safe manner.
func (m *Monitor) getConfig() (MonitorConfig, *RuleEngine) {
	m.configMu.RLock()
	defer m.configMu.RUnlock()
	return m.config, m.rules
}

// UpdateConfig swaps in new settings. A cycle already running keeps the
// settings it started with.
func (m *Monitor) UpdateConfig(cfg MonitorConfig) {
	m.configMu.Lock()
	m.config = cfg
	m.rules = NewRuleEngine(cfg.Rules)
	m.configMu.Unlock()

	m.cache.SetWindow(cfg.RecheckWindow)

	m.logger.Info("monitor config updated",
		zap.Int("tradesPerMarket", cfg.TradesPerMarket),
		zap.Duration("recheckWindow", cfg.RecheckWindow),
		zap.Float64("freshWalletAgeDays", cfg.Rules.FreshWalletAgeDays),
		zap.Float64("highWinRateThreshold", cfg.Rules.HighWinRateThreshold),
		zap.Float64("unusualSizeMultiplier", cfg.Rules.UnusualSizeMultiplier),
	)
}

// Cache exposes the staleness cache.
func (m *Monitor) Cache() *StalenessCache { return m.cache }

// Alerts exposes the alert log.
func (m *Monitor) Alerts() *AlertLog { return m.alerts }

// RunCycle performs one monitoring pass. It never returns an error: upstream
// failures degrade to empty results and a panic is recovered and reported.
func (m *Monitor) RunCycle(ctx context.Context) (report CycleReport) {
	cfg, rules := m.getConfig()
	report.StartedAt = m.now()

	defer func() {
		report.Duration = m.now().Sub(report.StartedAt)
		if r := recover(); r != nil {
			report.Panicked = true
			m.logger.Error("monitoring cycle panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	markets := failSoft(ctx, m.logger, cfg.FetchTimeout, "open markets",
		func(ctx context.Context) ([]polymarketapi.GammaMarket, error) {
			return m.source.GetOpenMarkets(ctx, cfg.MarketFetchLimit)
		},
	)
	report.Markets = len(markets)

	for _, market := range markets {
		if ctx.Err() != nil {
			break
		}
		m.processMarket(ctx, cfg, rules, market, &report)
	}

	m.logger.Info("monitoring cycle complete",
		zap.Int("markets", report.Markets),
		zap.Int("marketsWithTrades", report.MarketsWithTrades),
		zap.Int("tradesConsidered", report.TradesConsidered),
		zap.Int("walletsEvaluated", report.WalletsEvaluated),
		zap.Int("walletsSkippedFresh", report.WalletsSkippedFresh),
		zap.Int("alerts", report.Alerts),
		zap.Int("cacheSize", m.cache.Len()),
	)

	return report
}

func (m *Monitor) processMarket(
	ctx context.Context,
	cfg MonitorConfig,
	rules *RuleEngine,
	market polymarketapi.GammaMarket,
	report *CycleReport,
) {
	conditionID := market.MarketID()
	trades := failSoft(ctx, m.logger.With(zap.String("market", shortID(conditionID))), cfg.FetchTimeout, "market trades",
		func(ctx context.Context) ([]polymarketapi.ClobTrade, error) {
			return m.source.GetMarketTrades(ctx, conditionID, cfg.MarketTradeFetchLimit)
		},
	)
	if len(trades) == 0 {
		return
	}
	report.MarketsWithTrades++

	if len(trades) > cfg.TradesPerMarket {
		trades = trades[:cfg.TradesPerMarket]
	}

	for _, trade := range trades {
		if ctx.Err() != nil {
			return
		}
		report.TradesConsidered++

		wallet := trade.Wallet()
		if wallet == "" {
			report.TradesNoWallet++
			continue
		}

		if m.cache.ShouldSkip(wallet, m.now()) {
			report.WalletsSkippedFresh++
			continue
		}

		m.evaluateWallet(ctx, cfg, rules, market, trade, wallet, report)
	}
}

func (m *Monitor) evaluateWallet(
	ctx context.Context,
	cfg MonitorConfig,
	rules *RuleEngine,
	market polymarketapi.GammaMarket,
	trade polymarketapi.ClobTrade,
	wallet string,
	report *CycleReport,
) {
	history := failSoft(ctx, m.logger.With(zap.String("wallet", shortID(wallet))), cfg.FetchTimeout, "wallet trades",
		func(ctx context.Context) ([]polymarketapi.ClobTrade, error) {
			return m.source.GetWalletTrades(ctx, wallet, cfg.WalletTradeFetchLimit)
		},
	)

	now := m.now()
	stats := ComputeWalletStats(history, now)
	if stats == nil {
		report.WalletsNoStats++
		return
	}
	report.WalletsEvaluated++

	flags := rules.Evaluate(stats, trade)
	if len(flags) > 0 {
		alert := NewAlert(wallet, market, trade, stats, flags, now)
		m.alerts.Append(alert)
		report.Alerts++

		m.logger.Info("SUSPICIOUS ACTIVITY",
			zap.String("alertID", alert.ID),
			zap.String("wallet", shortID(wallet)),
			zap.String("market", alert.Market),
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
			zap.Int("flagCount", len(flags)),
			zap.Float64("walletAgeDays", stats.WalletAgeDays),
			zap.Float64("winRate", stats.WinRate),
			zap.Int("totalTrades", stats.TotalTrades),
			zap.String("totalVolume", stats.TotalVolume.StringFixed(2)),
			zap.String("tradeNotional", alert.TradeNotional.StringFixed(2)),
		)

		if m.sink != nil {
			res := m.sink.Broadcast(ctx, alert)
			report.Delivered += res.Delivered
			report.DeliveryFailures += res.Failed
		}
	}

	// Record even without flags so the next cycle reuses these stats.
	m.cache.Record(wallet, stats, now)
}

// failSoft runs fetch under its own timeout and converts any failure into an
// empty result. Callers only ever see a possibly empty list.
func failSoft[T any](
	ctx context.Context,
	logger *zap.Logger,
	timeout time.Duration,
	what string,
	fetch func(ctx context.Context) ([]T, error),
) (out []T) {
	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("fetch panicked, treating as empty",
				zap.String("fetch", what),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = nil
		}
	}()

	items, err := fetch(fetchCtx)
	if err != nil {
		logger.Warn("fetch failed, treating as empty",
			zap.String("fetch", what),
			zap.Error(err),
		)
		return nil
	}
	return items
}
