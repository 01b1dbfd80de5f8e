package app

import (
	"context"
	"errors"
	"polysentry/clients/notifier"
	"polysentry/clients/polymarketapi"
	"polysentry/config"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var monitorNow = time.Unix(1_700_000_000, 0)

func testMonitorConfig() MonitorConfig {
	cfg := MonitorConfigFrom(config.Defaults())
	cfg.FetchTimeout = time.Second
	return cfg
}

func newTestMonitor(source MarketSource, sink AlertSink) *Monitor {
	m := NewMonitor(nil, source, nil, nil, sink, testMonitorConfig())
	m.now = func() time.Time { return monitorNow }
	return m
}

func TestMonitorConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	mc := MonitorConfigFrom(cfg)

	assert.Equal(t, cfg.Monitor.TradesPerMarket, mc.TradesPerMarket)
	assert.Equal(t, cfg.Monitor.RecheckWindow, mc.RecheckWindow)
	assert.Equal(t, cfg.Polymarket.FetchTimeout, mc.FetchTimeout)
	assert.Equal(t, 10, mc.TradesPerMarket)
	assert.Equal(t, time.Hour, mc.RecheckWindow)
}

func TestRunCycle_FlagsAndAlerts(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "Will it rain?")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{
		makeTrade("0xfresh", "cid-1", 10, 0.5, "", monitorNow),
		makeTrade("0xold", "cid-1", 10, 0.5, "", monitorNow),
	}
	src.WalletTrades["0xfresh"] = walletHistory("0xfresh", 1, 0, 10, 0.5, 2, monitorNow)
	src.WalletTrades["0xold"] = walletHistory("0xold", 5, 1, 10, 0.5, 60, monitorNow)

	sink := &recordingSink{}
	m := newTestMonitor(src, sink)

	report := m.RunCycle(context.Background())

	assert.Equal(t, 1, report.Markets)
	assert.Equal(t, 1, report.MarketsWithTrades)
	assert.Equal(t, 2, report.TradesConsidered)
	assert.Equal(t, 2, report.WalletsEvaluated)
	assert.Equal(t, 1, report.Alerts)
	assert.Equal(t, 1, report.Delivered)
	assert.False(t, report.Panicked)

	alerts := sink.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "0xfresh", alerts[0].Wallet)
	assert.Equal(t, "Will it rain?", alerts[0].Market)
	assert.Equal(t, FlagFreshWallet, alerts[0].Type)
	assert.Equal(t, 1, m.Alerts().Len())

	// cache is written for flagged and unflagged wallets alike
	for _, w := range []string{"0xfresh", "0xold"} {
		entry, ok := m.Cache().Get(w)
		require.True(t, ok, w)
		assert.Equal(t, monitorNow, entry.LastChecked)
		assert.NotNil(t, entry.Stats)
	}
}

func TestRunCycle_SkipsRecentlyCheckedWallets(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{makeTrade("0xa", "cid-1", 1, 1, "", monitorNow)}
	src.WalletTrades["0xa"] = walletHistory("0xa", 3, 0, 1, 1, 30, monitorNow)

	m := newTestMonitor(src, &recordingSink{})

	m.RunCycle(context.Background())
	report := m.RunCycle(context.Background())

	assert.Equal(t, 1, src.WalletCalls("0xa"))
	assert.Equal(t, 1, report.WalletsSkippedFresh)
	assert.Zero(t, report.WalletsEvaluated)

	// past the window the wallet is evaluated again
	m.now = func() time.Time { return monitorNow.Add(time.Hour) }
	report = m.RunCycle(context.Background())
	assert.Equal(t, 2, src.WalletCalls("0xa"))
	assert.Equal(t, 1, report.WalletsEvaluated)
}

func TestRunCycle_TradesPerMarketCap(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	var trades []polymarketapi.ClobTrade
	for i := 0; i < 25; i++ {
		trades = append(trades, makeTrade("", "cid-1", 1, 1, "", monitorNow))
	}
	src.MarketTrades["cid-1"] = trades

	m := newTestMonitor(src, nil)
	report := m.RunCycle(context.Background())

	assert.Equal(t, 10, report.TradesConsidered)
	assert.Equal(t, 10, report.TradesNoWallet)
	assert.Zero(t, m.Cache().Len())
}

func TestRunCycle_EmptyWalletHistoryLeavesCacheUntouched(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{makeTrade("0xghost", "cid-1", 1, 1, "", monitorNow)}

	sink := &recordingSink{}
	m := newTestMonitor(src, sink)
	report := m.RunCycle(context.Background())

	assert.Equal(t, 1, report.WalletsNoStats)
	assert.Zero(t, m.Cache().Len())
	assert.Empty(t, sink.Alerts())
	assert.Zero(t, m.Alerts().Len())
}

func TestRunCycle_MarketWithoutTrades(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("quiet", "Nobody trades here")}
	src.MarketTrades["quiet"] = nil

	sink := &recordingSink{}
	m := newTestMonitor(src, sink)
	report := m.RunCycle(context.Background())

	assert.Equal(t, 1, report.Markets)
	assert.Zero(t, report.MarketsWithTrades)
	assert.Zero(t, report.TradesConsidered)
	assert.Zero(t, report.WalletsEvaluated+report.WalletsNoStats, "no wallet history fetched")
	assert.Zero(t, m.Cache().Len())
	assert.Zero(t, m.Alerts().Len())
	assert.Empty(t, sink.Alerts())
}

func TestRunCycle_PanickingDeliveryDoesNotEscape(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{makeTrade("0xfresh", "cid-1", 1, 1, "", monitorNow)}
	src.WalletTrades["0xfresh"] = walletHistory("0xfresh", 1, 0, 1, 1, 1, monitorNow)

	tg := NewMockChannel("telegram")
	tg.On("Send", mock.Anything, "42", mock.Anything).Panic("boom in send")

	subs := NewSubscriberRegistry()
	subs.Subscribe(notifier.Destination{Channel: "telegram", ChatID: "42"})
	m := newTestMonitor(src, NewBroadcaster(nil, notifier.NewMultiNotifier(tg), subs))

	var report CycleReport
	assert.NotPanics(t, func() { report = m.RunCycle(context.Background()) })
	assert.Equal(t, 1, report.Alerts)
	assert.Equal(t, 1, report.DeliveryFailures)
	assert.Zero(t, report.Delivered)
	assert.False(t, report.Panicked)

	// cache is still written after the failed delivery
	_, ok := m.Cache().Get("0xfresh")
	assert.True(t, ok)
}

func TestRunCycle_FetchFailuresAreSoft(t *testing.T) {
	t.Run("market list", func(t *testing.T) {
		src := NewFakeMarketSource()
		src.MarketsErr = errors.New("gamma down")

		report := newTestMonitor(src, nil).RunCycle(context.Background())
		assert.Zero(t, report.Markets)
		assert.False(t, report.Panicked)
	})

	t.Run("market trades and wallet trades", func(t *testing.T) {
		src := NewFakeMarketSource()
		src.Markets = []polymarketapi.GammaMarket{marketFixture("bad", "q1"), marketFixture("good", "q2")}
		src.MarketErrs["bad"] = errors.New("500")
		src.MarketTrades["good"] = []polymarketapi.ClobTrade{
			makeTrade("0xerr", "good", 1, 1, "", monitorNow),
			makeTrade("0xpanic", "good", 1, 1, "", monitorNow),
			makeTrade("0xok", "good", 1, 1, "", monitorNow),
		}
		src.WalletErrs["0xerr"] = errors.New("timeout")
		src.WalletPanics["0xpanic"] = true
		src.WalletTrades["0xok"] = walletHistory("0xok", 2, 0, 1, 1, 30, monitorNow)

		m := newTestMonitor(src, nil)
		report := m.RunCycle(context.Background())

		assert.Equal(t, 2, report.Markets)
		assert.Equal(t, 1, report.MarketsWithTrades)
		assert.Equal(t, 2, report.WalletsNoStats)
		assert.Equal(t, 1, report.WalletsEvaluated)
		assert.False(t, report.Panicked)
		_, ok := m.Cache().Get("0xok")
		assert.True(t, ok)
	})
}

func TestRunCycle_RecoversPanic(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{makeTrade("0xfresh", "cid-1", 1, 1, "", monitorNow)}
	src.WalletTrades["0xfresh"] = walletHistory("0xfresh", 1, 0, 1, 1, 1, monitorNow)

	m := newTestMonitor(src, panickingSink{})

	var report CycleReport
	assert.NotPanics(t, func() { report = m.RunCycle(context.Background()) })
	assert.True(t, report.Panicked)
	// the alert was logged before delivery blew up
	assert.Equal(t, 1, m.Alerts().Len())
}

func TestRunCycle_CancelledContext(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("a", "q"), marketFixture("b", "q")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newTestMonitor(src, nil).RunCycle(ctx)
	assert.Zero(t, report.MarketsWithTrades)
	assert.Zero(t, report.TradesConsidered)
}

func TestMonitor_UpdateConfig(t *testing.T) {
	src := NewFakeMarketSource()
	src.Markets = []polymarketapi.GammaMarket{marketFixture("cid-1", "q")}
	src.MarketTrades["cid-1"] = []polymarketapi.ClobTrade{makeTrade("0xa", "cid-1", 1, 1, "", monitorNow)}
	// ten days old: not fresh under defaults
	src.WalletTrades["0xa"] = walletHistory("0xa", 2, 0, 1, 1, 10, monitorNow)

	sink := &recordingSink{}
	m := newTestMonitor(src, sink)
	m.RunCycle(context.Background())
	assert.Empty(t, sink.Alerts())

	cfg := testMonitorConfig()
	cfg.RecheckWindow = 0
	cfg.Rules.FreshWalletAgeDays = 30
	m.UpdateConfig(cfg)
	assert.Equal(t, time.Duration(0), m.Cache().Window())

	m.RunCycle(context.Background())
	require.Len(t, sink.Alerts(), 1)
	assert.Equal(t, FlagFreshWallet, sink.Alerts()[0].Type)
}

func TestFailSoft_Timeout(t *testing.T) {
	var called atomic.Bool
	out := failSoft(context.Background(), zap.NewNop(), 20*time.Millisecond, "slow",
		func(ctx context.Context) ([]int, error) {
			called.Store(true)
			<-ctx.Done()
			return []int{1}, ctx.Err()
		},
	)
	assert.True(t, called.Load())
	assert.Nil(t, out)
}
