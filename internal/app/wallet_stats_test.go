package app

import (
	"polysentry/clients/polymarketapi"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWalletStats_Empty(t *testing.T) {
	now := time.Now()
	assert.Nil(t, ComputeWalletStats(nil, now))
	assert.Nil(t, ComputeWalletStats([]polymarketapi.ClobTrade{}, now))
}

func TestComputeWalletStats_NoTimestamps(t *testing.T) {
	trades := []polymarketapi.ClobTrade{
		{Maker: "0xabc", Size: "10", Price: "0.5"},
		{Maker: "0xabc", Size: "10", Price: "0.5", Timestamp: "not-a-time"},
	}
	assert.Nil(t, ComputeWalletStats(trades, time.Now()))
}

func TestComputeWalletStats_Aggregates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	trades := []polymarketapi.ClobTrade{
		makeTrade("0xabc", "m1", 100, 0.5, outcomeWon, now.Add(-48*time.Hour)),
		makeTrade("0xabc", "m1", 20, 0.25, "lost", now.Add(-24*time.Hour)),
		makeTrade("0xabc", "m2", 10, 1, outcomeWon, now.Add(-1*time.Hour)),
		makeTrade("0xabc", "m3", 4, 0.5, "", now.Add(-30*time.Minute)),
	}

	stats := ComputeWalletStats(trades, now)
	require.NotNil(t, stats)

	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinCount)
	assert.InDelta(t, 0.5, stats.WinRate, 1e-9)
	// 50 + 5 + 10 + 2
	assert.True(t, decimal.NewFromInt(67).Equal(stats.TotalVolume), "volume %s", stats.TotalVolume)
	assert.True(t, decimal.RequireFromString("16.75").Equal(stats.AvgTradeSize), "avg %s", stats.AvgTradeSize)
	assert.InDelta(t, 2.0, stats.WalletAgeDays, 1e-9)
	assert.Equal(t, now.Add(-48*time.Hour).Unix(), stats.FirstTradeAt.Unix())
	assert.Equal(t, map[string]int{"m1": 2, "m2": 1, "m3": 1}, stats.MarketFrequency)
}

func TestComputeWalletStats_MalformedNumbersCountAsZero(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	trades := []polymarketapi.ClobTrade{
		makeTrade("0xabc", "m1", 10, 2, "", now.Add(-time.Hour)),
		{Maker: "0xabc", Market: "m1", Size: "abc", Price: "0.5", Timestamp: "1699990000"},
		{Maker: "0xabc", Market: "m1", Size: "5", Price: "", Timestamp: "1699990000"},
	}

	stats := ComputeWalletStats(trades, now)
	require.NotNil(t, stats)

	assert.Equal(t, 3, stats.TotalTrades)
	assert.True(t, decimal.NewFromInt(20).Equal(stats.TotalVolume))
	assert.True(t, stats.TotalVolume.Div(decimal.NewFromInt(3)).Equal(stats.AvgTradeSize))
	assert.Zero(t, stats.WinRate)
}

func TestComputeWalletStats_MarketKeyFallbacks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	trades := []polymarketapi.ClobTrade{
		{Maker: "0xabc", AssetID: "asset-1", Size: "1", Price: "1", Timestamp: "1699990000"},
		{Maker: "0xabc", Size: "1", Price: "1", Timestamp: "1699990000"},
	}

	stats := ComputeWalletStats(trades, now)
	require.NotNil(t, stats)

	// trades without any market key are counted but not keyed
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, map[string]int{"asset-1": 1}, stats.MarketFrequency)
}

func TestComputeWalletStats_MillisecondAndMatchTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	earliest := now.Add(-72 * time.Hour)
	trades := []polymarketapi.ClobTrade{
		{Maker: "0xabc", Size: "1", Price: "1", Timestamp: polymarketapi.FlexString(decimal.NewFromInt(earliest.UnixMilli()).String())},
		{Maker: "0xabc", Size: "1", Price: "1", MatchTime: polymarketapi.FlexString(now.Add(-time.Hour).Format(time.RFC3339))},
	}

	stats := ComputeWalletStats(trades, now)
	require.NotNil(t, stats)
	assert.InDelta(t, 3.0, stats.WalletAgeDays, 1e-6)
}

func TestComputeWalletStats_WinRateBounded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for wins := 0; wins <= 5; wins++ {
		stats := ComputeWalletStats(walletHistory("0xabc", 5, wins, 1, 1, 10, now), now)
		require.NotNil(t, stats)
		assert.GreaterOrEqual(t, stats.WinRate, 0.0)
		assert.LessOrEqual(t, stats.WinRate, 1.0)
		assert.InDelta(t, float64(wins)/5, stats.WinRate, 1e-9)
	}
}
