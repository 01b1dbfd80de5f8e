package app

import (
	"context"
	"fmt"
	"polysentry/clients/notifier"
	"polysentry/clients/polymarketapi"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockChannel is a testify mock of notifier.Channel.
type MockChannel struct {
	mock.Mock
	name string
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (m *MockChannel) Name() string            { return m.name }
func (m *MockChannel) Markup() notifier.Markup { return notifier.PlainMarkup{} }
func (m *MockChannel) Enabled() bool           { return true }
func (m *MockChannel) Close() error            { return nil }

func (m *MockChannel) Send(ctx context.Context, chatID, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *MockChannel) Listen(ctx context.Context, handler notifier.CommandHandler) error {
	<-ctx.Done()
	return nil
}

// FakeMarketSource serves canned markets and trades. Errors and panics can be
// injected per key.
type FakeMarketSource struct {
	mu sync.Mutex

	Markets      []polymarketapi.GammaMarket
	MarketsErr   error
	MarketTrades map[string][]polymarketapi.ClobTrade
	MarketErrs   map[string]error
	WalletTrades map[string][]polymarketapi.ClobTrade
	WalletErrs   map[string]error
	WalletPanics map[string]bool
	Block        chan struct{} // GetOpenMarkets waits on it when set

	walletCalls map[string]int
}

func NewFakeMarketSource() *FakeMarketSource {
	return &FakeMarketSource{
		MarketTrades: make(map[string][]polymarketapi.ClobTrade),
		MarketErrs:   make(map[string]error),
		WalletTrades: make(map[string][]polymarketapi.ClobTrade),
		WalletErrs:   make(map[string]error),
		WalletPanics: make(map[string]bool),
		walletCalls:  make(map[string]int),
	}
}

func (f *FakeMarketSource) GetOpenMarkets(ctx context.Context, limit int) ([]polymarketapi.GammaMarket, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.MarketsErr != nil {
		return nil, f.MarketsErr
	}
	return f.Markets, nil
}

func (f *FakeMarketSource) GetMarketTrades(ctx context.Context, conditionID string, limit int) ([]polymarketapi.ClobTrade, error) {
	if err := f.MarketErrs[conditionID]; err != nil {
		return nil, err
	}
	return f.MarketTrades[conditionID], nil
}

func (f *FakeMarketSource) GetWalletTrades(ctx context.Context, wallet string, limit int) ([]polymarketapi.ClobTrade, error) {
	f.mu.Lock()
	f.walletCalls[wallet]++
	f.mu.Unlock()

	if f.WalletPanics[wallet] {
		panic("boom: " + wallet)
	}
	if err := f.WalletErrs[wallet]; err != nil {
		return nil, err
	}
	return f.WalletTrades[wallet], nil
}

func (f *FakeMarketSource) WalletCalls(wallet string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walletCalls[wallet]
}

// recordingSink captures broadcast alerts.
type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSink) Broadcast(_ context.Context, alert Alert) BroadcastResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return BroadcastResult{Delivered: 1}
}

func (s *recordingSink) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

// panickingSink panics on every broadcast.
type panickingSink struct{}

func (panickingSink) Broadcast(context.Context, Alert) BroadcastResult {
	panic("sink exploded")
}

// makeTrade builds a trade with a unix-seconds timestamp.
func makeTrade(wallet, market string, size, price float64, outcome string, at time.Time) polymarketapi.ClobTrade {
	return polymarketapi.ClobTrade{
		Maker:     wallet,
		Market:    market,
		Size:      polymarketapi.FlexString(fmt.Sprint(size)),
		Price:     polymarketapi.FlexString(fmt.Sprint(price)),
		Outcome:   outcome,
		Timestamp: polymarketapi.FlexString(fmt.Sprint(at.Unix())),
	}
}

// walletHistory builds n trades of notional size*price starting daysAgo days
// before now, with the first wins trades marked as won.
func walletHistory(wallet string, n, wins int, size, price float64, daysAgo float64, now time.Time) []polymarketapi.ClobTrade {
	first := now.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))
	trades := make([]polymarketapi.ClobTrade, 0, n)
	for i := 0; i < n; i++ {
		outcome := ""
		if i < wins {
			outcome = outcomeWon
		}
		trades = append(trades, makeTrade(wallet, fmt.Sprintf("m%d", i%3), size, price, outcome, first.Add(time.Duration(i)*time.Minute)))
	}
	return trades
}

func marketFixture(conditionID, question string) polymarketapi.GammaMarket {
	return polymarketapi.GammaMarket{
		ID:          "id-" + conditionID,
		ConditionID: conditionID,
		Question:    question,
		Active:      true,
	}
}
