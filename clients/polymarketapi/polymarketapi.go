package polymarketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"polysentry/config"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PolymarketApiClient struct {
	logger       *zap.Logger
	httpClient   *http.Client
	gammaBaseURL string
	clobBaseURL  string
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gammaBaseURL: cfg.Polymarket.GammaAPIURL,
		clobBaseURL:  cfg.Polymarket.ClobAPIURL,
	}
}

// ---- Gamma API types ----

type GammaMarket struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Question string `json:"question"`

	// Gamma uses camelCase; some older payloads use snake_case.
	ConditionID       string `json:"conditionId"`
	LegacyConditionID string `json:"condition_id"`

	Volume24hr float64 `json:"volume24hr"`
	VolumeNum  float64 `json:"volumeNum"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`
}

// MarketID returns the condition ID used to query CLOB trades.
func (m *GammaMarket) MarketID() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.LegacyConditionID
}

// Label returns a human readable name for the market.
func (m *GammaMarket) Label() string {
	switch {
	case m.Question != "":
		return m.Question
	case m.Slug != "":
		return m.Slug
	default:
		return m.MarketID()
	}
}

// GetOpenMarkets fetches up to limit non-closed markets.
// Markets without a condition ID are dropped since their trades can't be queried.
func (c *PolymarketApiClient) GetOpenMarkets(ctx context.Context, limit int) ([]GammaMarket, error) {
	if limit <= 0 {
		limit = 100
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("closed", "false")
	u.RawQuery = q.Encode()

	body, err := c.doGet(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("get open markets: %w", err)
	}

	markets, err := decodeList[GammaMarket](body, "markets")
	if err != nil {
		return nil, fmt.Errorf("get open markets: %w", err)
	}

	return lo.Filter(markets, func(m GammaMarket, _ int) bool {
		return !m.Closed && m.MarketID() != ""
	}), nil
}

// ---- CLOB API types ----

// FlexString holds a JSON value that the API may send either as a string or a number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// numbers and anything else are kept verbatim
	*f = FlexString(data)
	return nil
}

// Decimal parses the value, returning zero when it isn't numeric.
func (f FlexString) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(string(f)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ClobTrade is a trade record from the CLOB API.
type ClobTrade struct {
	ID            string     `json:"id"`
	Maker         string     `json:"maker"`
	MakerAddress  string     `json:"maker_address"`
	TraderAddress string     `json:"trader_address"`
	Market        string     `json:"market"`
	AssetID       string     `json:"asset_id"`
	Side          string     `json:"side"`
	Size          FlexString `json:"size"`
	Price         FlexString `json:"price"`
	Outcome       string     `json:"outcome"`
	Timestamp     FlexString `json:"timestamp"`
	MatchTime     FlexString `json:"match_time"`
}

// Wallet returns the acting wallet address, or "" if none is present.
func (t *ClobTrade) Wallet() string {
	return strings.TrimSpace(lo.CoalesceOrEmpty(t.Maker, t.MakerAddress, t.TraderAddress))
}

// MarketKey returns the market identifier used for frequency counting.
func (t *ClobTrade) MarketKey() string {
	return lo.CoalesceOrEmpty(t.Market, t.AssetID)
}

// Notional returns size * price. Unparseable fields count as zero.
func (t *ClobTrade) Notional() decimal.Decimal {
	return t.Size.Decimal().Mul(t.Price.Decimal())
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time parses the trade timestamp. Accepts unix seconds, unix milliseconds
// and RFC3339 strings, with or without a zone. Returns false when no timestamp could be parsed.
func (t *ClobTrade) Time() (time.Time, bool) {
	raw := strings.TrimSpace(string(t.Timestamp))
	if raw == "" {
		raw = strings.TrimSpace(string(t.MatchTime))
	}
	if raw == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		// 1e12 ms is 2001, 1e12 s is far in the future
		if n >= 1e12 {
			return time.UnixMilli(int64(n)), true
		}
		return time.Unix(int64(n), 0), true
	}

	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, true
	}
	// zone-less ISO forms are taken as UTC
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// GetMarketTrades fetches recent trades for a market condition ID.
func (c *PolymarketApiClient) GetMarketTrades(
	ctx context.Context,
	conditionID string,
	limit int,
) ([]ClobTrade, error) {
	conditionID = strings.TrimSpace(conditionID)
	if conditionID == "" {
		return nil, fmt.Errorf("conditionID is empty")
	}
	if limit <= 0 {
		limit = 100
	}

	u, err := url.Parse(c.clobBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid clobBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	q.Set("market", conditionID)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	body, err := c.doGet(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("get market trades: %w", err)
	}

	trades, err := decodeList[ClobTrade](body, "data")
	if err != nil {
		return nil, fmt.Errorf("get market trades: %w", err)
	}
	return trades, nil
}

// GetWalletTrades fetches the recent trade history of a wallet.
func (c *PolymarketApiClient) GetWalletTrades(
	ctx context.Context,
	wallet string,
	limit int,
) ([]ClobTrade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}
	if limit <= 0 {
		limit = 500
	}

	u, err := url.Parse(c.clobBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid clobBaseURL: %w", err)
	}
	u.Path = "/data/trades"

	q := u.Query()
	q.Set("maker", wallet)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	body, err := c.doGet(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("get wallet trades: %w", err)
	}

	trades, err := decodeList[ClobTrade](body, "data")
	if err != nil {
		return nil, fmt.Errorf("get wallet trades: %w", err)
	}
	return trades, nil
}

// decodeList accepts either a bare JSON array or an object wrapping the array under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	raw, ok := envelope[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

// doGet performs a GET request and returns the response body.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	return body, nil
}
