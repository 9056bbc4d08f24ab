package quotation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

const (
	// DefaultBaseURL is the exchange REST root
	DefaultBaseURL = "https://api.upbit.com"

	// MaxCandleCount is the per-request candle cap
	MaxCandleCount = 200

	candleTimeLayout = "2006-01-02T15:04:05"
)

// SortOrder selects the chronological direction of returned candles
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// Client represents Upbit Quotation API client
type Client struct {
	rest    *rest.Client
	baseURL string
}

// NewClient creates a new Quotation API client
func NewClient(restClient *rest.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		rest:    restClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type marketResponse struct {
	Market        string `json:"market"`
	KoreanName    string `json:"korean_name"`
	EnglishName   string `json:"english_name"`
	MarketWarning string `json:"market_warning,omitempty"`
	MarketEvent   *struct {
		Warning bool            `json:"warning"`
		Caution map[string]bool `json:"caution"`
	} `json:"market_event,omitempty"`
}

type candleResponse struct {
	Market               string  `json:"market"`
	CandleDateTimeUTC    string  `json:"candle_date_time_utc"`
	OpeningPrice         float64 `json:"opening_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	TradePrice           float64 `json:"trade_price"`
	CandleAccTradePrice  float64 `json:"candle_acc_trade_price"`
	CandleAccTradeVolume float64 `json:"candle_acc_trade_volume"`
	Unit                 int     `json:"unit"`
}

// GetMarkets retrieves all available markets with their caution flags
func (c *Client) GetMarkets(ctx context.Context) ([]model.Market, error) {
	var resp []marketResponse
	if err := c.rest.GetUnsigned(ctx, c.baseURL+"/v1/market/all?isDetails=true", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get markets: %w", err)
	}

	markets := make([]model.Market, 0, len(resp))
	for _, m := range resp {
		market := model.Market{
			Market:      m.Market,
			KoreanName:  m.KoreanName,
			EnglishName: m.EnglishName,
			Warning:     m.MarketWarning == "CAUTION",
		}
		if m.MarketEvent != nil {
			market.Warning = market.Warning || m.MarketEvent.Warning
			market.Caution = m.MarketEvent.Caution
		}
		markets = append(markets, market)
	}

	return markets, nil
}

// GetTickers retrieves one ticker per requested market, in request order
func (c *Client) GetTickers(ctx context.Context, markets []string) ([]model.Ticker, error) {
	if len(markets) == 0 {
		return nil, nil
	}

	var resp []model.Ticker
	params := rest.Params{"markets": strings.Join(markets, ",")}
	if err := c.rest.GetUnsigned(ctx, c.baseURL+"/v1/ticker", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	byMarket := make(map[string]model.Ticker, len(resp))
	for _, t := range resp {
		byMarket[t.Market] = t
	}

	tickers := make([]model.Ticker, 0, len(markets))
	for _, m := range markets {
		t, ok := byMarket[m]
		if !ok {
			return nil, &rest.APIError{Kind: rest.ErrParse, Message: "missing ticker for " + m}
		}
		tickers = append(tickers, t)
	}

	return tickers, nil
}

// GetTicker retrieves the ticker of a single market
func (c *Client) GetTicker(ctx context.Context, market string) (model.Ticker, error) {
	tickers, err := c.GetTickers(ctx, []string{market})
	if err != nil {
		return model.Ticker{}, err
	}
	return tickers[0], nil
}

// GetMinuteCandles retrieves up to count minute candles of the given unit
func (c *Client) GetMinuteCandles(ctx context.Context, market string, unit, count int, order SortOrder) ([]model.Candle, error) {
	if !model.ValidCandleUnit(unit) {
		return nil, fmt.Errorf("%w: unsupported candle unit %d", rest.ErrBadRequest, unit)
	}
	if count < 1 || count > MaxCandleCount {
		return nil, fmt.Errorf("%w: candle count %d out of range [1,%d]", rest.ErrBadRequest, count, MaxCandleCount)
	}

	var resp []candleResponse
	endpoint := c.baseURL + "/v1/candles/minutes/" + strconv.Itoa(unit)
	params := rest.Params{"market": market, "count": count}
	if err := c.rest.GetUnsigned(ctx, endpoint, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", market, err)
	}

	candles := make([]model.Candle, 0, len(resp))
	for _, r := range resp {
		ts, err := time.ParseInLocation(candleTimeLayout, r.CandleDateTimeUTC, time.UTC)
		if err != nil {
			return nil, &rest.APIError{Kind: rest.ErrParse, Message: fmt.Sprintf("candle time %q: %v", r.CandleDateTimeUTC, err)}
		}
		candles = append(candles, model.Candle{
			Market:         market,
			UnitMinutes:    unit,
			Timestamp:      ts,
			OpenPrice:      r.OpeningPrice,
			HighPrice:      r.HighPrice,
			LowPrice:       r.LowPrice,
			ClosePrice:     r.TradePrice,
			AccTradePrice:  r.CandleAccTradePrice,
			AccTradeVolume: r.CandleAccTradeVolume,
		})
	}

	// the exchange returns newest first
	if order == Ascending {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}

	return candles, nil
}
