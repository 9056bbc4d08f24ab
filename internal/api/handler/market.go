package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

// maxTickerMarkets bounds one ticker request
const maxTickerMarkets = 100

// TickerSource provides snapshot quotes
type TickerSource interface {
	Tickers(ctx context.Context, markets []string) ([]model.Ticker, error)
}

// MarketHandler handles market-related endpoints
type MarketHandler struct {
	tickers TickerSource
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(tickers TickerSource) *MarketHandler {
	return &MarketHandler{
		tickers: tickers,
	}
}

// GetTicker returns ticker data for markets
// GET /api/v1/ticker?markets=KRW-BTC,KRW-ETH
func (h *MarketHandler) GetTicker(c *gin.Context) {
	marketsStr := c.Query("markets")
	if marketsStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "markets parameter required"})
		return
	}

	var markets []string
	for _, m := range strings.Split(marketsStr, ",") {
		if m = strings.TrimSpace(m); m != "" {
			markets = append(markets, strings.ToUpper(m))
		}
	}
	if len(markets) == 0 || len(markets) > maxTickerMarkets {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid markets parameter"})
		return
	}

	tickers, err := h.tickers.Tickers(c.Request.Context(), markets)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": rest.Kind(err)})
		return
	}

	c.JSON(http.StatusOK, tickers)
}

// statusFor maps an exchange error to the response status
func statusFor(err error) int {
	switch {
	case errors.Is(err, rest.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, rest.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
