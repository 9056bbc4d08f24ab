// Package ubci reads the broad-market index published by the UBCI index service.
package ubci

import (
	"context"
	"fmt"

	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

const (
	// DefaultURL serves the most recent datum of an index code
	DefaultURL = "https://ubci-api.ubcindex.com/v1/crix/index/recents"
	// DefaultCode is the Upbit top-10 market index
	DefaultCode = "IDX.UPBIT.UTTI"
)

// Index is one datum of a market index
type Index struct {
	Code             string  `json:"code"`
	TradePrice       float64 `json:"tradePrice"`
	OpeningPrice     float64 `json:"openingPrice"`
	PrevClosingPrice float64 `json:"prevClosingPrice"`
	Timestamp        int64   `json:"timestamp"`
}

// Client fetches index data over the shared REST client
type Client struct {
	rest *rest.Client
	url  string
	code string
}

// NewClient creates a new index client
func NewClient(restClient *rest.Client, url, code string) *Client {
	if url == "" {
		url = DefaultURL
	}
	if code == "" {
		code = DefaultCode
	}
	return &Client{rest: restClient, url: url, code: code}
}

// Latest returns the most recent index datum
func (c *Client) Latest(ctx context.Context) (Index, error) {
	var resp []Index
	if err := c.rest.GetUnsigned(ctx, c.url, rest.Params{"codes": c.code}, &resp); err != nil {
		return Index{}, fmt.Errorf("failed to get index %s: %w", c.code, err)
	}
	if len(resp) == 0 {
		return Index{}, &rest.APIError{Kind: rest.ErrParse, Message: "empty index response for " + c.code}
	}
	return resp[0], nil
}
