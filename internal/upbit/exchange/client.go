package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

const (
	// DefaultBaseURL is the exchange REST root
	DefaultBaseURL = "https://api.upbit.com"

	openOrdersPageSize   = 100
	closedOrdersPageSize = 1000
)

// Codes returned when cancelling an order that already reached a terminal state
var alreadyClosedCodes = map[string]bool{
	"done_order":     true,
	"canceled_order": true,
}

// Client represents Upbit Exchange API client
type Client struct {
	rest    *rest.Client
	baseURL string
}

// NewClient creates a new Exchange API client
func NewClient(restClient *rest.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		rest:    restClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// accountResponse represents user's account balance
type accountResponse struct {
	Currency            string `json:"currency"`
	Balance             string `json:"balance"`
	Locked              string `json:"locked"`
	AvgBuyPrice         string `json:"avg_buy_price"`
	AvgBuyPriceModified bool   `json:"avg_buy_price_modified"`
	UnitCurrency        string `json:"unit_currency"`
}

// orderResponse represents the response from order API
type orderResponse struct {
	UUID            string    `json:"uuid"`
	Side            string    `json:"side"`
	OrdType         string    `json:"ord_type"`
	Price           *string   `json:"price"`
	State           string    `json:"state"`
	Market          string    `json:"market"`
	CreatedAt       time.Time `json:"created_at"`
	Volume          *string   `json:"volume"`
	RemainingVolume *string   `json:"remaining_volume"`
	ReservedFee     *string   `json:"reserved_fee"`
	RemainingFee    *string   `json:"remaining_fee"`
	PaidFee         *string   `json:"paid_fee"`
	Locked          *string   `json:"locked"`
	ExecutedVolume  *string   `json:"executed_volume"`
	ExecutedFunds   *string   `json:"executed_funds"`
	TradesCount     int       `json:"trades_count"`
}

// GetAccounts retrieves all non-zero balances
func (c *Client) GetAccounts(ctx context.Context) ([]model.Account, error) {
	var resp []accountResponse
	if err := c.rest.GetSigned(ctx, c.baseURL+"/v1/accounts", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(resp))
	for _, a := range resp {
		account := model.Account{
			Currency:     a.Currency,
			Balance:      parseFloat(&a.Balance),
			Locked:       parseFloat(&a.Locked),
			AvgBuyPrice:  parseFloat(&a.AvgBuyPrice),
			UnitCurrency: a.UnitCurrency,
		}
		if account.Balance <= 0 && account.Locked <= 0 {
			continue
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// PlaceOrder places a new order. A request the exchange refuses yields an
// error for which IsOrderRejected reports the exchange code.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	if err := req.Validate(); err != nil {
		return model.Order{}, fmt.Errorf("%w: invalid order request: %v", rest.ErrBadRequest, err)
	}

	params := rest.Params{
		"market":   req.Market,
		"side":     string(req.Side),
		"ord_type": string(req.Type),
	}
	if req.Price != "" {
		params["price"] = req.Price
	}
	if req.Volume != "" {
		params["volume"] = req.Volume
	}
	if req.Identifier != "" {
		params["identifier"] = req.Identifier
	}

	var resp orderResponse
	if err := c.rest.PostSigned(ctx, c.baseURL+"/v1/orders", params, &resp); err != nil {
		return model.Order{}, fmt.Errorf("failed to place order on %s: %w", req.Market, err)
	}

	return toOrder(resp), nil
}

// GetOrder retrieves order information
func (c *Client) GetOrder(ctx context.Context, orderUUID string) (model.Order, error) {
	var resp orderResponse
	if err := c.rest.GetSigned(ctx, c.baseURL+"/v1/order", rest.Params{"uuid": orderUUID}, &resp); err != nil {
		return model.Order{}, fmt.Errorf("failed to get order %s: %w", orderUUID, err)
	}
	return toOrder(resp), nil
}

// GetOpenOrders retrieves every order of the market in state wait or watch
func (c *Client) GetOpenOrders(ctx context.Context, market string) ([]model.Order, error) {
	var orders []model.Order

	for page := 1; ; page++ {
		params := rest.Params{
			"market":   market,
			"states":   []string{string(model.OrderStateWait), string(model.OrderStateWatch)},
			"page":     page,
			"limit":    openOrdersPageSize,
			"order_by": "desc",
		}

		var resp []orderResponse
		if err := c.rest.GetSigned(ctx, c.baseURL+"/v1/orders/open", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to get open orders for %s: %w", market, err)
		}

		for _, r := range resp {
			orders = append(orders, toOrder(r))
		}
		if len(resp) < openOrdersPageSize {
			return orders, nil
		}
	}
}

// CancelOrder cancels an existing order and returns its snapshot.
// Cancelling an order that is already done or cancelled returns its current snapshot.
func (c *Client) CancelOrder(ctx context.Context, orderUUID string) (model.Order, error) {
	var resp orderResponse
	err := c.rest.DeleteSigned(ctx, c.baseURL+"/v1/order", rest.Params{"uuid": orderUUID}, &resp)
	if err == nil {
		return toOrder(resp), nil
	}

	if code, ok := IsOrderRejected(err); ok && alreadyClosedCodes[code] {
		return c.GetOrder(ctx, orderUUID)
	}
	return model.Order{}, fmt.Errorf("failed to cancel order %s: %w", orderUUID, err)
}

// GetClosedOrders retrieves done and cancelled orders created within [start, end]
func (c *Client) GetClosedOrders(ctx context.Context, market string, start, end time.Time) ([]model.ClosedOrder, error) {
	params := rest.Params{
		"market":     market,
		"states":     []string{string(model.OrderStateDone), string(model.OrderStateCancel)},
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
		"limit":      closedOrdersPageSize,
		"order_by":   "desc",
	}

	var resp []orderResponse
	if err := c.rest.GetSigned(ctx, c.baseURL+"/v1/orders/closed", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get closed orders for %s: %w", market, err)
	}

	orders := make([]model.ClosedOrder, 0, len(resp))
	for _, r := range resp {
		orders = append(orders, toClosedOrder(r))
	}
	return orders, nil
}

// IsOrderRejected reports whether err is an exchange refusal and returns its code
func IsOrderRejected(err error) (string, bool) {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) && errors.Is(apiErr.Kind, rest.ErrBadRequest) && apiErr.Status != 0 {
		return apiErr.Code, true
	}
	return "", false
}

func toOrder(r orderResponse) model.Order {
	return model.Order{
		UUID:            r.UUID,
		Market:          r.Market,
		Side:            model.OrderSide(r.Side),
		Type:            model.OrderType(r.OrdType),
		Price:           parseFloat(r.Price),
		Volume:          parseFloat(r.Volume),
		RemainingVolume: parseFloat(r.RemainingVolume),
		ReservedFee:     parseFloat(r.ReservedFee),
		PaidFee:         parseFloat(r.PaidFee),
		ExecutedVolume:  parseFloat(r.ExecutedVolume),
		ExecutedFunds:   parseFloat(r.ExecutedFunds),
		State:           model.OrderState(r.State),
		CreatedAt:       r.CreatedAt,
	}
}

func toClosedOrder(r orderResponse) model.ClosedOrder {
	return model.ClosedOrder{
		UUID:            r.UUID,
		Market:          r.Market,
		Side:            model.OrderSide(r.Side),
		Type:            model.OrderType(r.OrdType),
		Price:           parseDecimal(r.Price),
		Volume:          parseDecimal(r.Volume),
		RemainingVolume: parseDecimal(r.RemainingVolume),
		ReservedFee:     parseDecimal(r.ReservedFee),
		PaidFee:         parseDecimal(r.PaidFee),
		ExecutedVolume:  parseDecimal(r.ExecutedVolume),
		ExecutedFunds:   parseDecimal(r.ExecutedFunds),
		State:           model.OrderState(r.State),
		CreatedAt:       r.CreatedAt,
	}
}

func parseDecimal(s *string) decimal.Decimal {
	if s == nil || *s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(s *string) float64 {
	return parseDecimal(s).InexactFloat64()
}
