package model

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// OrderType represents the type of order
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypePrice  OrderType = "price"  // market buy by quote amount
	OrderTypeMarket OrderType = "market" // market sell by volume
	OrderTypeBest   OrderType = "best"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBid OrderSide = "bid" // Buy order
	OrderSideAsk OrderSide = "ask" // Sell order
)

// OrderState represents the exchange-side state of an order
type OrderState string

const (
	OrderStateWait   OrderState = "wait"
	OrderStateWatch  OrderState = "watch"
	OrderStateDone   OrderState = "done"
	OrderStateCancel OrderState = "cancel"
)

// IsTerminal reports whether the state is done or cancel
func (s OrderState) IsTerminal() bool {
	return s == OrderStateDone || s == OrderStateCancel
}

// Order is an open order snapshot as returned by the exchange
type Order struct {
	UUID            string     `json:"uuid"`
	Market          string     `json:"market"`
	Side            OrderSide  `json:"side"`
	Type            OrderType  `json:"ord_type"`
	Price           float64    `json:"price"`
	Volume          float64    `json:"volume"`
	RemainingVolume float64    `json:"remaining_volume"`
	ReservedFee     float64    `json:"reserved_fee"`
	PaidFee         float64    `json:"paid_fee"`
	ExecutedVolume  float64    `json:"executed_volume"`
	ExecutedFunds   float64    `json:"executed_funds"`
	State           OrderState `json:"state"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ClosedOrder is a terminal order whose money fields keep full precision
type ClosedOrder struct {
	UUID            string          `json:"uuid" db:"uuid"`
	Market          string          `json:"market" db:"market"`
	Side            OrderSide       `json:"side" db:"side"`
	Type            OrderType       `json:"ord_type" db:"ord_type"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Volume          decimal.Decimal `json:"volume" db:"volume"`
	RemainingVolume decimal.Decimal `json:"remaining_volume" db:"remaining_volume"`
	ReservedFee     decimal.Decimal `json:"reserved_fee" db:"reserved_fee"`
	PaidFee         decimal.Decimal `json:"paid_fee" db:"paid_fee"`
	ExecutedVolume  decimal.Decimal `json:"executed_volume" db:"executed_volume"`
	ExecutedFunds   decimal.Decimal `json:"executed_funds" db:"executed_funds"`
	State           OrderState      `json:"state" db:"state"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// OrderRequest is an outbound order
type OrderRequest struct {
	Market     string    `json:"market" validate:"required"`
	Side       OrderSide `json:"side" validate:"required,oneof=bid ask"`
	Type       OrderType `json:"ord_type" validate:"required,oneof=limit price market best"`
	Price      string    `json:"price,omitempty" validate:"omitempty,numeric"`
	Volume     string    `json:"volume,omitempty" validate:"omitempty,numeric"`
	Identifier string    `json:"identifier,omitempty" validate:"omitempty,max=100"`
}

var orderValidator = validator.New()

// ErrIncompleteLimitOrder is returned when a limit order lacks price or volume
var ErrIncompleteLimitOrder = errors.New("limit order requires price and volume")

// Validate checks the request's fields
func (r OrderRequest) Validate() error {
	if err := orderValidator.Struct(r); err != nil {
		return err
	}
	if r.Type == OrderTypeLimit && (r.Price == "" || r.Volume == "") {
		return ErrIncompleteLimitOrder
	}
	return nil
}

// Notional returns price * volume for limit orders
func (r OrderRequest) Notional() decimal.Decimal {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return decimal.Zero
	}
	volume, err := decimal.NewFromString(r.Volume)
	if err != nil {
		return decimal.Zero
	}
	return price.Mul(volume)
}
