package model

import (
	"math"
	"time"
)

// Minute units accepted by the candle endpoint
var CandleUnits = []int{1, 3, 5, 10, 15, 30, 60, 240}

// ValidCandleUnit reports whether unit is an accepted minute unit
func ValidCandleUnit(unit int) bool {
	for _, u := range CandleUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// Candle represents OHLCV (Open, High, Low, Close, Volume) candlestick data
type Candle struct {
	Market         string    `json:"market"`         // e.g., "KRW-BTC"
	UnitMinutes    int       `json:"unit"`           // bar width in minutes
	Timestamp      time.Time `json:"timestamp"`      // Candle open time (UTC)
	OpenPrice      float64   `json:"opening_price"`
	HighPrice      float64   `json:"high_price"`
	LowPrice       float64   `json:"low_price"`
	ClosePrice     float64   `json:"trade_price"`    // Last trade price
	AccTradePrice  float64   `json:"candle_acc_trade_price"`
	AccTradeVolume float64   `json:"candle_acc_trade_volume"`
}

// Valid checks low <= min(open, close) <= max(open, close) <= high
func (c Candle) Valid() bool {
	lo := math.Min(c.OpenPrice, c.ClosePrice)
	hi := math.Max(c.OpenPrice, c.ClosePrice)
	return c.LowPrice <= lo && hi <= c.HighPrice
}

// Closes returns the close prices of candles in order
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.ClosePrice
	}
	return closes
}
