// Package indicator implements the technical indicators used by the scalping strategy.
// All functions are pure and expect series in chronological order.
package indicator

import "errors"

var (
	// ErrInsufficientData is returned when the series is too short for the period
	ErrInsufficientData = errors.New("INSUFFICIENT_DATA")
	// ErrInvalidPeriod is returned for a non-positive period
	ErrInvalidPeriod = errors.New("invalid period")
)

// EMA returns the last value of the Wilder-smoothed moving average of series
// with alpha = 1/period, seeded with the first element. An empty series yields 0.
func EMA(series []float64, period int) float64 {
	if len(series) == 0 || period <= 0 {
		return 0
	}

	alpha := 1 / float64(period)
	ema := series[0]
	for _, x := range series[1:] {
		ema = alpha*x + (1-alpha)*ema
	}
	return ema
}

// MinOrderQuantity returns the volume needed to spend minAmount at price.
func MinOrderQuantity(minAmount, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return minAmount / price
}
