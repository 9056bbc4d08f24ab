package model

// Signal is the decision emitted by the strategy for one market
type Signal int

const (
	SignalNoAction Signal = iota
	SignalBuy
	SignalTakeProfit
	SignalStopLoss
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalTakeProfit:
		return "TAKE_PROFIT"
	case SignalStopLoss:
		return "STOP_LOSS"
	default:
		return "NO_ACTION"
	}
}

// IsBuy reports whether the signal opens a position
func (s Signal) IsBuy() bool {
	return s == SignalBuy
}

// IsSell reports whether the signal is one of the sell variants
func (s Signal) IsSell() bool {
	return s == SignalTakeProfit || s == SignalStopLoss
}
