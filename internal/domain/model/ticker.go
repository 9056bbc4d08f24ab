package model

// Change directions reported with a ticker
const (
	ChangeRise = "RISE"
	ChangeEven = "EVEN"
	ChangeFall = "FALL"
)

// Ticker represents the current quote for a market
type Ticker struct {
	Market            string  `json:"market"`
	TradePrice        float64 `json:"trade_price"`
	AccTradePrice24h  float64 `json:"acc_trade_price_24h"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	PrevClosingPrice  float64 `json:"prev_closing_price"`
	Change            string  `json:"change"`             // RISE, EVEN, FALL
	ChangeRate        float64 `json:"change_rate"`        // unsigned, 0.05 == 5%
	SignedChangeRate  float64 `json:"signed_change_rate"`
	Timestamp         int64   `json:"timestamp"`          // unix millis
}
