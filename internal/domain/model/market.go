package model

import "strings"

// CashCurrency is the quote currency the bot trades against
const CashCurrency = "KRW"

// Caution flags published by the exchange for a market
const (
	CautionPriceFluctuations            = "PRICE_FLUCTUATIONS"
	CautionTradingVolumeSoaring         = "TRADING_VOLUME_SOARING"
	CautionDepositAmountSoaring         = "DEPOSIT_AMOUNT_SOARING"
	CautionGlobalPriceDifferences       = "GLOBAL_PRICE_DIFFERENCES"
	CautionConcentrationOfSmallAccounts = "CONCENTRATION_OF_SMALL_ACCOUNTS"
)

// Market represents a tradable market such as "KRW-BTC"
type Market struct {
	Market      string          `json:"market"`       // QUOTE-BASE
	KoreanName  string          `json:"korean_name"`
	EnglishName string          `json:"english_name"`
	Warning     bool            `json:"warning"`      // investment warning designation
	Caution     map[string]bool `json:"caution,omitempty"`
}

// Flagged reports whether the market carries a warning or any caution flag
func (m Market) Flagged() bool {
	if m.Warning {
		return true
	}
	for _, on := range m.Caution {
		if on {
			return true
		}
	}
	return false
}

// Quote returns the quote currency of the market
func (m Market) Quote() string {
	quote, _ := SplitMarket(m.Market)
	return quote
}

// SplitMarket splits "KRW-BTC" into ("KRW", "BTC")
func SplitMarket(market string) (quote, base string) {
	quote, base, ok := strings.Cut(market, "-")
	if !ok {
		return "", market
	}
	return quote, base
}

// BaseCurrency returns the traded currency of a market identifier
func BaseCurrency(market string) string {
	_, base := SplitMarket(market)
	return base
}

// MarketID joins quote and base currencies into a market identifier
func MarketID(quote, base string) string {
	return quote + "-" + base
}
