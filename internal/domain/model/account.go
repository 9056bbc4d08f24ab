package model

// Account represents a per-currency holding
type Account struct {
	Currency     string  `json:"currency"`
	Balance      float64 `json:"balance"`
	Locked       float64 `json:"locked"`
	AvgBuyPrice  float64 `json:"avg_buy_price"`
	UnitCurrency string  `json:"unit_currency"` // quote currency, usually KRW
}

// IsCash reports whether the entry holds the quote currency itself
func (a Account) IsCash() bool {
	return a.Currency == a.UnitCurrency
}

// Market returns the market the holding trades on, e.g. "KRW-BTC"
func (a Account) Market() string {
	unit := a.UnitCurrency
	if unit == "" {
		unit = CashCurrency
	}
	return MarketID(unit, a.Currency)
}

// CostBasis returns avgBuyPrice * balance
func (a Account) CostBasis() float64 {
	return a.AvgBuyPrice * a.Balance
}

// FindAccount returns the holding for currency, if any
func FindAccount(accounts []Account, currency string) (Account, bool) {
	for _, a := range accounts {
		if a.Currency == currency {
			return a, true
		}
	}
	return Account{}, false
}
