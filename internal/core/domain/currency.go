package domain

import "strings"

// Currency is the denomination of a wallet. Balances are always held in
// integer minor units of the wallet's currency.
type Currency string

const (
	CurrencyTKN  Currency = "TKN"
	CurrencyUSDT Currency = "USDT"
	CurrencyETH  Currency = "ETH"
)

// SupportedCurrencies lists every currency a wallet may be opened in.
var SupportedCurrencies = []Currency{CurrencyTKN, CurrencyUSDT, CurrencyETH}

// IsValid returns true if c is one of the supported currencies.
func (c Currency) IsValid() bool {
	for _, s := range SupportedCurrencies {
		if c == s {
			return true
		}
	}
	return false
}

// ParseCurrency normalizes s and reports whether it names a supported currency.
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsValid()
}
