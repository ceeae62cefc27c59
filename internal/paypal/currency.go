package paypal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCurrency is returned for currencies the Payouts API does not
// accept.
var ErrUnsupportedCurrency = errors.New("paypal: unsupported currency")

// currencyExponents maps each currency PayPal pays out in to the number of
// decimal places it allows. HUF, JPY and TWD take whole units only.
var currencyExponents = map[string]int{
	"AUD": 2, "BRL": 2, "CAD": 2, "CHF": 2, "CNY": 2, "CZK": 2,
	"DKK": 2, "EUR": 2, "GBP": 2, "HKD": 2, "HUF": 0, "ILS": 2,
	"JPY": 0, "MXN": 2, "MYR": 2, "NOK": 2, "NZD": 2, "PHP": 2,
	"PLN": 2, "SEK": 2, "SGD": 2, "THB": 2, "TWD": 0, "USD": 2,
}

// SupportedCurrency reports whether code (any case) can be paid out.
func SupportedCurrency(code string) bool {
	_, ok := currencyExponents[strings.ToUpper(code)]
	return ok
}

func currencyExponent(code string) int {
	if exp, ok := currencyExponents[strings.ToUpper(code)]; ok {
		return exp
	}
	return 2
}

// formatMinorUnits renders an amount in the currency's minor units as the
// decimal string PayPal expects: 1050 USD -> "10.50", 1050 JPY -> "1050".
func formatMinorUnits(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	exp := currencyExponent(currency)
	if exp == 0 {
		return fmt.Sprintf("%s%d", sign, amount)
	}
	scale := int64(1)
	for i := 0; i < exp; i++ {
		scale *= 10
	}
	return fmt.Sprintf("%s%d.%0*d", sign, amount/scale, exp, amount%scale)
}
