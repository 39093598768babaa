package settings

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var symbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "CN¥",
	"AUD": "A$",
	"CAD": "CA$",
}

var printer = message.NewPrinter(language.English)

// FormatMoney renders amount in the given ISO 4217 currency with grouping,
// e.g. "₹1,200.00" or "-₹200.00". Unknown codes fall back to dollars.
func FormatMoney(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "$" + amount.StringFixed(2)
	}

	scale, _ := currency.Standard.Rounding(unit)
	abs := amount.Abs().Round(int32(scale))
	digits := printer.Sprintf(fmt.Sprintf("%%.%df", scale), abs.InexactFloat64())

	sign := ""
	if amount.Round(int32(scale)).IsNegative() {
		sign = "-"
	}
	if sym, ok := symbols[code]; ok {
		return sign + sym + digits
	}
	return sign + code + " " + digits
}

// FormatMoney renders amount in the store currency.
func (s Settings) FormatMoney(amount decimal.Decimal) string {
	return FormatMoney(amount, s.Currency)
}

// ShippingPolicy decides the shipping fee for a subtotal.
type ShippingPolicy struct {
	// FreeThreshold is exclusive: shipping is free only above it.
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// DefaultShipping is free above 100, 15 otherwise.
func DefaultShipping() ShippingPolicy {
	return ShippingPolicy{
		FreeThreshold: decimal.NewFromInt(100),
		FlatFee:       decimal.NewFromInt(15),
	}
}

// Fee returns the shipping charged on subtotal.
func (p ShippingPolicy) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}
