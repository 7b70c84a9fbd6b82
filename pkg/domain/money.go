package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// UZS is the catalog currency.
var UZS = currency.MustParseISO("UZS")

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// ParsePrice parses display prices such as "2 500 000". Any Unicode space is
// treated as a digit group separator.
func ParsePrice(price string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ' ' {
			return -1
		}
		if r == ',' {
			return '.'
		}
		return r
	}, price)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price[%s] is not valid: %w", price, err)
	}
	return amount, nil
}

// SumPrices totals display prices. All items are priced in the catalog currency.
func SumPrices(prices []string) (Money, error) {
	total := Money{Amount: decimal.Zero, Currency: UZS}
	for _, p := range prices {
		amount, err := ParsePrice(p)
		if err != nil {
			return Money{}, err
		}
		total.Amount = total.Amount.Add(amount)
	}
	return total, nil
}

// Display formats the amount with space-grouped thousands, e.g. "6 500 000 UZS".
func (m Money) Display() string {
	whole := m.Amount.Truncate(0).Abs().String()
	var sb strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	sign := ""
	if m.Amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s %s", sign, sb.String(), m.Currency.String())
}

// OrderTotal sums the order's line prices.
func OrderTotal(o Order) (Money, error) {
	prices := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		prices = append(prices, item.Price)
	}
	return SumPrices(prices)
}
