package billing

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimals kept on every monetary amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Line is the calculator's view of a line item.
type Line struct {
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	UnitPriceSecondary *decimal.Decimal
}

// Amounts are the computed totals of an invoice. TotalSecondary is nil when no
// line carries a secondary-currency price.
type Amounts struct {
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	TotalSecondary *decimal.Decimal
}

// RoundMoney rounds half-up to two decimals. Amounts reaching it are never
// negative, so decimal's half-away-from-zero rounding is half-up here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Compute sums the lines before rounding once, then derives tax and total
// from the rounded subtotal.
func Compute(lines []Line, taxRate decimal.Decimal) Amounts {
	subtotal := decimal.Zero
	secondary := decimal.Zero
	hasSecondary := false
	for _, l := range lines {
		subtotal = subtotal.Add(l.Quantity.Mul(l.UnitPrice))
		if l.UnitPriceSecondary != nil {
			hasSecondary = true
			secondary = secondary.Add(l.Quantity.Mul(*l.UnitPriceSecondary))
		}
	}
	subtotal = RoundMoney(subtotal)
	tax := RoundMoney(subtotal.Mul(taxRate).Div(hundred))
	out := Amounts{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
	if hasSecondary {
		s := RoundMoney(secondary)
		out.TotalSecondary = &s
	}
	return out
}
