package shared

import "github.com/shopspring/decimal"

// DefaultTaxRate is the Korean VAT rate.
var DefaultTaxRate = decimal.RequireFromString("0.1")

// TaxOf returns amount × rate rounded half away from zero to whole won.
func TaxOf(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// SplitVAT splits a VAT-inclusive total into supply and VAT parts.
func SplitVAT(total int64, rate decimal.Decimal) (supply, vat int64) {
	divisor := decimal.NewFromInt(1).Add(rate)
	supply = decimal.NewFromInt(total).Div(divisor).Round(0).IntPart()
	return supply, total - supply
}

// NonNegative clamps v at zero.
func NonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
