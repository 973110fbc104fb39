package shared

import "github.com/shopspring/decimal"

// DefaultTolerance is the largest residual treated as zero by balance checks.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Round2 rounds half away from zero to two places.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// WithinTolerance reports |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
