// Package billing computes report costs and the deterministic service
// breakdown attached to AI-generated reports.
package billing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"servicebay/pkg/domain"
)

// PartsCost sums cost × quantity over parts, rounded to cents.
func PartsCost(parts []domain.Part) float64 {
	return partsTotal(parts).Round(2).InexactFloat64()
}

// TotalCost returns laborCost + PartsCost(parts), rounded to cents.
func TotalCost(laborCost float64, parts []domain.Part) float64 {
	return decimal.NewFromFloat(laborCost).Add(partsTotal(parts)).Round(2).InexactFloat64()
}

func partsTotal(parts []domain.Part) decimal.Decimal {
	return lo.Reduce(parts, func(acc decimal.Decimal, p domain.Part, _ int) decimal.Decimal {
		return acc.Add(decimal.NewFromFloat(p.Cost).Mul(decimal.NewFromInt(int64(p.Quantity))))
	}, decimal.Zero)
}
