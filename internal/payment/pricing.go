package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
)

const (
	MinBundleItems     = 2
	MaxBundleDiscount  = 50
	moneyDecimalPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// BundleTotal is round(Σ prices × (1 − discount/100), 2).
func BundleTotal(prices []decimal.Decimal, discountPercent decimal.Decimal) decimal.Decimal {
	return discountFactor(discountPercent).Mul(decimal.Sum(decimal.Zero, prices...)).Round(moneyDecimalPlaces)
}

// AllocateBundle splits total over prices proportionally, rounding every
// share to cents. The last share absorbs the rounding remainder so the
// allocations always add up to total.
func AllocateBundle(prices []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(prices))
	if len(prices) == 0 {
		return shares
	}

	sum := decimal.Sum(decimal.Zero, prices...)
	allocated := decimal.Zero
	for i, price := range prices[:len(prices)-1] {
		share := decimal.Zero
		if sum.IsPositive() {
			share = price.Mul(total).Div(sum).Round(moneyDecimalPlaces)
		}
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[len(prices)-1] = total.Sub(allocated)
	return shares
}

// ValidateDiscount rejects discounts outside [0, max] instead of clamping them.
func ValidateDiscount(discountPercent decimal.Decimal, max int) error {
	if discountPercent.IsNegative() || discountPercent.GreaterThan(decimal.NewFromInt(int64(max))) {
		return internal.NewInvalidRequestError(
			fmt.Sprintf("discount must be between 0 and %d percent", max),
			internal.ErrCodeInvalidDiscount)
	}
	return nil
}

func discountFactor(discountPercent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
}
