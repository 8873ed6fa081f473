// Package pricing computes checkout totals from cart lines, shipping address
// presence and the selected delivery-date tier.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vinrain-coder/shoepedi-sub000/internal/setting"
)

// Places is the number of decimals every persisted or compared amount keeps.
const Places = 2

// Round rounds half away from zero to two decimals.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

type Input struct {
	Items              []Line
	HasShippingAddress bool
	// DeliveryDateIndex is nil when the client did not pick a tier.
	DeliveryDateIndex *int
	Now               time.Time
}

// Result keeps ShippingPrice and TaxPrice nil while they cannot be
// determined yet. TotalPrice counts them as zero.
type Result struct {
	ItemsPrice           decimal.Decimal
	ShippingPrice        *decimal.Decimal
	TaxPrice             *decimal.Decimal
	TotalPrice           decimal.Decimal
	DeliveryDateIndex    int
	ExpectedDeliveryDate time.Time
}

// Determined reports whether shipping and tax are both known.
func (r Result) Determined() bool {
	return r.ShippingPrice != nil && r.TaxPrice != nil
}

// TaxPolicy computes tax for a rounded items price.
type TaxPolicy interface {
	Tax(itemsPrice decimal.Decimal) decimal.Decimal
}

// NoTax is the default policy.
type NoTax struct{}

func (NoTax) Tax(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// FlatRate charges Rate (e.g. 0.075) on the items price.
type FlatRate struct {
	Rate decimal.Decimal
}

func (f FlatRate) Tax(itemsPrice decimal.Decimal) decimal.Decimal {
	return Round(itemsPrice.Mul(f.Rate))
}

func ItemsPrice(items []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return Round(sum)
}

// ResolveTier returns the tier for index, falling back to the last tier when
// index is nil or out of range. ok is false when no tiers are configured.
func ResolveTier(tiers []setting.DeliveryDate, index *int) (setting.DeliveryDate, int, bool) {
	if len(tiers) == 0 {
		return setting.DeliveryDate{}, -1, false
	}
	i := len(tiers) - 1
	if index != nil && *index >= 0 && *index < len(tiers) {
		i = *index
	}
	return tiers[i], i, true
}

// Calc is pure: the same input always yields the same result.
func Calc(in Input, tiers []setting.DeliveryDate, tax TaxPolicy) Result {
	if tax == nil {
		tax = NoTax{}
	}

	res := Result{ItemsPrice: ItemsPrice(in.Items)}

	tier, idx, ok := ResolveTier(tiers, in.DeliveryDateIndex)
	res.DeliveryDateIndex = idx
	if ok {
		res.ExpectedDeliveryDate = in.Now.AddDate(0, 0, tier.DaysToDeliver)
	}

	if in.HasShippingAddress {
		if ok {
			shipping := Round(tier.ShippingPrice)
			if tier.FreeShippingMinPrice.IsPositive() && res.ItemsPrice.GreaterThanOrEqual(tier.FreeShippingMinPrice) {
				shipping = decimal.Zero
			}
			res.ShippingPrice = &shipping
		}
		t := Round(tax.Tax(res.ItemsPrice))
		res.TaxPrice = &t
	}

	total := res.ItemsPrice
	if res.ShippingPrice != nil {
		total = total.Add(*res.ShippingPrice)
	}
	if res.TaxPrice != nil {
		total = total.Add(*res.TaxPrice)
	}
	res.TotalPrice = Round(total)

	return res
}
