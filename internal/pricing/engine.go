package pricing

import "github.com/shopspring/decimal"

// DiscountKind enumerates supported discount rules.
type DiscountKind string

const (
	// DiscountPercentage takes a fraction of the subtotal. Value holds the percent (10 == 10%).
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed takes a flat amount off the subtotal.
	DiscountFixed DiscountKind = "fixed"
	// DiscountFreeShipping waives standard shipping regardless of the threshold.
	DiscountFreeShipping DiscountKind = "free_shipping"
)

var hundred = decimal.NewFromInt(100)

// Discount describes a resolved promo rule.
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value Money        `json:"value"`
}

// Amount returns the discount taken from the provided subtotal. The result is
// never negative and never exceeds the subtotal.
func (d Discount) Amount(subtotal Money) Money {
	if !subtotal.IsPositive() {
		return Zero
	}
	var amount Money
	switch d.Kind {
	case DiscountPercentage:
		amount = Round2(subtotal.Mul(NonNegative(d.Value)).Div(hundred))
	case DiscountFixed:
		amount = NonNegative(d.Value)
	default:
		return Zero
	}
	return Min(amount, subtotal)
}

// WaivesShipping reports whether the discount treats the free-shipping threshold as met.
func (d Discount) WaivesShipping() bool {
	return d.Kind == DiscountFreeShipping
}

// ShippingQuoter resolves the shipping cost for a method and qualifying
// amount. Unknown methods return an error and cost nothing.
type ShippingQuoter interface {
	Cost(methodID string, qualifying Money) (Money, error)
	FreeThreshold() Money
}

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Input groups everything the totals depend on.
type Input struct {
	Items          []Item
	Discount       *Discount
	ShippingMethod string
}

// Summary aggregates computed pricing components rounded to two decimals.
type Summary struct {
	Subtotal  Money `json:"subtotal"`
	Discount  Money `json:"discount"`
	Shipping  Money `json:"shipping"`
	Tax       Money `json:"tax"`
	Total     Money `json:"total"`
	ItemCount int   `json:"itemCount"`
}

// Calculator derives cart totals. It has no side effects.
type Calculator struct {
	// TaxRate is a fraction applied to the discounted subtotal (0.08 == 8%).
	TaxRate  Money
	Shipping ShippingQuoter
}

// Compute calculates cart totals given the provided inputs.
func (c Calculator) Compute(in Input) Summary {
	subtotal := Zero
	count := 0
	for _, it := range in.Items {
		if it.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(NonNegative(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Qty))))
		count += it.Qty
	}

	discount := Zero
	waive := false
	if in.Discount != nil {
		discount = in.Discount.Amount(subtotal)
		waive = in.Discount.WaivesShipping()
	}
	taxable := NonNegative(subtotal.Sub(discount))

	shipping := Zero
	if count > 0 && c.Shipping != nil {
		qualifying := taxable
		if threshold := c.Shipping.FreeThreshold(); waive && qualifying.LessThan(threshold) {
			qualifying = threshold
		}
		if cost, err := c.Shipping.Cost(in.ShippingMethod, qualifying); err == nil {
			shipping = NonNegative(cost)
		}
	}

	tax := taxable.Mul(NonNegative(c.TaxRate))
	total := NonNegative(taxable.Add(shipping).Add(tax))

	return Summary{
		Subtotal:  Round2(subtotal),
		Discount:  Round2(discount),
		Shipping:  Round2(shipping),
		Tax:       Round2(tax),
		Total:     Round2(total),
		ItemCount: count,
	}
}
