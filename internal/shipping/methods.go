package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// ErrUnknownMethod is returned when a shipping method id is not recognised.
var ErrUnknownMethod = errors.New("unknown shipping method")

const (
	// MethodStandard is the default ground method.
	MethodStandard = "standard"
	// MethodExpress is the premium next-day method.
	MethodExpress = "express"
	// MethodPickup is in-store collection.
	MethodPickup = "pickup"
)

// Method describes a selectable shipping option.
type Method struct {
	ID       string
	Name     string
	BaseRate pricing.Money
	ETD      string
	// Premium methods stay chargeable above the free-shipping threshold.
	Premium bool
	// Surcharge is charged for premium methods once the threshold is met.
	Surcharge pricing.Money
}

// Rate describes a returned shipping rate option.
type Rate struct {
	Method  string        `json:"method"`
	Name    string        `json:"name"`
	Cost    pricing.Money `json:"cost"`
	ETD     string        `json:"etd"`
	Premium bool          `json:"premium"`
	Free    bool          `json:"free"`
}

// DefaultMethods returns the built-in method table.
func DefaultMethods() []Method {
	return []Method{
		{ID: MethodStandard, Name: "Standard Shipping", BaseRate: pricing.MustParse("8.00"), ETD: "3-5"},
		{ID: MethodExpress, Name: "Express Shipping", BaseRate: pricing.MustParse("15.00"), ETD: "1", Premium: true, Surcharge: pricing.MustParse("7.00")},
		{ID: MethodPickup, Name: "Store Pickup", BaseRate: pricing.Zero, ETD: "0"},
	}
}

// Resolver maps a shipping method and qualifying amount to a cost.
type Resolver struct {
	threshold pricing.Money
	methods   map[string]Method
	order     []string
	fallback  string
}

// NewResolver builds a resolver. The first method becomes the default unless
// a method named "standard" is present.
func NewResolver(threshold pricing.Money, methods ...Method) *Resolver {
	r := &Resolver{threshold: pricing.NonNegative(threshold), methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		id := strings.ToLower(strings.TrimSpace(m.ID))
		if id == "" {
			continue
		}
		m.ID = id
		m.BaseRate = pricing.NonNegative(m.BaseRate)
		m.Surcharge = pricing.NonNegative(m.Surcharge)
		if _, exists := r.methods[id]; !exists {
			r.order = append(r.order, id)
		}
		r.methods[id] = m
	}
	if _, ok := r.methods[MethodStandard]; ok {
		r.fallback = MethodStandard
	} else if len(r.order) > 0 {
		r.fallback = r.order[0]
	}
	return r
}

// FreeThreshold returns the qualifying amount at which standard shipping is waived.
func (r *Resolver) FreeThreshold() pricing.Money {
	if r == nil {
		return pricing.Zero
	}
	return r.threshold
}

// Default returns the method used for new carts.
func (r *Resolver) Default() string {
	if r == nil {
		return ""
	}
	return r.fallback
}

// Method looks up a method by id.
func (r *Resolver) Method(id string) (Method, bool) {
	if r == nil {
		return Method{}, false
	}
	m, ok := r.methods[strings.ToLower(strings.TrimSpace(id))]
	return m, ok
}

// Cost returns the shipping cost for the method given the qualifying amount.
func (r *Resolver) Cost(id string, qualifying pricing.Money) (pricing.Money, error) {
	m, ok := r.Method(id)
	if !ok {
		return pricing.Zero, fmt.Errorf("%q: %w", id, ErrUnknownMethod)
	}
	return r.cost(m, qualifying), nil
}

func (r *Resolver) cost(m Method, qualifying pricing.Money) pricing.Money {
	if qualifying.GreaterThanOrEqual(r.threshold) {
		if m.Premium {
			return m.Surcharge
		}
		return pricing.Zero
	}
	return m.BaseRate
}

// Quote lists every method with its cost at the qualifying amount.
func (r *Resolver) Quote(qualifying pricing.Money) []Rate {
	if r == nil {
		return nil
	}
	rates := make([]Rate, 0, len(r.order))
	for _, id := range r.order {
		m := r.methods[id]
		cost := r.cost(m, qualifying)
		rates = append(rates, Rate{
			Method:  m.ID,
			Name:    m.Name,
			Cost:    cost,
			ETD:     m.ETD,
			Premium: m.Premium,
			Free:    cost.IsZero(),
		})
	}
	return rates
}
