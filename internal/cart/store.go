// Package cart holds the per-session shopping cart: line items, the promo and
// shipping selections, derived totals and the checkout hand-off.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/promo"
	"github.com/noah-isme/toko-storefront/internal/shipping"
)

// DefaultTaxRate is applied when Config.TaxRate is unset.
var DefaultTaxRate = pricing.MustParse("0.08")

// Promo rejection reasons surfaced to callers.
const (
	ReasonPromoRequired    = "promo code required"
	ReasonPromoInvalid     = "invalid promo code"
	ReasonPromoUnavailable = "promo validation unavailable"
	ReasonCheckoutDown     = "checkout service unavailable"
)

// Config carries the collaborators injected into every Store.
type Config struct {
	Promo    promo.Resolver
	Shipping *shipping.Resolver
	// TaxRate is a fraction (0.08 == 8%). Nil means DefaultTaxRate.
	TaxRate  *pricing.Money
	Checkout checkout.Gateway
	Currency string
	Now      func() time.Time
}

// PromoSelection is the single promo applied to the cart.
type PromoSelection struct {
	Code        string           `json:"code"`
	Discount    pricing.Discount `json:"discount"`
	Description string           `json:"description,omitempty"`
}

// ShippingSelection is the chosen method with its cost at the current totals.
type ShippingSelection struct {
	Method string        `json:"method"`
	Name   string        `json:"name"`
	Cost   pricing.Money `json:"cost"`
}

// PromoResult reports the outcome of ApplyPromoCode.
type PromoResult struct {
	Applied  bool          `json:"applied"`
	Code     string        `json:"code"`
	Discount pricing.Money `json:"discount"`
	Reason   string        `json:"reason,omitempty"`
}

// CheckoutResult reports the outcome of StartCheckout.
type CheckoutResult struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	OrderID   string          `json:"orderId,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Totals    pricing.Summary `json:"totals"`
}

// Store is the cart of one session. It is safe for concurrent use; calls to
// the promo resolver and checkout gateway happen outside the lock.
type Store struct {
	cfg     Config
	taxRate pricing.Money

	mu        sync.RWMutex
	items     []LineItem
	promo     *PromoSelection
	method    string
	updatedAt time.Time
}

// NewStore constructs an empty cart.
func NewStore(cfg Config) *Store {
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Store{cfg: cfg, taxRate: DefaultTaxRate}
	if cfg.TaxRate != nil {
		s.taxRate = *cfg.TaxRate
	}
	s.method = s.defaultMethod()
	s.updatedAt = cfg.Now()
	return s
}

func (s *Store) defaultMethod() string {
	if m := s.cfg.Shipping.Default(); m != "" {
		return m
	}
	return shipping.MethodStandard
}

func (s *Store) touch() { s.updatedAt = s.cfg.Now() }

// AddItem validates the candidate and merges it into the cart. Adding an id
// already present increments its quantity. Stock is per product, so the
// quantities of all variants of one product are clamped to it together.
func (s *Store) AddItem(c Candidate) (LineItem, error) {
	item, err := NewLineItem(c)
	if err != nil {
		return LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := s.availableLocked(item.ProductID, item.ID, item.Stock)
	if avail < 1 {
		return LineItem{}, fmt.Errorf("%s: %w", item.ProductID, ErrOutOfStock)
	}
	defer s.touch()
	for i := range s.items {
		if s.items[i].ProductID == item.ProductID {
			s.items[i].Stock = item.Stock
		}
	}
	if idx := s.indexOf(item.ID); idx >= 0 {
		existing := &s.items[idx]
		existing.Price = item.Price
		existing.OriginalPrice = item.OriginalPrice
		existing.Quantity = clampQuantity(existing.Quantity+item.Quantity, avail)
		return *existing, nil
	}
	item.Quantity = clampQuantity(item.Quantity, avail)
	s.items = append(s.items, item)
	return item, nil
}

// UpdateQuantity sets the quantity of an item, clamped to [1, stock left
// after the other variants of the product]. It is a no-op returning false
// when the id is unknown or q < 1; removal goes through RemoveItem.
func (s *Store) UpdateQuantity(id string, q int) (LineItem, bool) {
	if q < 1 {
		return LineItem{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return LineItem{}, false
	}
	it := &s.items[idx]
	avail := max(s.availableLocked(it.ProductID, it.ID, it.Stock), 1)
	it.Quantity = clampQuantity(q, avail)
	s.touch()
	return *it, true
}

// availableLocked is the stock of productID not held by lines other than
// exceptID.
func (s *Store) availableLocked(productID, exceptID string, stock int) int {
	for _, it := range s.items {
		if it.ProductID == productID && it.ID != exceptID {
			stock -= it.Quantity
		}
	}
	return stock
}

// RemoveItem deletes the item and reports whether it existed.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.touch()
	return true
}

// Clear empties the cart, drops the promo and resets shipping to the default.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.promo = nil
	s.method = s.defaultMethod()
	s.touch()
}

// ApplyPromoCode resolves the code and replaces the current promo on
// success. A rejected code leaves the previous selection in place.
func (s *Store) ApplyPromoCode(ctx context.Context, code string) PromoResult {
	normalized := promo.Normalize(code)
	if normalized == "" {
		return PromoResult{Code: normalized, Discount: pricing.Zero, Reason: ReasonPromoRequired}
	}
	if s.cfg.Promo == nil {
		return PromoResult{Code: normalized, Discount: pricing.Zero, Reason: ReasonPromoUnavailable}
	}
	rule, err := s.cfg.Promo.Resolve(ctx, normalized)
	if err != nil {
		reason := ReasonPromoUnavailable
		if errors.Is(err, promo.ErrNotFound) || errors.Is(err, promo.ErrCodeRequired) {
			reason = ReasonPromoInvalid
		}
		return PromoResult{Code: normalized, Discount: pricing.Zero, Reason: reason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.promo = &PromoSelection{Code: rule.Code, Discount: rule.Discount, Description: rule.Description}
	s.touch()
	return PromoResult{
		Applied:  true,
		Code:     rule.Code,
		Discount: pricing.Round2(rule.Discount.Amount(s.subtotalLocked())),
	}
}

// RemovePromoCode clears the promo and reports whether one was applied.
func (s *Store) RemovePromoCode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.promo != nil
	s.promo = nil
	if had {
		s.touch()
	}
	return had
}

// SetShippingOption selects a shipping method. Unknown ids are rejected and
// leave the selection unchanged.
func (s *Store) SetShippingOption(methodID string) (ShippingSelection, bool) {
	m, ok := s.cfg.Shipping.Method(methodID)
	if !ok {
		return ShippingSelection{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.method = m.ID
	s.touch()
	return s.shippingLocked(), true
}

// StartCheckout submits the cart to the checkout gateway. It never returns
// an error; failures are described by the result. The cart is left intact.
func (s *Store) StartCheckout(ctx context.Context) CheckoutResult {
	s.mu.RLock()
	if len(s.items) == 0 {
		s.mu.RUnlock()
		return CheckoutResult{Error: checkout.ReasonEmptyCart, Totals: s.Totals()}
	}
	order := s.orderLocked()
	s.mu.RUnlock()

	res := CheckoutResult{Reference: order.Reference, Totals: order.Totals}
	if s.cfg.Checkout == nil {
		res.Error = ReasonCheckoutDown
		return res
	}
	out, err := s.cfg.Checkout.Submit(ctx, order)
	if err != nil {
		res.Error = ReasonCheckoutDown
		return res
	}
	res.Success = out.Success
	res.OrderID = out.OrderID
	res.Error = out.Error
	if !res.Success && res.Error == "" {
		res.Error = "checkout failed"
	}
	return res
}

func (s *Store) orderLocked() checkout.Order {
	lines := make([]checkout.Line, 0, len(s.items))
	for _, it := range s.items {
		lines = append(lines, checkout.Line{
			ID:        it.ID,
			Name:      it.Name,
			SKU:       it.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}
	order := checkout.Order{
		Reference:      uuid.NewString(),
		Currency:       s.cfg.Currency,
		Items:          lines,
		ShippingMethod: s.method,
		Totals:         s.totalsLocked(),
		CreatedAt:      s.cfg.Now().UTC(),
	}
	if s.promo != nil {
		order.PromoCode = s.promo.Code
	}
	return order
}

// Totals derives subtotal, discount, shipping, tax and total from the
// current state.
func (s *Store) Totals() pricing.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalsLocked()
}

func (s *Store) totalsLocked() pricing.Summary {
	in := pricing.Input{Items: make([]pricing.Item, 0, len(s.items)), ShippingMethod: s.method}
	for _, it := range s.items {
		in.Items = append(in.Items, pricing.Item{Qty: it.Quantity, UnitPrice: it.Price})
	}
	if s.promo != nil {
		d := s.promo.Discount
		in.Discount = &d
	}
	return s.calculator().Compute(in)
}

func (s *Store) calculator() pricing.Calculator {
	calc := pricing.Calculator{TaxRate: s.taxRate}
	if s.cfg.Shipping != nil {
		calc.Shipping = s.cfg.Shipping
	}
	return calc
}

func (s *Store) subtotalLocked() pricing.Money {
	sum := pricing.Zero
	for _, it := range s.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LineItem(nil), s.items...)
}

// Item looks up a line item by id.
func (s *Store) Item(id string) (LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.items[idx], true
	}
	return LineItem{}, false
}

// ItemCount returns the sum of quantities.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Promo returns the applied promo, if any.
func (s *Store) Promo() (PromoSelection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.promo == nil {
		return PromoSelection{}, false
	}
	return *s.promo, true
}

// Shipping returns the selected method with its cost at the current totals.
func (s *Store) Shipping() ShippingSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shippingLocked()
}

func (s *Store) shippingLocked() ShippingSelection {
	sel := ShippingSelection{Method: s.method, Cost: s.totalsLocked().Shipping}
	if m, ok := s.cfg.Shipping.Method(s.method); ok {
		sel.Name = m.Name
	}
	return sel
}

// Currency returns the ISO currency code of the cart.
func (s *Store) Currency() string { return s.cfg.Currency }

// UpdatedAt returns the time of the last mutation.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Store) indexOf(id string) int {
	id = strings.TrimSpace(id)
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
