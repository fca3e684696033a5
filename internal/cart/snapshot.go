package cart

import (
	"time"

	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/promo"
)

// Snapshot is the serialisable state of a Store.
type Snapshot struct {
	Items          []LineItem      `json:"items"`
	Promo          *PromoSelection `json:"promo,omitempty"`
	ShippingMethod string          `json:"shippingMethod"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Snapshot captures the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Items:          append([]LineItem(nil), s.items...),
		ShippingMethod: s.method,
		UpdatedAt:      s.updatedAt,
	}
	if s.promo != nil {
		p := *s.promo
		snap.Promo = &p
	}
	return snap
}

// Restore replaces the state with snap. Items pass through the same
// validation as AddItem; unknown shipping methods fall back to the default.
func (s *Store) Restore(snap Snapshot) {
	items := make([]LineItem, 0, len(snap.Items))
	index := make(map[string]int, len(snap.Items))
	for _, raw := range snap.Items {
		item, err := NewLineItem(Candidate{
			ID:            raw.ID,
			ProductID:     raw.ProductID,
			Name:          raw.Name,
			Slug:          raw.Slug,
			Price:         raw.Price,
			OriginalPrice: raw.OriginalPrice,
			Quantity:      raw.Quantity,
			Image:         raw.Image,
			Size:          raw.Size,
			Color:         raw.Color,
			Brand:         raw.Brand,
			SKU:           raw.SKU,
			Stock:         raw.Stock,
		})
		if err != nil {
			continue
		}
		if i, ok := index[item.ID]; ok {
			items[i].Quantity = clampQuantity(items[i].Quantity+item.Quantity, items[i].Stock)
			continue
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}

	var sel *PromoSelection
	if snap.Promo != nil && validDiscount(snap.Promo.Discount) {
		p := *snap.Promo
		p.Code = promo.Normalize(p.Code)
		if p.Code != "" {
			sel = &p
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.promo = sel
	s.method = s.defaultMethod()
	if m, ok := s.cfg.Shipping.Method(snap.ShippingMethod); ok {
		s.method = m.ID
	}
	s.updatedAt = snap.UpdatedAt
	if s.updatedAt.IsZero() {
		s.updatedAt = s.cfg.Now()
	}
}

func validDiscount(d pricing.Discount) bool {
	switch d.Kind {
	case pricing.DiscountPercentage, pricing.DiscountFixed, pricing.DiscountFreeShipping:
		return !d.Value.IsNegative()
	default:
		return false
	}
}
