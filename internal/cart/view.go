package cart

import "github.com/noah-isme/toko-storefront/internal/pricing"

func money(m pricing.Money) string { return m.StringFixed(2) }

func itemView(it LineItem) map[string]any {
	out := map[string]any{
		"id":        it.ID,
		"productId": it.ProductID,
		"name":      it.Name,
		"slug":      it.Slug,
		"price":     money(it.Price),
		"quantity":  it.Quantity,
		"lineTotal": money(it.LineTotal()),
		"image":     it.Image,
		"size":      it.Size,
		"color":     it.Color,
		"brand":     it.Brand,
		"sku":       it.SKU,
		"stock":     it.Stock,
	}
	if it.OriginalPrice != nil {
		out["originalPrice"] = money(*it.OriginalPrice)
	}
	return out
}

func totalsView(sum pricing.Summary) map[string]any {
	return map[string]any{
		"subtotal":  money(sum.Subtotal),
		"discount":  money(sum.Discount),
		"shipping":  money(sum.Shipping),
		"tax":       money(sum.Tax),
		"total":     money(sum.Total),
		"itemCount": sum.ItemCount,
	}
}

// View renders the cart for API responses.
func View(s *Store) map[string]any {
	items := s.Items()
	rendered := make([]map[string]any, 0, len(items))
	for _, it := range items {
		rendered = append(rendered, itemView(it))
	}
	var promoView any
	if sel, ok := s.Promo(); ok {
		promoView = map[string]any{
			"code":        sel.Code,
			"kind":        sel.Discount.Kind,
			"value":       sel.Discount.Value.String(),
			"description": sel.Description,
		}
	}
	ship := s.Shipping()
	return map[string]any{
		"items": rendered,
		"promo": promoView,
		"shipping": map[string]any{
			"method": ship.Method,
			"name":   ship.Name,
			"cost":   money(ship.Cost),
		},
		"totals":    totalsView(s.Totals()),
		"itemCount": s.ItemCount(),
		"currency":  s.Currency(),
	}
}
