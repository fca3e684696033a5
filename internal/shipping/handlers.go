package shipping

import (
	"net/http"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Handler exposes the shipping method table over HTTP.
type Handler struct {
	Resolver *Resolver
}

// Methods returns every method with the cost for the optional ?amount= query.
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "shipping not configured", nil)
		return
	}
	amount := pricing.Zero
	if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
		amount = pricing.ParseAmount(raw)
	}
	rates := h.Resolver.Quote(amount)
	out := make([]map[string]any, 0, len(rates))
	for _, rate := range rates {
		out = append(out, map[string]any{
			"method":  rate.Method,
			"name":    rate.Name,
			"cost":    rate.Cost.StringFixed(2),
			"etd":     rate.ETD,
			"premium": rate.Premium,
			"free":    rate.Free,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": map[string]any{
			"freeShippingThreshold": h.Resolver.FreeThreshold().StringFixed(2),
			"default":               h.Resolver.Default(),
		},
	})
}
