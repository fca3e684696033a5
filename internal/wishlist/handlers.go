package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// StoreFunc resolves the wishlist bound to the request's session.
type StoreFunc func(r *http.Request) (*Store, error)

// Handler serves the wishlist endpoints.
type Handler struct {
	Wishlists StoreFunc
	Carts     cart.StoreFunc
	Catalog   *catalog.Catalog
	Events    *events.Bus
}

type toggleRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

type moveRequest struct {
	Quantity int    `json:"quantity" validate:"gte=0"`
	Size     string `json:"size"`
	Color    string `json:"color"`
}

// Routes registers the wishlist endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/toggle", h.Toggle)
	r.Get("/{productId}", h.Check)
	r.Delete("/{productId}", h.Remove)
	r.Post("/{productId}/move-to-cart", h.MoveToCart)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	if h.Wishlists == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "wishlist not configured", nil)
		return nil, false
	}
	s, err := h.Wishlists(r)
	if err != nil || s == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve wishlist", nil)
		return nil, false
	}
	return s, true
}

// List returns saved products that still exist in the catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, h.view(s))
}

// Toggle flips a product in or out of the wishlist.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, common.BadRequest("invalid payload", err))
		return
	}
	if err := common.Validate(payload); err != nil {
		writeError(w, err)
		return
	}
	id := strings.TrimSpace(payload.ProductID)
	if h.Catalog != nil {
		if _, err := h.Catalog.Get(id); err != nil {
			writeError(w, err)
			return
		}
	}
	saved := s.Toggle(id)
	common.Data(w, http.StatusOK, map[string]any{
		"productId": id,
		"favorited": saved,
		"count":     s.Count(),
	})
}

// Check reports whether a product is saved.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "productId")
	common.Data(w, http.StatusOK, map[string]any{"productId": id, "favorited": s.Has(id)})
}

// Remove deletes a product from the wishlist.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if !s.Remove(chi.URLParam(r, "productId")) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not in wishlist", nil)
		return
	}
	common.Data(w, http.StatusOK, h.view(s))
}

// MoveToCart adds a saved product to the cart and drops it from the
// wishlist. The wishlist is untouched when the cart rejects the product.
func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if h.Carts == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "cart not configured", nil)
		return
	}
	id := chi.URLParam(r, "productId")
	if !s.Has(id) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not in wishlist", nil)
		return
	}
	var payload moveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, common.BadRequest("invalid payload", err))
		return
	}
	if err := common.Validate(payload); err != nil {
		writeError(w, err)
		return
	}
	carts, err := h.Carts(r)
	if err != nil || carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve cart", nil)
		return
	}
	candidate, err := h.Catalog.Candidate(id, payload.Quantity, payload.Size, payload.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := carts.AddItem(candidate)
	obs.CountCartMutation("move_from_wishlist", err == nil)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Remove(id)
	h.emit(r.Context(), map[string]any{"productId": id, "itemId": item.ID, "quantity": item.Quantity})
	common.Data(w, http.StatusOK, map[string]any{
		"wishlist": h.view(s),
		"cart":     cart.View(carts),
	})
}

func (h *Handler) view(s *Store) map[string]any {
	entries := s.List()
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"productId": e.ProductID, "addedAt": e.AddedAt}
		if h.Catalog != nil {
			p, err := h.Catalog.Get(e.ProductID)
			if err != nil {
				continue
			}
			item["name"] = p.Name
			item["slug"] = p.Slug
			item["price"] = p.Price.StringFixed(2)
			item["image"] = p.Image
			item["inStock"] = p.InStock()
		}
		items = append(items, item)
	}
	return map[string]any{"items": items, "count": len(items)}
}

func (h *Handler) emit(ctx context.Context, payload any) {
	if h.Events == nil {
		return
	}
	aggregate, _ := common.SessionID(ctx)
	if aggregate == "" {
		aggregate = "anonymous"
	}
	if _, err := h.Events.Emit(ctx, events.TopicWishlistMoved, aggregate, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("emit wishlist event")
	}
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
