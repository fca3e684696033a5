package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// ProductSource builds cart candidates from catalog data. Unknown products
// yield an error wrapping ErrNotFound.
type ProductSource interface {
	Candidate(productID string, qty int, size, color string) (Candidate, error)
}

// StoreFunc resolves the cart bound to the request's session.
type StoreFunc func(r *http.Request) (*Store, error)

// Handler wires cart stores to HTTP.
type Handler struct {
	Carts    StoreFunc
	Products ProductSource
	Events   *events.Bus
	Locker   lock.Locker
	LockTTL  time.Duration
	// ClearOnSuccess empties the cart after a successful checkout.
	ClearOnSuccess bool
	// PromoGuard wraps the promo endpoint, typically with a rate limiter.
	PromoGuard func(http.Handler) http.Handler
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1,lte=999"`
	Size      string `json:"size" validate:"max=32"`
	Color     string `json:"color" validate:"max=32"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

type promoRequest struct {
	Code string `json:"code" validate:"max=64"`
}

type shippingRequest struct {
	Method string `json:"method" validate:"required,max=32"`
}

// Routes registers the cart endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{itemId}", h.UpdateItem)
	r.Delete("/items/{itemId}", h.RemoveItem)
	promo := http.Handler(http.HandlerFunc(h.ApplyPromo))
	if h.PromoGuard != nil {
		promo = h.PromoGuard(promo)
	}
	r.Method(http.MethodPost, "/promo", promo)
	r.Delete("/promo", h.RemovePromo)
	r.Put("/shipping", h.SetShipping)
	r.Post("/checkout", h.Checkout)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	if h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart not configured", nil)
		return nil, false
	}
	s, err := h.Carts(r)
	if err != nil || s == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve cart", nil)
		return nil, false
	}
	return s, true
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.BadRequest("invalid payload", err)
	}
	return common.Validate(dst)
}

// Get returns the cart with derived totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, View(s))
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	s.Clear()
	obs.CountCartMutation("clear", true)
	h.emit(r.Context(), events.TopicCartCleared, nil)
	common.Data(w, http.StatusOK, View(s))
}

// AddItem adds a catalog product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if h.Products == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "catalog not configured", nil)
		return
	}
	var payload addItemRequest
	if err := decode(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	candidate, err := h.Products.Candidate(strings.TrimSpace(payload.ProductID), payload.Quantity, payload.Size, payload.Color)
	if err != nil {
		h.writeError(w, err)
		return
	}
	item, err := s.AddItem(candidate)
	obs.CountCartMutation("add_item", err == nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := View(s)
	view["item"] = itemView(item)
	common.Data(w, http.StatusCreated, view)
}

// UpdateItem changes the quantity of a line item. Quantity 0 removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemId")
	var payload updateItemRequest
	if err := decode(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if *payload.Quantity == 0 {
		removed := s.RemoveItem(itemID)
		obs.CountCartMutation("remove_item", removed)
		if !removed {
			h.writeError(w, ErrNotFound)
			return
		}
		common.Data(w, http.StatusOK, View(s))
		return
	}
	_, updated := s.UpdateQuantity(itemID, *payload.Quantity)
	obs.CountCartMutation("update_quantity", updated)
	if !updated {
		h.writeError(w, ErrNotFound)
		return
	}
	common.Data(w, http.StatusOK, View(s))
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	removed := s.RemoveItem(chi.URLParam(r, "itemId"))
	obs.CountCartMutation("remove_item", removed)
	if !removed {
		h.writeError(w, ErrNotFound)
		return
	}
	common.Data(w, http.StatusOK, View(s))
}

// ApplyPromo applies a promo code. Rejected codes are reported with
// applied=false and a 200 status.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload promoRequest
	if err := decode(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	res := s.ApplyPromoCode(r.Context(), payload.Code)
	if res.Applied {
		obs.CountPromoAttempt("applied")
		h.emit(r.Context(), events.TopicPromoApplied, map[string]any{"code": res.Code, "discount": money(res.Discount)})
	} else {
		obs.CountPromoAttempt("rejected")
		h.emit(r.Context(), events.TopicPromoRejected, map[string]any{"code": res.Code, "reason": res.Reason})
	}
	common.Data(w, http.StatusOK, map[string]any{
		"applied":  res.Applied,
		"code":     res.Code,
		"discount": money(res.Discount),
		"reason":   res.Reason,
		"cart":     View(s),
	})
}

// RemovePromo clears the promo code.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	obs.CountCartMutation("remove_promo", s.RemovePromoCode())
	common.Data(w, http.StatusOK, View(s))
}

// SetShipping selects the shipping method.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload shippingRequest
	if err := decode(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	sel, selected := s.SetShippingOption(payload.Method)
	obs.CountCartMutation("set_shipping", selected)
	if !selected {
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_SHIPPING_METHOD", "unknown shipping method", map[string]any{"method": payload.Method})
		return
	}
	obs.CountShippingSelection(sel.Method)
	common.Data(w, http.StatusOK, View(s))
}

// Checkout submits the cart. Concurrent checkouts of one session are
// serialized through the Locker.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	sessionID, _ := common.SessionID(ctx)
	h.emit(ctx, events.TopicCheckoutStarted, map[string]any{"itemCount": s.ItemCount()})

	var res CheckoutResult
	start := time.Now()
	run := func(ctx context.Context) error {
		res = s.StartCheckout(ctx)
		if res.Success && h.ClearOnSuccess {
			s.Clear()
		}
		return nil
	}
	var err error
	if h.Locker != nil && sessionID != "" {
		ttl := h.LockTTL
		if ttl <= 0 {
			ttl = 15 * time.Second
		}
		lockCtx, cancel := context.WithTimeout(ctx, ttl)
		err = h.Locker.WithLock(lockCtx, "checkout:"+sessionID, ttl, run)
		cancel()
	} else {
		err = run(ctx)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("checkout_lock")
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", "checkout already in progress", nil)
		return
	}
	obs.ObserveCheckout(res.Success, obs.DurationMillis(time.Since(start)))

	if !res.Success {
		h.emit(ctx, events.TopicCheckoutFailed, map[string]any{"reason": res.Error, "reference": res.Reference})
		common.JSONError(w, http.StatusUnprocessableEntity, "CHECKOUT_FAILED", res.Error, map[string]any{"reference": res.Reference})
		return
	}
	h.emit(ctx, events.TopicCheckoutCompleted, map[string]any{
		"orderId":   res.OrderID,
		"reference": res.Reference,
		"total":     money(res.Totals.Total),
	})
	common.Data(w, http.StatusOK, map[string]any{
		"success":   true,
		"orderId":   res.OrderID,
		"reference": res.Reference,
		"totals":    totalsView(res.Totals),
		"cart":      View(s),
	})
}

func (h *Handler) emit(ctx context.Context, topic string, payload any) {
	if h.Events == nil {
		return
	}
	aggregate, _ := common.SessionID(ctx)
	if aggregate == "" {
		aggregate = "anonymous"
	}
	if _, err := h.Events.Emit(ctx, topic, aggregate, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
