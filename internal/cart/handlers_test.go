package cart_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

type stubProducts map[string]cart.Candidate

func (p stubProducts) Candidate(productID string, qty int, size, color string) (cart.Candidate, error) {
	c, ok := p[productID]
	if !ok {
		return cart.Candidate{}, fmt.Errorf("product %s: %w", productID, cart.ErrNotFound)
	}
	c.ID = cart.VariantID(productID, size, color)
	c.ProductID = productID
	c.Size, c.Color = size, color
	c.Quantity = qty
	return c, nil
}

type harness struct {
	store    *cart.Store
	recorder *events.Recorder
	router   http.Handler
}

func newHarness(t *testing.T, gw checkout.Gateway) harness {
	t.Helper()
	store := newStore(gw)
	rec := &events.Recorder{}
	h := &cart.Handler{
		Carts: func(*http.Request) (*cart.Store, error) { return store, nil },
		Products: stubProducts{
			"runner": {Name: "Runner", Price: pricing.MustParse("50"), Stock: 5},
			"sock":   {Name: "Sock", Price: pricing.MustParse("30"), Stock: 2},
			"gone":   {Name: "Gone", Price: pricing.MustParse("10"), Stock: 0},
		},
		Events:         &events.Bus{Notifiers: []events.Notifier{rec}},
		Locker:         &lock.LocalLocker{},
		ClearOnSuccess: true,
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), "sess-test")))
		})
	})
	r.Route("/api/v1/cart", h.Routes)
	return harness{store: store, recorder: rec, router: r}
}

func (hs harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	hs.router.ServeHTTP(rr, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return rr, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return d
}

func totals(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	return data(t, body)["totals"].(map[string]any)
}

func TestHandlerAddAndGet(t *testing.T) {
	hs := newHarness(t, nil)

	rr, body := hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"runner","quantity":2}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "108.00", totals(t, body)["total"])

	rr, body = hs.do(t, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := data(t, body)["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "runner", items[0].(map[string]any)["id"])
	require.Equal(t, "USD", data(t, body)["currency"])
}

func TestHandlerAddItemErrors(t *testing.T) {
	hs := newHarness(t, nil)

	rr, body := hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "BAD_REQUEST", errBody["code"])
	require.Equal(t, "required", errBody["details"].(map[string]any)["productId"])

	rr, _ = hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"missing"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"gone"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "OUT_OF_STOCK", body["error"].(map[string]any)["code"])

	rr, _ = hs.do(t, http.MethodPost, "/api/v1/cart/items", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUpdateAndRemove(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"runner","quantity":1,"size":"M"}`)
	id := cart.VariantID("runner", "M", "")

	rr, body := hs.do(t, http.MethodPatch, "/api/v1/cart/items/"+id, `{"quantity":999}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 5, data(t, body)["itemCount"])

	rr, _ = hs.do(t, http.MethodPatch, "/api/v1/cart/items/"+id, `{"quantity":-1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = hs.do(t, http.MethodPatch, "/api/v1/cart/items/unknown", `{"quantity":2}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = hs.do(t, http.MethodPatch, "/api/v1/cart/items/"+id, `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 0, data(t, body)["itemCount"])

	rr, _ = hs.do(t, http.MethodDelete, "/api/v1/cart/items/"+id, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerPromoFlow(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"runner","quantity":2}`)

	rr, body := hs.do(t, http.MethodPost, "/api/v1/cart/promo", `{"code":"FAKECODE"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, data(t, body)["applied"])
	require.Equal(t, cart.ReasonPromoInvalid, data(t, body)["reason"])

	rr, body = hs.do(t, http.MethodPost, "/api/v1/cart/promo", `{"code":" save10 "}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, data(t, body)["applied"])
	require.Equal(t, "10.00", data(t, body)["discount"])

	rr, body = hs.do(t, http.MethodDelete, "/api/v1/cart/promo", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, data(t, body)["promo"])
	require.Equal(t, "108.00", totals(t, body)["total"])

	require.Equal(t, []string{events.TopicPromoRejected, events.TopicPromoApplied}, hs.recorder.Topics())
}

func TestHandlerShipping(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"sock"}`)

	rr, body := hs.do(t, http.MethodPut, "/api/v1/cart/shipping", `{"method":"express"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "15.00", totals(t, body)["shipping"])

	rr, body = hs.do(t, http.MethodPut, "/api/v1/cart/shipping", `{"method":"teleport"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "UNKNOWN_SHIPPING_METHOD", body["error"].(map[string]any)["code"])
	require.Equal(t, "express", hs.store.Shipping().Method)
}

func TestHandlerCheckout(t *testing.T) {
	gw := &fakeGateway{result: checkout.Result{Success: true, OrderID: "ord-77"}}
	hs := newHarness(t, gw)

	rr, body := hs.do(t, http.MethodPost, "/api/v1/cart/checkout", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "cart is empty", body["error"].(map[string]any)["message"])

	hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"runner","quantity":2}`)
	rr, body = hs.do(t, http.MethodPost, "/api/v1/cart/checkout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ord-77", data(t, body)["orderId"])
	require.Equal(t, "108.00", data(t, body)["totals"].(map[string]any)["total"])
	require.Zero(t, hs.store.ItemCount(), "handler clears the cart after success")

	require.Equal(t, []string{
		events.TopicCheckoutStarted,
		events.TopicCheckoutFailed,
		events.TopicCheckoutStarted,
		events.TopicCheckoutCompleted,
	}, hs.recorder.Topics())
	for _, ev := range hs.recorder.Events() {
		require.Equal(t, "sess-test", ev.AggregateID)
	}
}

func TestHandlerClear(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"runner"}`)
	rr, body := hs.do(t, http.MethodDelete, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, data(t, body)["items"])
	rr, _ = hs.do(t, http.MethodDelete, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
}
