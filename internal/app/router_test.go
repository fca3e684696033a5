package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/app"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/config"
)

func newServer(t *testing.T, env map[string]string) http.Handler {
	t.Helper()
	base := map[string]string{
		"REDIS_URL":            "",
		"CHECKOUT_SERVICE_URL": "",
		"PROMO_CODES":          "",
		"RATE_LIMIT_PROMO_MAX": "",
		"CSRF_ENABLED":         "",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)

	deps, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	router, err := app.NewRouter(deps, app.RouterOptions{})
	require.NoError(t, err)
	return router
}

// envelope holds a decoded response. Data is set for object payloads and
// List for array payloads.
type envelope struct {
	Data  map[string]any
	List  []any
	Error struct {
		Code string `json:"code"`
	}
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &raw), string(body))
	env := envelope{Error: raw.Error}
	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		require.NoError(t, json.Unmarshal(data, &env.List), string(body))
	default:
		require.NoError(t, json.Unmarshal(data, &env.Data), string(body))
	}
	return env
}

func call(t *testing.T, h http.Handler, method, target, session, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(common.SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		env = decodeEnvelope(t, rec.Body.Bytes())
	}
	return rec, env
}

func totals(t *testing.T, cart map[string]any) map[string]any {
	t.Helper()
	out, ok := cart["totals"].(map[string]any)
	require.True(t, ok, "cart view carries totals")
	return out
}

func TestCheckoutFlow(t *testing.T) {
	srv := newServer(t, nil)
	const sid = "flow-session-1"

	rec, env := call(t, srv, http.MethodPost, "/api/v1/cart/items", sid, `{"productId":"p-001","quantity":1,"size":"9","color":"black"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, sid, rec.Header().Get(common.SessionHeader))
	require.Equal(t, "89.99", totals(t, env.Data)["subtotal"])

	rec, env = call(t, srv, http.MethodPost, "/api/v1/cart/promo", sid, `{"code":" save10 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, env.Data["applied"])
	require.Equal(t, "SAVE10", env.Data["code"])
	sum := totals(t, env.Data["cart"].(map[string]any))
	require.Equal(t, "9.00", sum["discount"])
	require.Equal(t, "8.00", sum["shipping"])
	require.Equal(t, "6.48", sum["tax"])
	require.Equal(t, "95.47", sum["total"])

	rec, env = call(t, srv, http.MethodPut, "/api/v1/cart/shipping", sid, `{"method":"express"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "15.00", totals(t, env.Data)["shipping"])
	require.Equal(t, "102.47", totals(t, env.Data)["total"])

	rec, env = call(t, srv, http.MethodPut, "/api/v1/cart/shipping", sid, `{"method":"overnight"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "UNKNOWN_SHIPPING_METHOD", env.Error.Code)

	rec, env = call(t, srv, http.MethodPost, "/api/v1/cart/checkout", sid, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, env.Data["success"])
	require.NotEmpty(t, env.Data["orderId"])
	require.Equal(t, "102.47", env.Data["totals"].(map[string]any)["total"])

	rec, env = call(t, srv, http.MethodGet, "/api/v1/cart", sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, env.Data["items"])
	require.Equal(t, "0.00", totals(t, env.Data)["total"])

	rec, env = call(t, srv, http.MethodPost, "/api/v1/cart/checkout", sid, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CHECKOUT_FAILED", env.Error.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newServer(t, nil)

	rec, _ := call(t, srv, http.MethodPost, "/api/v1/cart/items", "alice", `{"productId":"p-007","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, env := call(t, srv, http.MethodGet, "/api/v1/cart", "bob", "")
	require.Empty(t, env.Data["items"])

	_, env = call(t, srv, http.MethodGet, "/api/v1/cart", "alice", "")
	require.Equal(t, float64(2), env.Data["itemCount"])
}

func TestNewVisitorGetsSessionCookie(t *testing.T) {
	srv := newServer(t, nil)

	rec, _ := call(t, srv, http.MethodGet, "/api/v1/cart", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(common.SessionHeader)
	require.NotEmpty(t, id)

	var sessionCookie, csrfCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case common.SessionCookie:
			sessionCookie = c
		case "toko_csrf":
			csrfCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.Equal(t, id, sessionCookie.Value)
	require.NotNil(t, csrfCookie)

	// Cookie sessions must echo the csrf token on writes.
	body := `{"productId":"p-010","quantity":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req.AddCookie(sessionCookie)
	req.AddCookie(csrfCookie)
	forbidden := httptest.NewRecorder()
	srv.ServeHTTP(forbidden, req)
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	req.AddCookie(sessionCookie)
	req.AddCookie(csrfCookie)
	req.Header.Set("X-CSRF-Token", csrfCookie.Value)
	created := httptest.NewRecorder()
	srv.ServeHTTP(created, req)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	require.Equal(t, id, created.Header().Get(common.SessionHeader))
}

func TestWishlistMoveToCart(t *testing.T) {
	srv := newServer(t, nil)
	const sid = "wish-session"

	rec, _ := call(t, srv, http.MethodPost, "/api/v1/wishlist/toggle", sid, `{"productId":"p-012"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, srv, http.MethodPost, "/api/v1/wishlist/p-012/move-to-cart", sid, `{"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, env := call(t, srv, http.MethodGet, "/api/v1/cart", sid, "")
	require.Equal(t, "64.00", totals(t, env.Data)["subtotal"])

	rec, _ = call(t, srv, http.MethodDelete, "/api/v1/wishlist/p-012", sid, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromoAttemptsAreRateLimited(t *testing.T) {
	srv := newServer(t, map[string]string{"RATE_LIMIT_PROMO_MAX": "2"})
	const sid = "promo-spammer"

	for i := 0; i < 2; i++ {
		rec, env := call(t, srv, http.MethodPost, "/api/v1/cart/promo", sid, `{"code":"GUESS"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, false, env.Data["applied"])
	}
	rec, env := call(t, srv, http.MethodPost, "/api/v1/cart/promo", sid, `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMITED", env.Error.Code)
}

func TestPublicEndpoints(t *testing.T) {
	srv := newServer(t, map[string]string{"PROMO_CODES": "VIP:percentage:25"})

	rec, _ := call(t, srv, http.MethodGet, "/health/live", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, srv, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, products := call(t, srv, http.MethodGet, "/api/v1/products?limit=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, products.List, 2)
	require.Equal(t, "16", rec.Header().Get("X-Total-Count"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec, _ = call(t, srv, http.MethodGet, "/api/v1/shipping/methods?amount=120", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, srv, http.MethodPost, "/api/v1/cart/items", "vip", `{"productId":"p-016","quantity":1,"size":"M","color":"Red"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, env := call(t, srv, http.MethodPost, "/api/v1/cart/promo", "vip", `{"code":"vip"}`)
	require.Equal(t, true, env.Data["applied"])
	require.Equal(t, "72.25", env.Data["discount"])

	_, env = call(t, srv, http.MethodPost, "/api/v1/cart/promo", "vip", `{"code":"SAVE10"}`)
	require.Equal(t, false, env.Data["applied"], "configured table replaces the defaults")
}
