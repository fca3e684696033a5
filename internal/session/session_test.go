package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/promo"
	"github.com/noah-isme/toko-storefront/internal/session"
	"github.com/noah-isme/toko-storefront/internal/shipping"
)

func newCart() *cart.Store {
	return cart.NewStore(cart.Config{
		Promo:    promo.NewTable(promo.DefaultRules()...),
		Shipping: shipping.NewResolver(pricing.MustParse("99"), shipping.DefaultMethods()...),
		Checkout: checkout.StubGateway{},
	})
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSnapshotRoundTripThroughRedis(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	snaps := session.NewRedisSnapshots(client, "test", time.Hour)

	first := session.NewManager(session.Config{NewCart: newCart, Snapshots: snaps})
	s, err := first.Get(ctx, "abc")
	require.NoError(t, err)

	original := pricing.MustParse("60")
	_, err = s.Cart.AddItem(cart.Candidate{ID: "p-1", Name: "Runner", Price: pricing.MustParse("50"), OriginalPrice: &original, Quantity: 2, Stock: 5})
	require.NoError(t, err)
	require.True(t, s.Cart.ApplyPromoCode(ctx, "save10").Applied)
	_, ok := s.Cart.SetShippingOption(shipping.MethodExpress)
	require.True(t, ok)
	s.Wishlist.Add("p-9")
	require.NoError(t, first.Save(ctx, "abc"))

	require.True(t, mr.Exists("test:session:abc"))
	require.Greater(t, mr.TTL("test:session:abc"), time.Duration(0))

	second := session.NewManager(session.Config{NewCart: newCart, Snapshots: snaps})
	restored, err := second.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, s.Cart.Totals().Total.StringFixed(2), restored.Cart.Totals().Total.StringFixed(2))
	require.Equal(t, "10.00", restored.Cart.Totals().Discount.StringFixed(2))
	require.Equal(t, shipping.MethodExpress, restored.Cart.Shipping().Method)
	sel, ok := restored.Cart.Promo()
	require.True(t, ok)
	require.Equal(t, "SAVE10", sel.Code)
	item, ok := restored.Cart.Item("p-1")
	require.True(t, ok)
	require.Equal(t, "60", item.OriginalPrice.String())
	require.True(t, restored.Wishlist.Has("p-9"))
}

func TestRedisSnapshotsMissingAndCorrupt(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	snaps := session.NewRedisSnapshots(client, "", 0)

	_, found, err := snaps.Load(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, mr.Set("toko:session:bad", "{not json"))
	_, _, err = snaps.Load(ctx, "bad")
	require.Error(t, err)

	m := session.NewManager(session.Config{NewCart: newCart, Snapshots: snaps})
	s, err := m.Get(ctx, "bad")
	require.NoError(t, err)
	require.Zero(t, s.Cart.ItemCount())

	require.NoError(t, m.Forget(ctx, "bad"))
	require.False(t, mr.Exists("toko:session:bad"))
	require.Zero(t, m.Len())
}

func TestManagerReusesAndSweeps(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := session.NewManager(session.Config{
		NewCart: newCart,
		TTL:     30 * time.Minute,
		Now:     func() time.Time { return now },
	})
	ctx := context.Background()

	a, err := m.Get(ctx, "a")
	require.NoError(t, err)
	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.Same(t, a, again)

	_, err = m.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	now = now.Add(20 * time.Minute)
	_, err = m.Get(ctx, "b")
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, m.Sweep())
	require.Equal(t, 1, m.Len())

	_, err = m.Get(ctx, "")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestMiddlewareAssignsAndReusesSession(t *testing.T) {
	_, client := newRedis(t)
	snaps := session.NewRedisSnapshots(client, "mw", time.Hour)
	m := session.NewManager(session.Config{NewCart: newCart, Snapshots: snaps})

	var seen []string
	handler := m.Middleware(session.CookieOptions{MaxAge: time.Hour})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := common.SessionID(r.Context())
		require.True(t, ok)
		seen = append(seen, id)
		c, err := session.CartFor(r)
		require.NoError(t, err)
		if r.Method == http.MethodPost {
			_, err = c.AddItem(cart.Candidate{ID: "p-1", Price: pricing.MustParse("10"), Stock: 3})
			require.NoError(t, err)
		}
		_, err = session.WishlistFor(r)
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cart/items", nil))
	id := rec.Header().Get(common.SessionHeader)
	require.NotEmpty(t, id)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, common.SessionCookie, cookies[0].Name)
	require.Equal(t, id, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)

	snap, found, err := snaps.Load(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snap.Cart.Items, 1)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: common.SessionCookie, Value: id})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, id, rec.Header().Get(common.SessionHeader))
	require.Empty(t, rec.Result().Cookies())

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(common.SessionHeader, "bad id!")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEqual(t, "bad id!", rec.Header().Get(common.SessionHeader))
	require.Len(t, seen, 3)
	require.Equal(t, seen[0], seen[1])
}

func TestStoreFuncsWithoutSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(""))
	_, err := session.CartFor(req)
	require.ErrorIs(t, err, session.ErrNoSession)
	_, err = session.WishlistFor(req)
	require.ErrorIs(t, err, session.ErrNoSession)
}
