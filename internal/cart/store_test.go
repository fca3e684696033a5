package cart_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/promo"
	"github.com/noah-isme/toko-storefront/internal/shipping"
)

type fakeGateway struct {
	mu     sync.Mutex
	orders []checkout.Order
	result checkout.Result
	err    error
}

func (g *fakeGateway) Submit(_ context.Context, order checkout.Order) (checkout.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, order)
	return g.result, g.err
}

func newStore(gw checkout.Gateway) *cart.Store {
	return cart.NewStore(cart.Config{
		Promo:    promo.NewTable(promo.DefaultRules()...),
		Shipping: shipping.NewResolver(pricing.MustParse("99"), shipping.DefaultMethods()...),
		Checkout: gw,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func candidate(id string, price string, qty, stock int) cart.Candidate {
	return cart.Candidate{ID: id, Name: "Product " + id, Price: pricing.MustParse(price), Quantity: qty, Stock: stock}
}

func fixed(m pricing.Money) string { return m.StringFixed(2) }

func TestEmptyCartTotalsAndCheckout(t *testing.T) {
	gw := &fakeGateway{}
	s := newStore(gw)

	totals := s.Totals()
	require.Equal(t, "0.00", fixed(totals.Subtotal))
	require.Equal(t, "0.00", fixed(totals.Shipping))
	require.Equal(t, "0.00", fixed(totals.Tax))
	require.Equal(t, "0.00", fixed(totals.Total))

	res := s.StartCheckout(context.Background())
	require.False(t, res.Success)
	require.Equal(t, "cart is empty", res.Error)
	require.Empty(t, gw.orders)
}

func TestSingleItemAboveThreshold(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "50", 2, 10))
	require.NoError(t, err)

	totals := s.Totals()
	require.Equal(t, "100.00", fixed(totals.Subtotal))
	require.Equal(t, "0.00", fixed(totals.Shipping))
	require.Equal(t, "8.00", fixed(totals.Tax))
	require.Equal(t, "108.00", fixed(totals.Total))
	require.Equal(t, 2, s.ItemCount())
}

func TestPercentagePromo(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "50", 2, 10))
	require.NoError(t, err)

	res := s.ApplyPromoCode(context.Background(), "save10")
	require.True(t, res.Applied)
	require.Equal(t, "SAVE10", res.Code)
	require.Equal(t, "10.00", fixed(res.Discount))

	totals := s.Totals()
	require.Equal(t, "10.00", fixed(totals.Discount))
	require.Equal(t, "7.20", fixed(totals.Tax))
	// 90 after discount is below the free-shipping threshold
	require.Equal(t, "8.00", fixed(totals.Shipping))
	require.Equal(t, "105.20", fixed(totals.Total))
}

func TestBelowThresholdChargesStandardRate(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "30", 1, 3))
	require.NoError(t, err)

	totals := s.Totals()
	require.Equal(t, "30.00", fixed(totals.Subtotal))
	require.Equal(t, "8.00", fixed(totals.Shipping))
	require.Equal(t, "2.40", fixed(totals.Tax))
	require.Equal(t, "40.40", fixed(totals.Total))
}

func TestZeroTaxRateIsHonoured(t *testing.T) {
	zero := pricing.MustParse("0")
	s := cart.NewStore(cart.Config{
		Shipping: shipping.NewResolver(pricing.MustParse("99"), shipping.DefaultMethods()...),
		TaxRate:  &zero,
	})
	_, err := s.AddItem(candidate("p-1", "30", 1, 3))
	require.NoError(t, err)

	totals := s.Totals()
	require.Equal(t, "0.00", fixed(totals.Tax))
	require.Equal(t, "38.00", fixed(totals.Total))
}

func TestInvalidPromoLeavesSelection(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "50", 2, 10))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "WELCOME15").Applied)
	before := s.Totals()

	res := s.ApplyPromoCode(context.Background(), "FAKECODE")
	require.False(t, res.Applied)
	require.Equal(t, cart.ReasonPromoInvalid, res.Reason)

	sel, ok := s.Promo()
	require.True(t, ok)
	require.Equal(t, "WELCOME15", sel.Code)
	require.Equal(t, before, s.Totals())

	blank := s.ApplyPromoCode(context.Background(), "   ")
	require.False(t, blank.Applied)
	require.Equal(t, cart.ReasonPromoRequired, blank.Reason)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (promo.Rule, error) {
	return promo.Rule{}, errors.New("upstream down")
}

func TestPromoResolverFailure(t *testing.T) {
	s := cart.NewStore(cart.Config{Promo: failingResolver{}})
	res := s.ApplyPromoCode(context.Background(), "SAVE10")
	require.False(t, res.Applied)
	require.Equal(t, cart.ReasonPromoUnavailable, res.Reason)
}

func TestPromoRoundTrip(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "42.37", 3, 10))
	require.NoError(t, err)
	baseline := s.Totals()

	for _, code := range []string{"SAVE10", "WELCOME15", "FREESHIP", "FLAT20"} {
		require.True(t, s.ApplyPromoCode(context.Background(), code).Applied, code)
		require.True(t, s.RemovePromoCode())
		require.Equal(t, baseline, s.Totals(), code)
	}
	require.False(t, s.RemovePromoCode())
}

func TestApplyingNewPromoReplacesPrevious(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "200", 1, 1))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "SAVE10").Applied)
	require.True(t, s.ApplyPromoCode(context.Background(), "FLAT20").Applied)

	sel, ok := s.Promo()
	require.True(t, ok)
	require.Equal(t, "FLAT20", sel.Code)
	require.Equal(t, "20.00", fixed(s.Totals().Discount))
}

func TestFreeShippingPromoBelowThreshold(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "30", 1, 5))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), " freeship ").Applied)

	totals := s.Totals()
	require.Equal(t, "0.00", fixed(totals.Discount))
	require.Equal(t, "0.00", fixed(totals.Shipping))
	require.Equal(t, "32.40", fixed(totals.Total))

	sel, ok := s.SetShippingOption("express")
	require.True(t, ok)
	require.Equal(t, "7.00", fixed(sel.Cost), "premium method keeps its surcharge")
}

func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "5", 1, 5))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "FLAT20").Applied)

	totals := s.Totals()
	require.Equal(t, "5.00", fixed(totals.Discount))
	require.True(t, totals.Discount.LessThanOrEqual(totals.Subtotal))
	require.False(t, totals.Total.IsNegative())
	require.Equal(t, "0.00", fixed(totals.Tax))
	require.Equal(t, "8.00", fixed(totals.Total))
}

func TestAddItemMergesAndClamps(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "10", 2, 5))
	require.NoError(t, err)
	_, err = s.AddItem(candidate("p-2", "3.50", 0, 5))
	require.NoError(t, err)
	item, err := s.AddItem(candidate("p-1", "10", 4, 5))
	require.NoError(t, err)

	require.Equal(t, 5, item.Quantity, "merged quantity clamped to stock")
	items := s.Items()
	require.Len(t, items, 2)
	require.Equal(t, 1, items[1].Quantity, "missing quantity defaults to 1")
	require.Equal(t, "53.50", fixed(s.Totals().Subtotal))
	require.Equal(t, 6, s.ItemCount())
}

func TestVariantsShareProductStock(t *testing.T) {
	s := newStore(nil)
	variant := func(size string, qty int) cart.Candidate {
		c := candidate(cart.VariantID("p-016", size, "red"), "20", qty, 3)
		c.ProductID = "p-016"
		c.Size = size
		return c
	}

	small, err := s.AddItem(variant("S", 2))
	require.NoError(t, err)
	require.Equal(t, 2, small.Quantity)

	medium, err := s.AddItem(variant("M", 3))
	require.NoError(t, err)
	require.Equal(t, 1, medium.Quantity, "clamped to the stock left by other variants")

	_, err = s.AddItem(variant("L", 1))
	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.Equal(t, 3, s.ItemCount())

	updated, ok := s.UpdateQuantity(small.ID, 3)
	require.True(t, ok)
	require.Equal(t, 2, updated.Quantity)

	require.True(t, s.RemoveItem(medium.ID))
	updated, ok = s.UpdateQuantity(small.ID, 3)
	require.True(t, ok)
	require.Equal(t, 3, updated.Quantity)

	_, err = s.AddItem(variant("XL", 1))
	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.Equal(t, 3, s.ItemCount())
}

func TestAddItemRejectsInvalidCandidates(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate(" ", "10", 1, 5))
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	_, err = s.AddItem(candidate("p-1", "10", 1, 0))
	require.ErrorIs(t, err, cart.ErrOutOfStock)
	require.ErrorIs(t, err, cart.ErrInvalidInput)
	require.Empty(t, s.Items())
}

func TestAddItemSanitizesNegativePrice(t *testing.T) {
	s := newStore(nil)
	item, err := s.AddItem(candidate("p-1", "-4", 1, 5))
	require.NoError(t, err)
	require.Equal(t, "0.00", fixed(item.Price))
}

func TestUpdateQuantity(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "10", 2, 5))
	require.NoError(t, err)

	item, ok := s.UpdateQuantity("p-1", 999)
	require.True(t, ok)
	require.Equal(t, 5, item.Quantity)

	_, ok = s.UpdateQuantity("p-1", 0)
	require.False(t, ok)
	got, _ := s.Item("p-1")
	require.Equal(t, 5, got.Quantity, "q < 1 leaves the item untouched")

	_, ok = s.UpdateQuantity("missing", 2)
	require.False(t, ok)

	item, ok = s.UpdateQuantity("p-1", 3)
	require.True(t, ok)
	require.Equal(t, 3, item.Quantity)
}

func TestRemoveItem(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "10", 1, 5))
	require.NoError(t, err)
	require.True(t, s.RemoveItem("p-1"))
	require.False(t, s.RemoveItem("p-1"))
	require.Zero(t, s.ItemCount())
}

func TestClearIsIdempotent(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "10", 1, 5))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "SAVE10").Applied)
	_, ok := s.SetShippingOption("pickup")
	require.True(t, ok)

	s.Clear()
	first := s.Snapshot()
	s.Clear()
	second := s.Snapshot()

	require.Equal(t, first.Items, second.Items)
	require.Equal(t, first.Promo, second.Promo)
	require.Equal(t, first.ShippingMethod, second.ShippingMethod)
	require.Equal(t, shipping.MethodStandard, second.ShippingMethod)
	require.Zero(t, s.ItemCount())
	require.Equal(t, "0.00", fixed(s.Totals().Subtotal))
	_, hasPromo := s.Promo()
	require.False(t, hasPromo)
}

func TestSubtotalAdditivity(t *testing.T) {
	s := newStore(nil)
	prices := []string{"19.99", "0.01", "7.25", "120"}
	want := pricing.Zero
	for i, p := range prices {
		qty := i + 1
		_, err := s.AddItem(candidate(p, p, qty, 10))
		require.NoError(t, err)
		want = want.Add(pricing.MustParse(p).Mul(pricing.MustParse(strconv.Itoa(qty))))
	}
	require.Equal(t, fixed(want), fixed(s.Totals().Subtotal))
}

func TestSetShippingOption(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "30", 1, 5))
	require.NoError(t, err)

	sel, ok := s.SetShippingOption("EXPRESS")
	require.True(t, ok)
	require.Equal(t, shipping.MethodExpress, sel.Method)
	require.Equal(t, "15.00", fixed(sel.Cost))

	_, ok = s.SetShippingOption("teleport")
	require.False(t, ok)
	require.Equal(t, shipping.MethodExpress, s.Shipping().Method)

	_, err = s.AddItem(candidate("p-2", "100", 1, 5))
	require.NoError(t, err)
	require.Equal(t, "7.00", fixed(s.Shipping().Cost), "cost recomputed from current totals")
}

func TestStartCheckoutSubmitsOrder(t *testing.T) {
	gw := &fakeGateway{result: checkout.Result{Success: true, OrderID: "ord-1"}}
	s := newStore(gw)
	_, err := s.AddItem(candidate("p-1", "50", 2, 10))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "SAVE10").Applied)

	res := s.StartCheckout(context.Background())
	require.True(t, res.Success)
	require.Equal(t, "ord-1", res.OrderID)
	require.NotEmpty(t, res.Reference)

	require.Len(t, gw.orders, 1)
	order := gw.orders[0]
	require.Equal(t, "SAVE10", order.PromoCode)
	require.Equal(t, "USD", order.Currency)
	require.Equal(t, "105.20", fixed(order.Totals.Total))
	require.Equal(t, 2, order.Items[0].Quantity)
	require.Equal(t, 2, s.ItemCount(), "store does not clear the cart")
}

func TestStartCheckoutFailures(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection refused")}
	s := newStore(gw)
	_, err := s.AddItem(candidate("p-1", "50", 1, 10))
	require.NoError(t, err)

	res := s.StartCheckout(context.Background())
	require.False(t, res.Success)
	require.Equal(t, cart.ReasonCheckoutDown, res.Error)

	gw.err = nil
	gw.result = checkout.Result{Success: false, Error: "payment declined"}
	res = s.StartCheckout(context.Background())
	require.False(t, res.Success)
	require.Equal(t, "payment declined", res.Error)

	noGateway := newStore(nil)
	_, err = noGateway.AddItem(candidate("p-1", "50", 1, 10))
	require.NoError(t, err)
	require.Equal(t, cart.ReasonCheckoutDown, noGateway.StartCheckout(context.Background()).Error)
}

func TestReadsDuringPendingCheckout(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := blockingGateway{entered: entered, release: release}
	s := newStore(gw)
	_, err := s.AddItem(candidate("p-1", "50", 2, 10))
	require.NoError(t, err)

	done := make(chan cart.CheckoutResult, 1)
	go func() { done <- s.StartCheckout(context.Background()) }()
	<-entered

	require.Equal(t, "108.00", fixed(s.Totals().Total))
	_, ok := s.UpdateQuantity("p-1", 1)
	require.True(t, ok)

	close(release)
	res := <-done
	require.True(t, res.Success)
	require.Equal(t, "108.00", fixed(res.Totals.Total), "order reflects the cart at submission")
}

type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func (g blockingGateway) Submit(ctx context.Context, _ checkout.Order) (checkout.Result, error) {
	close(g.entered)
	<-g.release
	return checkout.Result{Success: true, OrderID: "ord-2"}, nil
}

func TestSnapshotRestore(t *testing.T) {
	s := newStore(nil)
	_, err := s.AddItem(candidate("p-1", "25", 2, 3))
	require.NoError(t, err)
	require.True(t, s.ApplyPromoCode(context.Background(), "SAVE10").Applied)
	_, ok := s.SetShippingOption("express")
	require.True(t, ok)

	restored := newStore(nil)
	restored.Restore(s.Snapshot())
	require.Equal(t, s.Items(), restored.Items())
	require.Equal(t, s.Totals(), restored.Totals())
	require.Equal(t, shipping.MethodExpress, restored.Shipping().Method)

	tampered := s.Snapshot()
	tampered.Items = append(tampered.Items, cart.LineItem{ID: "p-1", Quantity: 9, Stock: 3, Price: pricing.MustParse("25")}, cart.LineItem{ID: "bad", Stock: 0})
	tampered.ShippingMethod = "drone"
	tampered.Promo = &cart.PromoSelection{Code: "x", Discount: pricing.Discount{Kind: "bogus"}}
	restored.Restore(tampered)

	items := restored.Items()
	require.Len(t, items, 1)
	require.Equal(t, 3, items[0].Quantity)
	require.Equal(t, shipping.MethodStandard, restored.Shipping().Method)
	_, hasPromo := restored.Promo()
	require.False(t, hasPromo)
}

func TestVariantID(t *testing.T) {
	require.Equal(t, "p-1", cart.VariantID("p-1", "", ""))
	require.Equal(t, "p-1:m:navy-blue", cart.VariantID("p-1", " M ", "Navy Blue"))
}
