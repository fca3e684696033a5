package shipping_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/shipping"
)

func newResolver() *shipping.Resolver {
	return shipping.NewResolver(pricing.MustParse("99"), shipping.DefaultMethods()...)
}

func TestStandardShippingThreshold(t *testing.T) {
	r := newResolver()

	cost, err := r.Cost(shipping.MethodStandard, pricing.MustParse("98.99"))
	require.NoError(t, err)
	require.Equal(t, "8.00", cost.StringFixed(2))

	cost, err = r.Cost(shipping.MethodStandard, pricing.MustParse("99"))
	require.NoError(t, err)
	require.True(t, cost.IsZero())

	cost, err = r.Cost("Standard", pricing.MustParse("250"))
	require.NoError(t, err)
	require.True(t, cost.IsZero())
}

func TestPremiumMethodKeepsSurcharge(t *testing.T) {
	r := newResolver()

	cost, err := r.Cost(shipping.MethodExpress, pricing.MustParse("20"))
	require.NoError(t, err)
	require.Equal(t, "15.00", cost.StringFixed(2))

	cost, err = r.Cost(shipping.MethodExpress, pricing.MustParse("150"))
	require.NoError(t, err)
	require.Equal(t, "7.00", cost.StringFixed(2))
}

func TestUnknownMethod(t *testing.T) {
	cost, err := newResolver().Cost("teleport", pricing.MustParse("10"))
	require.ErrorIs(t, err, shipping.ErrUnknownMethod)
	require.True(t, cost.IsZero())
}

func TestDefaultMethod(t *testing.T) {
	require.Equal(t, shipping.MethodStandard, newResolver().Default())
	only := shipping.NewResolver(pricing.Zero, shipping.Method{ID: "Courier", BaseRate: pricing.MustParse("3")})
	require.Equal(t, "courier", only.Default())
}

func TestMethodsHandler(t *testing.T) {
	h := &shipping.Handler{Resolver: newResolver()}
	rec := httptest.NewRecorder()
	h.Methods(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shipping/methods?amount=120", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			Method string `json:"method"`
			Cost   string `json:"cost"`
			Free   bool   `json:"free"`
		} `json:"data"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	require.Equal(t, "standard", body.Data[0].Method)
	require.True(t, body.Data[0].Free)
	require.Equal(t, "7.00", body.Data[1].Cost)
	require.Equal(t, "99.00", body.Meta["freeShippingThreshold"])
}
