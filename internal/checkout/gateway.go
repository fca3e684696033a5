// Package checkout hands a priced cart over to the external checkout service.
package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// ReasonEmptyCart is reported when a checkout is attempted without items.
const ReasonEmptyCart = "cart is empty"

// Line is one item of the order snapshot.
type Line struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	SKU       string        `json:"sku,omitempty"`
	Size      string        `json:"size,omitempty"`
	Color     string        `json:"color,omitempty"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unitPrice"`
}

// Order is the immutable payload submitted to the checkout service.
type Order struct {
	Reference      string          `json:"reference"`
	Currency       string          `json:"currency"`
	Items          []Line          `json:"items"`
	PromoCode      string          `json:"promoCode,omitempty"`
	ShippingMethod string          `json:"shippingMethod"`
	Totals         pricing.Summary `json:"totals"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Result mirrors the {success, error?, orderId?} shape of the checkout service.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(reason string) Result {
	return Result{Success: false, Error: reason}
}

// Gateway submits orders to a checkout service. A returned error signals a
// transport problem; business rejections are reported through Result.
type Gateway interface {
	Submit(ctx context.Context, order Order) (Result, error)
}

// StubGateway accepts every non-empty order and assigns a random order id.
type StubGateway struct{}

// Submit implements Gateway.
func (StubGateway) Submit(ctx context.Context, order Order) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(order.Items) == 0 {
		return Failed(ReasonEmptyCart), nil
	}
	return Result{Success: true, OrderID: uuid.NewString()}, nil
}
