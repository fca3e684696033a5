package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

var (
	// ErrInvalidInput is returned when a candidate or payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the requested line item or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOutOfStock is returned when adding a product with no stock.
	ErrOutOfStock = fmt.Errorf("out of stock: %w", ErrInvalidInput)
)

// LineItem is one product instance held in the cart. Values produced by
// NewLineItem always satisfy 1 <= Quantity <= Stock.
type LineItem struct {
	ID            string         `json:"id"`
	ProductID     string         `json:"productId"`
	Name          string         `json:"name"`
	Slug          string         `json:"slug,omitempty"`
	Price         pricing.Money  `json:"price"`
	OriginalPrice *pricing.Money `json:"originalPrice,omitempty"`
	Quantity      int            `json:"quantity"`
	Image         string         `json:"image,omitempty"`
	Size          string         `json:"size,omitempty"`
	Color         string         `json:"color,omitempty"`
	Brand         string         `json:"brand,omitempty"`
	SKU           string         `json:"sku,omitempty"`
	Stock         int            `json:"stock"`
}

// Candidate is the untrusted description of a product being added.
type Candidate struct {
	ID            string
	ProductID     string
	Name          string
	Slug          string
	Price         pricing.Money
	OriginalPrice *pricing.Money
	Quantity      int
	Image         string
	Size          string
	Color         string
	Brand         string
	SKU           string
	Stock         int
}

// NewLineItem sanitizes a candidate into a LineItem. Negative prices become
// zero, a missing quantity defaults to 1 and quantities are clamped to stock.
func NewLineItem(c Candidate) (LineItem, error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return LineItem{}, fmt.Errorf("item id required: %w", ErrInvalidInput)
	}
	if c.Stock <= 0 {
		return LineItem{}, fmt.Errorf("%s: %w", id, ErrOutOfStock)
	}
	productID := strings.TrimSpace(c.ProductID)
	if productID == "" {
		productID = id
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = productID
	}
	var original *pricing.Money
	if c.OriginalPrice != nil && c.OriginalPrice.IsPositive() {
		v := *c.OriginalPrice
		original = &v
	}
	return LineItem{
		ID:            id,
		ProductID:     productID,
		Name:          name,
		Slug:          strings.TrimSpace(c.Slug),
		Price:         pricing.NonNegative(c.Price),
		OriginalPrice: original,
		Quantity:      clampQuantity(c.Quantity, c.Stock),
		Image:         strings.TrimSpace(c.Image),
		Size:          strings.TrimSpace(c.Size),
		Color:         strings.TrimSpace(c.Color),
		Brand:         strings.TrimSpace(c.Brand),
		SKU:           strings.TrimSpace(c.SKU),
		Stock:         c.Stock,
	}, nil
}

// LineTotal returns price x quantity at full precision.
func (li LineItem) LineTotal() pricing.Money {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// VariantID derives a line item id from the product id and the chosen
// variant so different sizes and colors occupy separate lines.
func VariantID(productID, size, color string) string {
	parts := []string{strings.TrimSpace(productID)}
	for _, v := range []string{size, color} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			parts = append(parts, strings.ReplaceAll(v, " ", "-"))
		}
	}
	return strings.Join(parts, ":")
}

func clampQuantity(q, stock int) int {
	if q < 1 {
		q = 1
	}
	if stock > 0 && q > stock {
		q = stock
	}
	return q
}
