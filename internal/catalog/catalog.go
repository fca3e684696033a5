package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

//go:embed products.json
var defaultDataset []byte

// ErrNotFound is returned when a product cannot be located. It matches
// cart.ErrNotFound so cart handlers can map it without importing catalog.
var ErrNotFound = fmt.Errorf("product %w", cart.ErrNotFound)

const (
	defaultLimit = 12
	maxLimit     = 48
	relatedLimit = 4
)

// Sort orders accepted by List.
const (
	SortFeatured  = ""
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
	SortRating    = "rating"
	SortNewest    = "newest"
)

// Product is a sanitized catalog record.
type Product struct {
	ID            string
	Name          string
	Slug          string
	Price         pricing.Money
	OriginalPrice *pricing.Money
	Image         string
	Brand         string
	Category      string
	Sizes         []string
	Colors        []string
	SKU           string
	Stock         int
	Rating        float64
	CreatedAt     time.Time

	position int
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool { return p.Stock > 0 }

// Category summarises products grouped by category.
type Category struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Brand summarises products grouped by brand.
type Brand struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListParams captures filters, sorting and pagination for List.
type ListParams struct {
	Query    string
	Category string
	Brand    string
	MinPrice *pricing.Money
	MaxPrice *pricing.Money
	InStock  *bool
	Sort     string
	Page     int
	Limit    int
}

// ListResult is one page of products.
type ListResult struct {
	Items []Product
	Total int
	Page  int
	Limit int
}

// Catalog is an immutable in-memory product dataset.
type Catalog struct {
	products []Product
	byID     map[string]int
	bySlug   map[string]int
}

type record struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Price         any       `json:"price"`
	OriginalPrice any       `json:"originalPrice"`
	Image         string    `json:"image"`
	Brand         string    `json:"brand"`
	Category      string    `json:"category"`
	Sizes         []string  `json:"sizes"`
	Colors        []string  `json:"colors"`
	SKU           string    `json:"sku"`
	Stock         any       `json:"stock"`
	Rating        any       `json:"rating"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Default loads the embedded dataset.
func Default() (*Catalog, error) {
	return Load(defaultDataset)
}

// Load decodes a JSON array of product records. Prices and stock are decoded
// leniently; records without an id are skipped.
func Load(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []record
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(sanitize(rows)), nil
}

// New builds a catalog from already sanitized products, preserving order as
// the featured ordering.
func New(products []Product) *Catalog {
	c := &Catalog{
		byID:   make(map[string]int, len(products)),
		bySlug: make(map[string]int, len(products)),
	}
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		p.position = len(c.products)
		if p.Slug == "" {
			p.Slug = slugify(p.Name)
		}
		c.byID[p.ID] = p.position
		if _, taken := c.bySlug[p.Slug]; !taken {
			c.bySlug[p.Slug] = p.position
		}
		c.products = append(c.products, p)
	}
	return c
}

func sanitize(rows []record) []Product {
	out := make([]Product, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		p := Product{
			ID:        id,
			Name:      strings.TrimSpace(row.Name),
			Slug:      strings.TrimSpace(row.Slug),
			Price:     pricing.ParseAmount(row.Price),
			Image:     row.Image,
			Brand:     strings.TrimSpace(row.Brand),
			Category:  strings.ToLower(strings.TrimSpace(row.Category)),
			Sizes:     compact(row.Sizes),
			Colors:    compact(row.Colors),
			SKU:       strings.TrimSpace(row.SKU),
			Stock:     parseCount(row.Stock),
			Rating:    parseRating(row.Rating),
			CreatedAt: row.CreatedAt,
		}
		if p.Name == "" {
			p.Name = id
		}
		if original := pricing.ParseAmount(row.OriginalPrice); original.IsPositive() {
			p.OriginalPrice = &original
		}
		out = append(out, p)
	}
	return out
}

func parseCount(v any) int {
	n, ok := v.(json.Number)
	if !ok {
		if s, isString := v.(string); isString {
			n = json.Number(strings.TrimSpace(s))
		}
	}
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return 0
		}
		return int(i)
	}
	if f, err := n.Float64(); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

func parseRating(v any) float64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	f, err := n.Float64()
	if err != nil || f < 0 {
		return 0
	}
	if f > 5 {
		return 5
	}
	return f
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Get returns the product with the given id.
func (c *Catalog) Get(id string) (Product, error) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, ErrNotFound
	}
	return c.products[idx], nil
}

// BySlug returns the product with the given slug.
func (c *Catalog) BySlug(slug string) (Product, error) {
	idx, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Product{}, ErrNotFound
	}
	return c.products[idx], nil
}

// Lookup resolves a slug, falling back to an id.
func (c *Catalog) Lookup(slugOrID string) (Product, error) {
	if p, err := c.BySlug(slugOrID); err == nil {
		return p, nil
	}
	return c.Get(slugOrID)
}

// List filters, sorts and paginates products.
func (c *Catalog) List(params ListParams) ListResult {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = defaultLimit
	}
	query := strings.ToLower(strings.TrimSpace(params.Query))
	category := strings.ToLower(strings.TrimSpace(params.Category))
	brand := strings.TrimSpace(params.Brand)

	matched := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) && !strings.Contains(strings.ToLower(p.Brand), query) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if brand != "" && !strings.EqualFold(p.Brand, brand) && slugify(p.Brand) != strings.ToLower(brand) {
			continue
		}
		if params.MinPrice != nil && p.Price.LessThan(*params.MinPrice) {
			continue
		}
		if params.MaxPrice != nil && p.Price.GreaterThan(*params.MaxPrice) {
			continue
		}
		if params.InStock != nil && p.InStock() != *params.InStock {
			continue
		}
		matched = append(matched, p)
	}
	sortProducts(matched, params.Sort)

	result := ListResult{Total: len(matched), Page: params.Page, Limit: params.Limit}
	start := (params.Page - 1) * params.Limit
	if start >= len(matched) {
		result.Items = []Product{}
		return result
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	result.Items = matched[start:end]
	return result
}

func sortProducts(items []Product, order string) {
	var less func(a, b Product) bool
	switch order {
	case SortPriceAsc:
		less = func(a, b Product) bool { return a.Price.LessThan(b.Price) }
	case SortPriceDesc:
		less = func(a, b Product) bool { return a.Price.GreaterThan(b.Price) }
	case SortName:
		less = func(a, b Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortRating:
		less = func(a, b Product) bool { return a.Rating > b.Rating }
	case SortNewest:
		less = func(a, b Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		less = func(a, b Product) bool { return a.position < b.position }
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// Related returns up to four other products from the same category.
func (c *Catalog) Related(slugOrID string) ([]Product, error) {
	p, err := c.Lookup(slugOrID)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, relatedLimit)
	for _, other := range c.products {
		if other.ID == p.ID || other.Category != p.Category {
			continue
		}
		out = append(out, other)
		if len(out) == relatedLimit {
			break
		}
	}
	return out, nil
}

// Categories lists categories sorted by slug.
func (c *Catalog) Categories() []Category {
	counts := map[string]int{}
	for _, p := range c.products {
		if p.Category != "" {
			counts[p.Category]++
		}
	}
	out := make([]Category, 0, len(counts))
	for slug, n := range counts {
		out = append(out, Category{Slug: slug, Name: titleCase(slug), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Brands lists brands sorted by name.
func (c *Catalog) Brands() []Brand {
	counts := map[string]int{}
	names := map[string]string{}
	for _, p := range c.products {
		if p.Brand == "" {
			continue
		}
		slug := slugify(p.Brand)
		counts[slug]++
		if _, ok := names[slug]; !ok {
			names[slug] = p.Brand
		}
	}
	out := make([]Brand, 0, len(counts))
	for slug, n := range counts {
		out = append(out, Brand{Slug: slug, Name: names[slug], Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Candidate builds a cart candidate for a product variant. Size and color
// must be one of the product's options when the product declares any.
func (c *Catalog) Candidate(productID string, quantity int, size, color string) (cart.Candidate, error) {
	p, err := c.Get(productID)
	if err != nil {
		return cart.Candidate{}, err
	}
	size, err = pickOption("size", p.Sizes, size)
	if err != nil {
		return cart.Candidate{}, err
	}
	color, err = pickOption("color", p.Colors, color)
	if err != nil {
		return cart.Candidate{}, err
	}
	return cart.Candidate{
		ID:            cart.VariantID(p.ID, size, color),
		ProductID:     p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Quantity:      quantity,
		Image:         p.Image,
		Size:          size,
		Color:         color,
		Brand:         p.Brand,
		SKU:           p.SKU,
		Stock:         p.Stock,
	}, nil
}

func pickOption(name string, options []string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("unsupported %s %q: %w", name, value, cart.ErrInvalidInput)
}

// ParseListParams reads list filters from query values.
func ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Brand = strings.TrimSpace(values.Get("brand"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	var err error
	if params.MinPrice, err = parsePrice(values, "minPrice"); err != nil {
		return params, err
	}
	if params.MaxPrice, err = parsePrice(values, "maxPrice"); err != nil {
		return params, err
	}
	if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.GreaterThan(*params.MaxPrice) {
		return params, badRequest("price", "minPrice cannot be greater than maxPrice", errors.New("invalid price range"))
	}

	if v := strings.TrimSpace(values.Get("inStock")); v != "" {
		b := common.ParseBoolPtr(v)
		if b == nil {
			return params, badRequest("inStock", "inStock must be true or false", fmt.Errorf("invalid boolean: %s", v))
		}
		params.InStock = b
	}

	params.Sort = normalizeSort(values.Get("sort"))
	return params, nil
}

func parsePrice(values url.Values, key string) (*pricing.Money, error) {
	v := strings.TrimSpace(values.Get(key))
	if v == "" {
		return nil, nil
	}
	amount, err := pricing.ParseDecimal(v)
	if err != nil || amount.IsNegative() {
		return nil, badRequest(key, key+" must be a non-negative number", err)
	}
	return &amount, nil
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case SortPriceAsc, SortPriceDesc, SortName, SortRating, SortNewest:
		return s
	case "price:asc":
		return SortPriceAsc
	case "price:desc":
		return SortPriceDesc
	default:
		return SortFeatured
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}
