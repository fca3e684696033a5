package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	catalog *Catalog
}

// NewHandler constructs a Handler.
func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.Products)
	r.Get("/products/{slug}", h.ProductDetail)
	r.Get("/products/{slug}/related", h.Related)
	r.Get("/categories", h.Categories)
	r.Get("/brands", h.Brands)
}

// Brands handles GET /api/v1/brands.
func (h *Handler) Brands(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.catalog.Brands())
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.catalog.Categories())
}

// Products handles GET /api/v1/products with filters, sorting, and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	params, err := ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result := h.catalog.List(params)
	items := make([]map[string]any, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, listView(p))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
	})
}

// ProductDetail handles GET /api/v1/products/{slug}. Product ids are accepted
// in place of slugs.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	p, err := h.catalog.Lookup(chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, detailView(p))
}

// Related handles GET /api/v1/products/{slug}/related.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	related, err := h.catalog.Related(chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(related))
	for _, p := range related {
		items = append(items, listView(p))
	}
	common.Data(w, http.StatusOK, items)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func listView(p Product) map[string]any {
	out := map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"slug":     p.Slug,
		"price":    p.Price.StringFixed(2),
		"image":    p.Image,
		"brand":    p.Brand,
		"category": p.Category,
		"rating":   p.Rating,
		"inStock":  p.InStock(),
	}
	if p.OriginalPrice != nil {
		out["originalPrice"] = p.OriginalPrice.StringFixed(2)
	}
	return out
}

func detailView(p Product) map[string]any {
	out := listView(p)
	out["sizes"] = p.Sizes
	out["colors"] = p.Colors
	out["sku"] = p.SKU
	out["stock"] = p.Stock
	if !p.CreatedAt.IsZero() {
		out["createdAt"] = p.CreatedAt
	}
	return out
}
