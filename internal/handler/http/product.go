package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecobazaar/storefront/internal/catalog"
	"github.com/ecobazaar/storefront/internal/store"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/pagination"
	"github.com/ecobazaar/storefront/pkg/validator"
)

// ProductHandler handles HTTP requests for catalog endpoints.
type ProductHandler struct {
	service  *catalog.Service
	registry *store.Registry
	logger   *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(service *catalog.Service, registry *store.Registry, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		registry: registry,
		logger:   logger,
	}
}

// filterFromQuery reads category, max_carbon and q.
func filterFromQuery(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{
		Category: strings.TrimSpace(q.Get("category")),
		Query:    q.Get("q"),
	}
	if raw := q.Get("max_carbon"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return f, apperrors.InvalidParameter("max_carbon", raw)
		}
		f.MaxCarbon = &d
	}
	return f, nil
}

// ListProducts handles GET /api/v1/products?category=&max_carbon=&q=&page=&per_page=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.Paginate(products, pagination.FromRequest(r)))
}

// GetProduct handles GET /api/v1/products/{idOrSlug}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !product.Approved {
		httputil.WriteError(w, r, apperrors.NotFound("product", chi.URLParam(r, "idOrSlug")), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, product)
}

// LikeProduct handles POST /api/v1/products/{idOrSlug}/like
func (h *ProductHandler) LikeProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	product, err = h.service.LikeProduct(r.Context(), product.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, product)
}

// AddToCart handles POST /api/v1/products/{idOrSlug}/cart. The cart entry is
// a snapshot of the listing at the time it is added.
func (h *ProductHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !product.Approved {
		httputil.WriteError(w, r, apperrors.NotFound("product", chi.URLParam(r, "idOrSlug")), h.logger)
		return
	}

	s := h.registry.Get(r.Context(), sessionFromRequest(r))
	s.AddToCart(r.Context(), product.CartProduct())
	httputil.WriteData(w, http.StatusOK, s.Snapshot())
}

// --- Seller endpoints ---

// ListSellerProducts handles GET /api/v1/seller/products, including listings
// not yet approved.
func (h *ProductHandler) ListSellerProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	filter.SellerID = sellerFromRequest(r)
	filter.Unapproved = true

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.Paginate(products, pagination.FromRequest(r)))
}

// CreateProduct handles POST /api/v1/seller/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateProductInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), sellerFromRequest(r), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/v1/seller/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.UpdateProductInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), sellerFromRequest(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/seller/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), sellerFromRequest(r), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
