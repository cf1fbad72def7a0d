package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/store"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	registry *store.Registry
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(registry *store.Registry, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		registry: registry,
		logger:   logger,
	}
}

// --- Request DTOs ---

// UpdateQuantityRequest is the JSON request body for updating an entry's
// quantity. Zero or less removes the entry.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Handlers ---

func (h *CartHandler) store(r *http.Request) *store.Store {
	return h.registry.Get(r.Context(), sessionFromRequest(r))
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.store(r).Snapshot())
}

// AddItem handles POST /api/v1/cart/items. Any product-like JSON object is
// accepted; missing fields take their defaults.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := validator.DecodeAndValidate(w, r, &p); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	s := h.store(r)
	s.AddToCart(r.Context(), p)
	httputil.WriteData(w, http.StatusOK, s.Snapshot())
}

// UpdateQuantity handles PUT /api/v1/cart/items/{position}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	position, ok := h.position(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	s := h.store(r)
	s.UpdateQuantity(r.Context(), position, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, s.Snapshot())
}

// RemoveItem handles DELETE /api/v1/cart/items/{position}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	position, ok := h.position(w, r)
	if !ok {
		return
	}

	s := h.store(r)
	s.RemoveFromCart(r.Context(), position)
	httputil.WriteData(w, http.StatusOK, s.Snapshot())
}

// position parses the {position} path parameter. Out-of-range values are
// left to the store, which ignores them.
func (h *CartHandler) position(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "position")
	position, err := strconv.Atoi(raw)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidParameter("position", raw), h.logger)
		return 0, false
	}
	return position, true
}
