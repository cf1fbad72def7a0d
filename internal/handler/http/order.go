package http

import (
	"log/slog"
	"net/http"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/store"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/pagination"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	registry *store.Registry
	logger   *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(registry *store.Registry, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		registry: registry,
		logger:   logger,
	}
}

// PlaceOrder handles POST /api/v1/orders. It answers 201 with the new order,
// or 204 when the cart is empty and nothing was recorded.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Get(r.Context(), sessionFromRequest(r))

	order, ok := s.PlaceOrder(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteData(w, http.StatusCreated, order)
}

// ListOrders handles GET /api/v1/orders?page=&per_page=, oldest first.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Get(r.Context(), sessionFromRequest(r))

	page := pagination.Paginate[domain.Order](s.Orders(), pagination.FromRequest(r))
	httputil.WriteJSON(w, http.StatusOK, page)
}
