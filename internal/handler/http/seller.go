package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecobazaar/storefront/internal/fulfillment"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/pagination"
)

// SellerOrderHandler handles HTTP requests for the seller's order board.
type SellerOrderHandler struct {
	board  *fulfillment.Board
	logger *slog.Logger
}

// NewSellerOrderHandler creates a new seller order HTTP handler.
func NewSellerOrderHandler(board *fulfillment.Board, logger *slog.Logger) *SellerOrderHandler {
	return &SellerOrderHandler{
		board:  board,
		logger: logger,
	}
}

// ListOrders handles GET /api/v1/seller/orders?status=&page=&per_page=.
// An empty status or "All" lists every order.
func (h *SellerOrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status fulfillment.Status
	if raw := r.URL.Query().Get("status"); raw != "" && raw != "All" && raw != "all" {
		st, ok := fulfillment.ParseStatus(raw)
		if !ok {
			httputil.WriteError(w, r, apperrors.InvalidParameter("status", raw), h.logger)
			return
		}
		status = st
	}

	orders, err := h.board.List(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.Paginate(orders, pagination.FromRequest(r)))
}

// GetOrder handles GET /api/v1/seller/orders/{id}
func (h *SellerOrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.board.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateStatus handles PUT /api/v1/seller/orders/{id}/status/{status}. The
// status is matched ignoring case.
func (h *SellerOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "status")
	status, ok := fulfillment.ParseStatus(raw)
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidParameter("status", raw), h.logger)
		return
	}

	order, err := h.board.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}
