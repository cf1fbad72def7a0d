package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/recommend"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/validator"
)

// DegradedMessage is shown instead of results when the recommendation
// service cannot answer.
const DegradedMessage = "Sorry, I couldn't process your request. Please try again."

// Recommender is satisfied by *recommend.Client.
type Recommender interface {
	Chat(ctx context.Context, message string, topN int) (recommend.ChatReply, error)
	Featured(ctx context.Context, topN int) ([]domain.Product, error)
	Similar(ctx context.Context, productID domain.ID) ([]domain.Product, error)
}

// RecommendHandler serves product suggestions and the shopping chatbot.
type RecommendHandler struct {
	recommender Recommender
	logger      *slog.Logger
}

// NewRecommendHandler creates a new recommendation HTTP handler.
func NewRecommendHandler(recommender Recommender, logger *slog.Logger) *RecommendHandler {
	return &RecommendHandler{
		recommender: recommender,
		logger:      logger,
	}
}

// --- Request DTOs ---

// ChatRequest is the JSON request body for the chatbot.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
	TopN    int    `json:"top_n" validate:"gte=0,lte=50"`
}

// SimilarRequest is the JSON request body for similar-product lookups.
type SimilarRequest struct {
	ProductID domain.ID `json:"product_id"`
}

// ProductsResponse lists products ready to be added to the cart.
type ProductsResponse struct {
	Products []domain.Product `json:"products"`
}

// --- Handlers ---

// Featured handles GET /api/v1/recommendations?top_n=
func (h *RecommendHandler) Featured(w http.ResponseWriter, r *http.Request) {
	topN := recommend.DefaultFeatured
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > recommend.MaxTopN {
			httputil.WriteError(w, r, apperrors.InvalidParameter("top_n", raw), h.logger)
			return
		}
		topN = n
	}

	products, err := h.recommender.Featured(r.Context(), topN)
	h.writeProducts(w, r, products, err)
}

// Similar handles POST /api/v1/recommendations/similar
func (h *RecommendHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.ProductID.IsZero() {
		httputil.WriteError(w, r, apperrors.InvalidInput("product_id is required"), h.logger)
		return
	}

	products, err := h.recommender.Similar(r.Context(), req.ProductID)
	h.writeProducts(w, r, products, err)
}

// Chat handles POST /api/v1/chatbot
func (h *RecommendHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("message cannot be empty"), h.logger)
		return
	}

	reply, err := h.recommender.Chat(r.Context(), req.Message, req.TopN)
	if err != nil {
		if h.abandoned(r, err) {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{
			Data:    recommend.ChatReply{Response: DegradedMessage, Message: req.Message, Products: []domain.Product{}},
			Message: DegradedMessage,
		})
		return
	}
	if reply.Products == nil {
		reply.Products = []domain.Product{}
	}
	httputil.WriteData(w, http.StatusOK, reply)
}

// writeProducts renders products, or an empty list with DegradedMessage when
// the service failed.
func (h *RecommendHandler) writeProducts(w http.ResponseWriter, r *http.Request, products []domain.Product, err error) {
	if err != nil {
		if h.abandoned(r, err) {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{
			Data:    ProductsResponse{Products: []domain.Product{}},
			Message: DegradedMessage,
		})
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	httputil.WriteData(w, http.StatusOK, ProductsResponse{Products: products})
}

// abandoned reports whether the client went away before err was returned, in
// which case the response is discarded.
func (h *RecommendHandler) abandoned(r *http.Request, err error) bool {
	if r.Context().Err() == nil {
		return false
	}
	h.logger.DebugContext(r.Context(), "discarding recommender result for abandoned request",
		slog.String("error", err.Error()),
	)
	return true
}
