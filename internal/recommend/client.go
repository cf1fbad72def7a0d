// Package recommend is a client for the external recommendation and chat
// service.
package recommend

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecobazaar/storefront/internal/domain"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httpclient"
)

const serviceName = "recommender"

// Default result sizes used by the catalog views.
const (
	DefaultFeatured = 6
	DefaultChat     = 5
	MaxTopN         = 50
)

// Config configures the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// ChatReply is the service's answer to a free-text query.
type ChatReply struct {
	Response string           `json:"response"`
	Message  string           `json:"message"`
	Products []domain.Product `json:"products"`
}

type chatRequest struct {
	Message string `json:"message"`
	TopN    int    `json:"top_n,omitempty"`
}

type chatResponse struct {
	Response        string   `json:"response"`
	Message         string   `json:"message"`
	Recommendations []Record `json:"recommendations"`
}

type similarRequest struct {
	ProductID domain.ID `json:"product_id"`
}

type listResponse struct {
	Recommendations []Record `json:"recommendations"`
}

// Client calls the recommendation service. Calls are bound to the caller's
// context, so an abandoned request is cancelled and its result discarded.
type Client struct {
	baseURL string
	doer    httpclient.Doer
	logger  *slog.Logger
}

// New creates a client with retries and a circuit breaker.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	hc.MaxRetries = cfg.MaxRetries

	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(hc),
		httpclient.DefaultCircuitBreakerConfig(serviceName),
		logger,
	).WithFallback(CircuitOpenFallback)

	return NewWithDoer(cfg.BaseURL, cb, logger)
}

// NewWithDoer creates a client that sends requests through doer.
func NewWithDoer(baseURL string, doer httpclient.Doer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  logger,
	}
}

// CircuitOpenFallback turns an open breaker into a 503 application error.
func CircuitOpenFallback(_ context.Context, err error) (*http.Response, error) {
	return nil, apperrors.Unavailable(serviceName, err)
}

// Chat sends a free-text query and returns the reply with its products.
func (c *Client) Chat(ctx context.Context, message string, topN int) (ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, apperrors.InvalidInput("message is required")
	}

	var resp chatResponse
	req := chatRequest{Message: message, TopN: clampTopN(topN, DefaultChat)}
	if err := c.call(ctx, http.MethodPost, "/chatbot", req, &resp); err != nil {
		return ChatReply{}, err
	}

	return ChatReply{
		Response: resp.Response,
		Message:  resp.Message,
		Products: Products(resp.Recommendations),
	}, nil
}

// Featured returns general recommendations for the home page.
func (c *Client) Featured(ctx context.Context, topN int) ([]domain.Product, error) {
	q := url.Values{"top_n": {strconv.Itoa(clampTopN(topN, DefaultFeatured))}}

	var resp listResponse
	if err := c.call(ctx, http.MethodGet, "/recommendations?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return Products(resp.Recommendations), nil
}

// Similar returns products similar to productID.
func (c *Client) Similar(ctx context.Context, productID domain.ID) ([]domain.Product, error) {
	if productID.IsZero() {
		return nil, apperrors.InvalidInput("product_id is required")
	}

	var resp listResponse
	if err := c.call(ctx, http.MethodPost, "/recommend", similarRequest{ProductID: productID}, &resp); err != nil {
		return nil, err
	}
	return Products(resp.Recommendations), nil
}

// Ping checks the service's chatbot health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/chatbot/health", nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	start := time.Now()
	err := httpclient.DoJSON(ctx, c.doer, method, c.baseURL+path, serviceName, in, out)
	if err != nil {
		c.logger.WarnContext(ctx, "recommender request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.logger.DebugContext(ctx, "recommender request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func clampTopN(n, def int) int {
	switch {
	case n <= 0:
		return def
	case n > MaxTopN:
		return MaxTopN
	default:
		return n
	}
}
