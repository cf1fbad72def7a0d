package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecobazaar/storefront/internal/domain"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/httpclient"
	"github.com/ecobazaar/storefront/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := httpclient.DefaultConfig()
	hc.Timeout = 2 * time.Second
	return NewWithDoer(srv.URL+"/", httpclient.New(hc), logger.Discard())
}

func TestClient_Chat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chatbot", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kitchen", req["message"])
		assert.Equal(t, float64(10), req["top_n"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": "I found 1 eco-friendly product(s)",
			"message": "kitchen",
			"recommendations": [
				{"product_id": 4, "name": "Bamboo Brush", "category": "Kitchen", "price": 150, "carbon_footprint": 0.4}
			]
		}`))
	})

	reply, err := client.Chat(context.Background(), "  kitchen ", 10)
	require.NoError(t, err)
	assert.Equal(t, "I found 1 eco-friendly product(s)", reply.Response)
	require.Len(t, reply.Products, 1)

	p := reply.Products[0]
	assert.Equal(t, "4", p.ID.String())
	assert.Equal(t, "Bamboo Brush", p.Name)
	assert.Equal(t, "₹150", p.Price.String())
	assert.Equal(t, "0.4 kg CO₂e", p.Carbon)
	assert.Equal(t, "Kitchen", p.Category)
}

func TestClient_Chat_EmptyMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Chat(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestClient_Featured(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/recommendations", r.URL.Path)
		assert.Equal(t, "6", r.URL.Query().Get("top_n"))

		_, _ = w.Write([]byte(`{"recommendations": [
			{"product_id": 1, "name": "Tote", "price": "₹120", "carbon": "0.5 kg CO₂e", "carbon_footprint": 0.5, "image": "tote.jpg"},
			{"product_id": 2, "name": "Straw"}
		]}`))
	})

	products, err := client.Featured(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "₹120", products[0].Price.String())
	assert.Equal(t, "0.5 kg CO₂e", products[0].Carbon)
	assert.Equal(t, "tote.jpg", products[0].Image)

	assert.Equal(t, "₹0", products[1].Price.String())
	assert.Equal(t, "0 kg CO₂e", products[1].Carbon)
}

func TestClient_Similar(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recommend", r.URL.Path)

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "12", string(req["product_id"]))

		_, _ = w.Write([]byte(`{"recommendations": [{"product_id": 13, "name": "Cup", "price": 0}]}`))
	})

	products, err := client.Similar(context.Background(), domain.NumberID("12"))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "₹0", products[0].Price.String())
}

func TestClient_Similar_RequiresID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Similar(context.Background(), domain.ID{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":"product_id is required"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":"boom","recommendations":[]}`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "recommender server error")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"recommendations": "nope"`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "decode recommender response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Featured(context.Background(), 3)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_AbandonedRequest(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Featured(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_CircuitOpenFallback(t *testing.T) {
	_, err := CircuitOpenFallback(context.Background(), httpclient.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chatbot/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	assert.NoError(t, client.Ping(context.Background()))
}

func TestNew_UsesBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recommendations": []}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	_, ok := client.doer.(*httpclient.CircuitBreakerClient)
	assert.True(t, ok)

	products, err := client.Featured(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, products)
}
