package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests allowed through while half-open. 0 means 1.
	MaxRequests uint32

	// Interval clears the closed-state counts. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureRatio of failed requests that trips the breaker.
	FailureRatio float64

	// MinRequests before the ratio is evaluated.
	MinRequests uint32
}

// DefaultCircuitBreakerConfig returns defaults for a breaker named name.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// FallbackFunc is invoked instead of returning ErrCircuitOpen when set.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_circuit_breaker_fallback_invoked_total",
			Help: "Total number of times the circuit breaker fallback was invoked",
		},
		[]string{"name"},
	)
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = gobreaker.ErrOpenState

// ServerError is what the breaker records for a 5xx response. The body has
// already been drained.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Body)
}

// CircuitBreakerClient wraps a Client with circuit breaker protection.
// Network errors and 5xx responses count as failures; 4xx responses pass
// through to the caller untouched.
type CircuitBreakerClient struct {
	client   Doer
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	logger   *slog.Logger
	fallback FallbackFunc
	name     string
}

// NewCircuitBreakerClient wraps client with a breaker configured by cbCfg.
func NewCircuitBreakerClient(client Doer, cbCfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	settings := gobreaker.Settings{
		Name:        cbCfg.Name,
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cbCfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cbCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			circuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	circuitBreakerState.WithLabelValues(cbCfg.Name).Set(0)

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		logger:  logger,
		name:    cbCfg.Name,
	}
}

// WithFallback returns a copy that calls fn while the breaker is open.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

// Do executes req through the breaker. A 5xx response is returned to the
// caller intact (with its body re-buffered) but still counted as a failure.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var failed *http.Response
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(body))
			failed = resp
			return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
	if err != nil && c.fallback != nil && errors.Is(err, ErrCircuitOpen) {
		circuitBreakerFallbackTotal.WithLabelValues(c.name).Inc()
		c.logger.WarnContext(ctx, "circuit breaker open, invoking fallback",
			slog.String("breaker", c.name),
		)
		return c.fallback(ctx, err)
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) && failed != nil {
		return failed, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get performs an HTTP GET request through the circuit breaker.
func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// State returns the current state of the circuit breaker.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
