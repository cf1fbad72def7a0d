package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Accept", "Content-Type", "X-Correlation-ID", "X-Session-ID", "Last-Event-ID"}
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. "*" allows any origin.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string

	// MaxAge in seconds for preflight caching. 0 means one hour.
	MaxAge int

	AllowCredentials bool
}

// DefaultCORSConfig allows any origin, which suits the browser storefront in
// development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: defaultCORSMethods,
		AllowedHeaders: defaultCORSHeaders,
		ExposedHeaders: []string{"X-Correlation-ID", "X-Session-ID"},
		MaxAge:         3600,
	}
}

// CORS answers preflight requests and decorates responses with the
// Access-Control headers. A wildcard origin is never combined with
// credentials: the request origin is echoed instead.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = defaultCORSMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaultCORSHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 3600
	}

	allowAny := false
	originSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAny = true
			continue
		}
		originSet[o] = struct{}{}
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()

			_, listed := originSet[origin]
			switch {
			case allowAny && !cfg.AllowCredentials:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && (allowAny || listed):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}

			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}
			h.Set("Access-Control-Max-Age", maxAge)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
