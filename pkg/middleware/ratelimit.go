package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/logger"
)

// RateLimitConfig configures RateLimit. A non-positive RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// IdleTTL forgets clients not seen for this long.
	IdleTTL time.Duration
	// Key picks the bucket a request draws from. Defaults to ClientIP.
	Key func(*http.Request) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	mu        sync.Mutex
	byKey     map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = int(math.Ceil(cfg.RPS))
	}
	return &visitors{
		byKey: make(map[string]*visitor),
		limit: rate.Limit(cfg.RPS),
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
	}
}

// reserve takes a token for key. When none is available it returns false and
// how long until one is.
func (v *visitors) reserve(key string) (bool, time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) > v.ttl {
		for k, vis := range v.byKey {
			if now.Sub(vis.lastSeen) > v.ttl {
				delete(v.byKey, k)
			}
		}
		v.lastSweep = now
	}

	vis, ok := v.byKey[key]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.byKey[key] = vis
	}
	vis.lastSeen = now

	r := vis.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byKey)
}

// RateLimit enforces a token bucket per client and answers 429 with a
// Retry-After header once a client's bucket is empty.
func RateLimit(cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	store := newVisitors(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			ok, wait := store.reserve(k)
			if !ok {
				l.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client", k),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "RATE_LIMITED",
						Message:   "too many requests",
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first valid address in X-Forwarded-For, then
// X-Real-IP, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
