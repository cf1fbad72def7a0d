package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker reports the health of one dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// checkTimeout bounds a full readiness check.
const checkTimeout = 5 * time.Second

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type entry struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]entry
}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]entry),
	}
}

// Register adds a critical checker: its failure makes the service not ready.
func (h *Handler) Register(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterOptional adds a checker whose failure only degrades readiness.
// Use it for dependencies the service can run without.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = entry{check: checker, critical: critical}
}

// Names returns the registered checker names in sorted order.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler answers 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// Check runs every registered checker and folds the results: any critical
// failure is down, any optional failure is degraded.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	h.mu.RLock()
	checkers := make(map[string]entry, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusUp

	for name, e := range checkers {
		if err := e.check(ctx); err != nil {
			checks[name] = CheckResult{Status: StatusDown, Critical: e.critical, Error: err.Error()}
			if e.critical {
				overall = StatusDown
			} else if overall == StatusUp {
				overall = StatusDegraded
			}
			continue
		}
		checks[name] = CheckResult{Status: StatusUp, Critical: e.critical}
	}

	return Response{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// ReadinessHandler answers 503 when a critical dependency is down and 200
// otherwise, including the degraded case.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeResponse(w, status, resp)
	}
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
