package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecobazaar/storefront/pkg/logger"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// Stream handles GET /api/v1/cart/stream. It sends the current cart snapshot
// as a server-sent "cart" event, then one event per change until the client
// goes away. Slow clients skip intermediate snapshots.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	l := logger.FromContext(r.Context())

	updates, cancel := h.store(r).Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		l.WarnContext(r.Context(), "event stream not supported by response writer",
			slog.String("error", err.Error()),
		)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				l.ErrorContext(r.Context(), "failed to encode cart snapshot", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: cart\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
