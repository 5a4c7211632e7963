package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	DB Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"status": "ok"}

	if h.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(pingCtx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			respondJSON(ctx, w, http.StatusServiceUnavailable, envelope{Success: false, Message: "database unreachable", Data: status})
			return
		}
		status["database"] = "ok"
	}

	respondOK(ctx, w, http.StatusOK, "", status)
}
