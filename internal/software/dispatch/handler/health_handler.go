package handler

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// ----- Handler: GET /health -----

// handleHealth runs every registered probe and reports 503 when one fails.
func (handler *DispatchHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	type resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}
	out := resp{Status: "ok"}
	status := http.StatusOK

	if len(handler.checks) > 0 {
		out.Checks = make(map[string]string, len(handler.checks))
	}
	for name, check := range handler.checks {
		if err := check(ctx); err != nil {
			out.Checks[name] = err.Error()
			out.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[name] = "ok"
	}

	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctx, w, status, out)
}
