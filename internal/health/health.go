// Package health serves a liveness endpoint.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Config of health check handler.
type Config struct {
	// Stats returns extra fields to report, ex. number of sessions.
	Stats func() map[string]any
}

// Handler handles health endpoint.
type Handler struct {
	config  Config
	started time.Time
}

// NewHandler creates new Handler.
func NewHandler(c Config) *Handler {
	return &Handler{
		config:  c,
		started: time.Now(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.config.Stats != nil {
		for k, v := range h.config.Stats() {
			resp[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
