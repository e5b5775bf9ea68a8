package handler

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	Health(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Health(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	checks map[string]Pinger
	resp   *Responder
}

func NewHealthHandler(checks map[string]Pinger, resp *Responder) *HealthHandler {
	return &HealthHandler{checks: checks, resp: resp}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		h.resp.failure(w, http.StatusServiceUnavailable, "Service unavailable", status)
		return
	}
	h.resp.success(w, http.StatusOK, "ok", status)
}
