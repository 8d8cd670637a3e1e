// Package health exposes the /api/v1/health and /api/v1/ready HTTP handlers.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/version"
)

// Pinger is implemented by anything that can check a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is a named readiness dependency.
type Check struct {
	Name   string
	Pinger Pinger
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	checks    []Check
	startTime time.Time
}

// New creates a Handler. A check whose Pinger is nil (for instance before
// the pool is established) makes /ready return 503.
func New(checks ...Check) *Handler {
	return &Handler{checks: checks, startTime: time.Now()}
}

type healthAttrs struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type readyAttrs struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ServeHealth handles GET /api/v1/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	envelope.OK(w, http.StatusOK, healthAttrs{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.Date,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// ServeReady handles GET /api/v1/ready.
// Returns 200 when every dependency answers; 503 with the failing ones
// otherwise.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	failed := map[string]string{}
	for _, c := range h.checks {
		if c.Pinger == nil {
			failed[c.Name] = "connection is not initialised"
			continue
		}
		if err := c.Pinger.Ping(ctx); err != nil {
			failed[c.Name] = "unreachable: " + err.Error()
			continue
		}
		results[c.Name] = "ok"
	}
	if len(failed) > 0 {
		envelope.Error(w, http.StatusServiceUnavailable, "dependency_unavailable", failed)
		return
	}
	envelope.OK(w, http.StatusOK, readyAttrs{Status: "ok", Checks: results})
}
