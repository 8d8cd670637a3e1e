package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/calendar"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 250
)

// Calendar reads and writes the tenant's connected calendar.
type Calendar interface {
	ListEvents(ctx context.Context, tenantID string, from time.Time, limit int64) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, tenantID string, in calendar.EventInput) (*calendar.Event, error)
}

// CalendarHandler handles /api/v1/calendar routes.
type CalendarHandler struct {
	cal Calendar
	log *slog.Logger
	now func() time.Time
}

// NewCalendarHandler creates a CalendarHandler. cal is nil when no OAuth
// client is configured.
func NewCalendarHandler(cal Calendar, log *slog.Logger) *CalendarHandler {
	return &CalendarHandler{cal: cal, log: log, now: time.Now}
}

func (h *CalendarHandler) configured(w http.ResponseWriter, r *http.Request) bool {
	if h.cal == nil {
		writeError(w, r, h.log, integration.NotConfigured("google", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"))
		return false
	}
	return true
}

// List handles GET /api/v1/calendar/events?from=<RFC 3339>&limit=.
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w, r) {
		return
	}
	q := r.URL.Query()
	from := h.now()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"from": "date RFC 3339 attendue"})
			return
		}
		from = t
	}
	limit := int64(defaultEventLimit)
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"limit": "entier positif attendu"})
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := h.cal.ListEvents(r.Context(), tenantID(r), from, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, events)
}

// Create handles POST /api/v1/calendar/events.
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w, r) {
		return
	}
	var in calendar.EventInput
	if !decode(w, r, &in, false) {
		return
	}
	ev, err := h.cal.CreateEvent(r.Context(), tenantID(r), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusCreated, ev)
}
