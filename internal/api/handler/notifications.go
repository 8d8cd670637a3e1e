package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// Notifier stores notifications, dropping duplicates.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) (bool, error)
}

// NotificationHandler handles /api/v1/notifications routes.
type NotificationHandler struct {
	notifications *store.NotificationStore
	notifier      Notifier
	log           *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications *store.NotificationStore, notifier Notifier, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, notifier: notifier, log: log}
}

type notificationRequest struct {
	Type    string         `json:"type" validate:"required,max=64"`
	Title   string         `json:"title" validate:"required,max=200"`
	Message string         `json:"message" validate:"max=2000"`
	Payload map[string]any `json:"payload"`
}

type notificationCreated struct {
	Notification *model.Notification `json:"notification"`
	Suppressed   bool                `json:"suppressed"`
}

// List handles GET /api/v1/notifications?unread=true&limit=.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unread, _ := strconv.ParseBool(q.Get("unread"))
	limit := defaultNotificationLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"limit": "entier positif attendu"})
			return
		}
		limit = min(n, maxNotificationLimit)
	}
	out, err := h.notifications.List(r.Context(), tenantID(r), unread, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, out)
}

// Create handles POST /api/v1/notifications. A duplicate of a notification
// created within the dedup window is not stored; the response says so with
// 200 instead of 201.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if !decode(w, r, &req, false) {
		return
	}
	n := &model.Notification{
		TenantID: tenantID(r),
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Payload:  req.Payload,
	}
	stored, err := h.notifier.Notify(r.Context(), n)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if !stored {
		envelope.OK(w, http.StatusOK, notificationCreated{Suppressed: true})
		return
	}
	envelope.OK(w, http.StatusCreated, notificationCreated{Notification: n})
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.notifications.MarkRead(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete handles DELETE /api/v1/notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.notifications.Delete(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, deleted{ID: id, Deleted: true})
}
