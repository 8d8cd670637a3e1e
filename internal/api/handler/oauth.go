package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/calendar"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

// OAuthFlow runs the provider authorization-code flow.
type OAuthFlow interface {
	AuthURL(tenantID, service string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*model.OAuthConnection, error)
}

// OAuthHandler handles /api/v1/oauth routes.
type OAuthHandler struct {
	conns  *store.OAuthStore
	flow   OAuthFlow
	appURL string
	log    *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler. flow is nil when no OAuth
// client is configured; the flow endpoints then answer config_missing.
func NewOAuthHandler(conns *store.OAuthStore, flow OAuthFlow, appURL string, log *slog.Logger) *OAuthHandler {
	return &OAuthHandler{conns: conns, flow: flow, appURL: strings.TrimRight(appURL, "/"), log: log}
}

type metadataRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

// List handles GET /api/v1/oauth/connections.
func (h *OAuthHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.conns.List(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, out)
}

// UpdateMetadata handles PATCH /api/v1/oauth/connections/{id}. Keys set to
// null are removed.
func (h *OAuthHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if !decode(w, r, &req, false) {
		return
	}
	c, err := h.conns.MergeMetadata(r.Context(), tenantID(r), r.PathValue("id"), req.Metadata)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, c)
}

// Disconnect handles DELETE /api/v1/oauth/connections/{id}.
func (h *OAuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.conns.Deactivate(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

// Authorize handles GET /api/v1/oauth/google/authorize?service=calendar and
// returns the consent URL for the front-end to open.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		writeError(w, r, h.log, integration.NotConfigured("google", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"))
		return
	}
	service := r.URL.Query().Get("service")
	if service == "" {
		service = model.ServiceCalendar
	}
	if service != model.ServiceCalendar {
		envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"service": "valeurs possibles : calendar"})
		return
	}
	u, err := h.flow.AuthURL(tenantID(r), service)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, map[string]string{"url": u})
}

// Callback handles GET /api/v1/oauth/google/callback. It is reached by the
// user's browser from the provider, so it answers with a redirect to the
// front-end settings page rather than JSON.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.log.InfoContext(r.Context(), "oauth consent refused", "error", providerErr)
		h.redirect(w, r, "error", providerErr)
		return
	}
	if h.flow == nil {
		h.redirect(w, r, "error", "config_missing")
		return
	}
	if q.Get("code") == "" {
		h.redirect(w, r, "error", "missing_code")
		return
	}
	conn, err := h.flow.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		tag := callbackErrorTag(err)
		h.log.WarnContext(r.Context(), "oauth callback failed", "error", err, "tag", tag)
		h.redirect(w, r, "error", tag)
		return
	}
	h.log.InfoContext(r.Context(), "oauth connection activated",
		"tenant", conn.TenantID, "provider", conn.Provider, "service", conn.Service)
	h.redirect(w, r, "success", "google_"+conn.Service)
}

func callbackErrorTag(err error) string {
	var upstream *integration.UpstreamError
	switch {
	case errors.Is(err, calendar.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, integration.ErrNotConfigured):
		return "config_missing"
	case errors.As(err, &upstream):
		return "token_exchange_failed"
	default:
		return "server_error"
	}
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	http.Redirect(w, r, h.appURL+"/parametres?"+url.Values{key: {value}}.Encode(), http.StatusFound)
}
