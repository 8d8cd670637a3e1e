// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/api/handler"
	"github.com/d9705996/artisan/internal/api/middleware"
	"github.com/d9705996/artisan/internal/health"
)

// Handlers groups the resource handlers.
type Handlers struct {
	Health        *health.Handler
	Entreprise    *handler.EntrepriseHandler
	Clients       *handler.ClientHandler
	Devis         *handler.DevisHandler
	Factures      *handler.FactureHandler
	Notifications *handler.NotificationHandler
	OAuth         *handler.OAuthHandler
	Calendar      *handler.CalendarHandler
	WhatsApp      *handler.WhatsAppHandler
}

// AuthConfig is how bearer tokens are verified.
type AuthConfig struct {
	Secret   string
	Audience string
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers, auth AuthConfig) {
	// Public endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.Health.ServeReady)
	mux.HandleFunc("GET /api/v1/oauth/google/callback", h.OAuth.Callback)
	mux.HandleFunc("GET /api/v1/webhooks/whatsapp", h.WhatsApp.Verify)
	mux.HandleFunc("POST /api/v1/webhooks/whatsapp", h.WhatsApp.Receive)

	// Auth-required routes; the tenant is the token subject.
	protected := middleware.RequireAuth(auth.Secret, auth.Audience)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protected(fn))
	}

	handle("GET /api/v1/entreprise", h.Entreprise.Get)
	handle("PUT /api/v1/entreprise", h.Entreprise.Put)

	handle("GET /api/v1/clients", h.Clients.List)
	handle("POST /api/v1/clients", h.Clients.Create)
	handle("GET /api/v1/clients/{id}", h.Clients.Get)
	handle("PATCH /api/v1/clients/{id}", h.Clients.Update)
	handle("DELETE /api/v1/clients/{id}", h.Clients.Delete)

	handle("GET /api/v1/devis", h.Devis.List)
	handle("POST /api/v1/devis", h.Devis.Create)
	handle("GET /api/v1/devis/{id}", h.Devis.Get)
	handle("PATCH /api/v1/devis/{id}", h.Devis.Update)
	handle("DELETE /api/v1/devis/{id}", h.Devis.Delete)
	handle("PUT /api/v1/devis/{id}/lignes", h.Devis.ReplaceLines)
	handle("POST /api/v1/devis/{id}/status", h.Devis.SetStatus)
	handle("GET /api/v1/devis/{id}/pdf", h.Devis.PDF)
	handle("POST /api/v1/devis/{id}/send", h.Devis.Send)
	handle("POST /api/v1/devis/{id}/facture", h.Devis.Invoice)

	handle("GET /api/v1/factures", h.Factures.List)
	handle("POST /api/v1/factures", h.Factures.Create)
	handle("GET /api/v1/factures/{id}", h.Factures.Get)
	handle("PATCH /api/v1/factures/{id}", h.Factures.Update)
	handle("DELETE /api/v1/factures/{id}", h.Factures.Delete)
	handle("PUT /api/v1/factures/{id}/lignes", h.Factures.ReplaceLines)
	handle("POST /api/v1/factures/{id}/status", h.Factures.SetStatus)
	handle("GET /api/v1/factures/{id}/pdf", h.Factures.PDF)
	handle("POST /api/v1/factures/{id}/send", h.Factures.Send)

	handle("GET /api/v1/notifications", h.Notifications.List)
	handle("POST /api/v1/notifications", h.Notifications.Create)
	handle("POST /api/v1/notifications/read-all", h.Notifications.MarkAllRead)
	handle("POST /api/v1/notifications/{id}/read", h.Notifications.MarkRead)
	handle("DELETE /api/v1/notifications/{id}", h.Notifications.Delete)

	handle("GET /api/v1/oauth/connections", h.OAuth.List)
	handle("PATCH /api/v1/oauth/connections/{id}", h.OAuth.UpdateMetadata)
	handle("DELETE /api/v1/oauth/connections/{id}", h.OAuth.Disconnect)
	handle("GET /api/v1/oauth/google/authorize", h.OAuth.Authorize)

	handle("GET /api/v1/calendar/events", h.Calendar.List)
	handle("POST /api/v1/calendar/events", h.Calendar.Create)

	handle("POST /api/v1/whatsapp/send", h.WhatsApp.Send)

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		envelope.Error(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
	})
}

// Wrap applies the middleware shared by every route: access logging with
// panic recovery, then CORS for the front-end origins.
func Wrap(next http.Handler, log *slog.Logger, origins ...string) http.Handler {
	return middleware.Logging(log)(middleware.CORS(origins...)(next))
}
