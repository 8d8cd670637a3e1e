package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/whatsapp"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

// Messenger sends WhatsApp messages from the business number.
type Messenger interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, name, language string, params ...string) (string, error)
}

// WebhookConfig holds the secrets of the inbound webhook.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
}

// WhatsAppHandler handles /api/v1/whatsapp and the WhatsApp webhook.
type WhatsAppHandler struct {
	messenger Messenger
	clients   *store.ClientStore
	notifier  Notifier
	webhook   WebhookConfig
	metrics   *Metrics
	log       *slog.Logger
}

// NewWhatsAppHandler creates a WhatsAppHandler. messenger is nil when no
// Cloud API credentials are configured.
func NewWhatsAppHandler(messenger Messenger, clients *store.ClientStore, notifier Notifier,
	webhook WebhookConfig, metrics *Metrics, log *slog.Logger) *WhatsAppHandler {
	if webhook.AppSecret == "" {
		log.Warn("WHATSAPP_APP_SECRET not set; webhook payloads are accepted without a signature check")
	}
	return &WhatsAppHandler{
		messenger: messenger,
		clients:   clients,
		notifier:  notifier,
		webhook:   webhook,
		metrics:   metrics,
		log:       log,
	}
}

type templateRequest struct {
	Name     string   `json:"name" validate:"required,max=512"`
	Language string   `json:"language" validate:"omitempty,max=16"`
	Params   []string `json:"params" validate:"max=10"`
}

type whatsappSendRequest struct {
	To       string           `json:"to" validate:"required_without=ClientID,max=30"`
	ClientID string           `json:"client_id"`
	Text     string           `json:"text" validate:"required_without=Template,max=4096"`
	Template *templateRequest `json:"template"`
}

type whatsappSent struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

// Send handles POST /api/v1/whatsapp/send. The recipient is either a phone
// number or one of the tenant's clients.
func (h *WhatsAppHandler) Send(w http.ResponseWriter, r *http.Request) {
	if h.messenger == nil {
		writeError(w, r, h.log, integration.NotConfigured("whatsapp", "WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID"))
		return
	}
	var req whatsappSendRequest
	if !decode(w, r, &req, false) {
		return
	}
	ctx := r.Context()
	phone := req.To
	if req.ClientID != "" {
		c, err := h.clients.Get(ctx, tenantID(r), req.ClientID)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		phone = c.Telephone
	}
	to := model.NormalizePhone(phone)
	if to == "" {
		envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"to": "numéro de téléphone manquant"})
		return
	}

	var id string
	var err error
	if req.Template != nil {
		lang := req.Template.Language
		if lang == "" {
			lang = "fr"
		}
		id, err = h.messenger.SendTemplate(ctx, to, req.Template.Name, lang, req.Template.Params...)
	} else {
		id, err = h.messenger.SendText(ctx, to, req.Text)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.metrics.sent(ctx, ChannelWhatsApp)
	envelope.OK(w, http.StatusOK, whatsappSent{MessageID: id, To: to})
}

// Verify handles GET /api/v1/webhooks/whatsapp, the subscription handshake.
func (h *WhatsAppHandler) Verify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(r.URL.Query(), h.webhook.VerifyToken)
	if !ok {
		envelope.Error(w, http.StatusForbidden, "forbidden", "verification token mismatch")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive handles POST /api/v1/webhooks/whatsapp. Each inbound message
// becomes a notification for every tenant with a client at the sender's
// number. Delivery statuses are only logged.
func (h *WhatsAppHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		envelope.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if h.webhook.AppSecret != "" && !whatsapp.VerifySignature(h.webhook.AppSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		envelope.Error(w, http.StatusUnauthorized, "invalid_signature", "payload signature does not match")
		return
	}
	var p whatsapp.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		envelope.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON: "+err.Error())
		return
	}

	ctx := r.Context()
	notified := 0
	for _, m := range p.Messages() {
		clients, err := h.clients.FindByPhone(ctx, m.From)
		if err != nil {
			h.log.ErrorContext(ctx, "whatsapp sender lookup failed", "error", err)
			continue
		}
		if len(clients) == 0 {
			h.log.InfoContext(ctx, "whatsapp message from unknown number", "message_id", m.ID)
			continue
		}
		for _, c := range clients {
			if h.notifyInbound(ctx, c, m) {
				notified++
			}
		}
	}
	for _, s := range p.Statuses() {
		h.log.DebugContext(ctx, "whatsapp status", "message_id", s.ID, "status", s.Status)
	}
	envelope.OK(w, http.StatusOK, map[string]int{"notified": notified})
}

func (h *WhatsAppHandler) notifyInbound(ctx context.Context, c model.Client, m whatsapp.InboundMessage) bool {
	name := c.DisplayName()
	if name == "" {
		name = m.SenderName
	}
	stored, err := h.notifier.Notify(ctx, &model.Notification{
		TenantID: c.TenantID,
		Type:     model.NotificationWhatsAppMessage,
		Title:    "Message WhatsApp de " + name,
		Message:  m.Body(),
		Payload: map[string]any{
			"client_id":   c.ID,
			"from":        m.From,
			"message_id":  m.ID,
			"sender_name": m.SenderName,
		},
	})
	if err != nil {
		h.log.ErrorContext(ctx, "store whatsapp notification failed", "tenant", c.TenantID, "error", err)
		return false
	}
	return stored
}
