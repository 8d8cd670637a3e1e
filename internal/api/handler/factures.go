package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/documents"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

// FactureHandler handles /api/v1/factures routes.
type FactureHandler struct {
	factures    *store.FactureStore
	entreprises *store.EntrepriseStore
	docs        *documents.Service
	metrics     *Metrics
	log         *slog.Logger
	now         func() time.Time
}

// NewFactureHandler creates a FactureHandler.
func NewFactureHandler(factures *store.FactureStore, entreprises *store.EntrepriseStore,
	docs *documents.Service, metrics *Metrics, log *slog.Logger) *FactureHandler {
	return &FactureHandler{
		factures:    factures,
		entreprises: entreprises,
		docs:        docs,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

type factureRequest struct {
	ClientID     string              `json:"client_id" validate:"required"`
	Objet        string              `json:"objet" validate:"max=300"`
	Notes        string              `json:"notes" validate:"max=5000"`
	DateEcheance *Date               `json:"date_echeance"`
	Lignes       []billing.LineInput `json:"lignes" validate:"max=200,dive"`
}

type facturePatchRequest struct {
	ClientID     *string `json:"client_id" validate:"omitnil,min=1"`
	Objet        *string `json:"objet" validate:"omitnil,max=300"`
	Notes        *string `json:"notes" validate:"omitnil,max=5000"`
	DateEcheance *Date   `json:"date_echeance"`
}

type factureSent struct {
	Facture *model.Facture  `json:"facture"`
	Email   *documents.Sent `json:"email"`
}

// List handles GET /api/v1/factures?status=&client_id=&devis_id=.
func (h *FactureHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.FactureFilter{ClientID: q.Get("client_id"), DevisID: q.Get("devis_id")}
	if raw := q.Get("status"); raw != "" {
		s, err := billing.FactureLifecycle.Parse(raw)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		f.Status = s
	}
	out, err := h.factures.List(r.Context(), tenantID(r), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, out)
}

// Get handles GET /api/v1/factures/{id}.
func (h *FactureHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.factures.Get(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, f)
}

// Create handles POST /api/v1/factures. The due date defaults to the
// tenant's payment terms.
func (h *FactureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req factureRequest
	if !decode(w, r, &req, false) {
		return
	}
	ctx := r.Context()
	tenant := tenantID(r)
	e, err := h.entreprises.Get(ctx, tenant)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	due := req.DateEcheance.ptr()
	if due == nil {
		due = addDays(h.now(), e.DelaiPaiementJours)
	}
	f, err := h.factures.Create(ctx, tenant, store.FactureInput{
		ClientID:     req.ClientID,
		Objet:        req.Objet,
		Notes:        req.Notes,
		DateEcheance: due,
		Lignes:       toLignes(req.Lignes, e.TVADefaut),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusCreated, f)
}

// Update handles PATCH /api/v1/factures/{id}.
func (h *FactureHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req facturePatchRequest
	if !decode(w, r, &req, false) {
		return
	}
	f, err := h.factures.Update(r.Context(), tenantID(r), r.PathValue("id"), store.FacturePatch{
		ClientID:     req.ClientID,
		Objet:        req.Objet,
		Notes:        req.Notes,
		DateEcheance: req.DateEcheance.ptr(),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, f)
}

// Delete handles DELETE /api/v1/factures/{id}. Only drafts can be deleted.
func (h *FactureHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.factures.Delete(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

// ReplaceLines handles PUT /api/v1/factures/{id}/lignes.
func (h *FactureHandler) ReplaceLines(w http.ResponseWriter, r *http.Request) {
	var req linesRequest
	if !decode(w, r, &req, false) {
		return
	}
	ctx := r.Context()
	tenant := tenantID(r)
	e, err := h.entreprises.Get(ctx, tenant)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	f, err := h.factures.ReplaceLines(ctx, tenant, r.PathValue("id"), toLignes(req.Lignes, e.TVADefaut))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, f)
}

// SetStatus handles POST /api/v1/factures/{id}/status.
func (h *FactureHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req, false) {
		return
	}
	to, err := billing.FactureLifecycle.Parse(req.Status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	f, err := h.factures.SetStatus(r.Context(), tenantID(r), r.PathValue("id"), to)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, f)
}

// PDF handles GET /api/v1/factures/{id}/pdf.
func (h *FactureHandler) PDF(w http.ResponseWriter, r *http.Request) {
	doc, data, err := h.docs.FacturePDF(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writePDF(w, r, doc, data)
}

// Send handles POST /api/v1/factures/{id}/send.
func (h *FactureHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req, true) {
		return
	}
	f, sent, err := h.docs.SendFacture(r.Context(), tenantID(r), r.PathValue("id"),
		documents.SendOptions{To: req.To, Message: req.Message})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.metrics.sent(r.Context(), ChannelEmail)
	envelope.OK(w, http.StatusOK, factureSent{Facture: f, Email: sent})
}
