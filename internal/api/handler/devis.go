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

// DevisHandler handles /api/v1/devis routes.
type DevisHandler struct {
	devis       *store.DevisStore
	factures    *store.FactureStore
	entreprises *store.EntrepriseStore
	docs        *documents.Service
	metrics     *Metrics
	log         *slog.Logger
	now         func() time.Time
}

// NewDevisHandler creates a DevisHandler.
func NewDevisHandler(devis *store.DevisStore, factures *store.FactureStore, entreprises *store.EntrepriseStore,
	docs *documents.Service, metrics *Metrics, log *slog.Logger) *DevisHandler {
	return &DevisHandler{
		devis:       devis,
		factures:    factures,
		entreprises: entreprises,
		docs:        docs,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

type devisRequest struct {
	ClientID     string              `json:"client_id" validate:"required"`
	Objet        string              `json:"objet" validate:"max=300"`
	Notes        string              `json:"notes" validate:"max=5000"`
	DateValidite *Date               `json:"date_validite"`
	Lignes       []billing.LineInput `json:"lignes" validate:"max=200,dive"`
}

type devisPatchRequest struct {
	ClientID     *string `json:"client_id" validate:"omitnil,min=1"`
	Objet        *string `json:"objet" validate:"omitnil,max=300"`
	Notes        *string `json:"notes" validate:"omitnil,max=5000"`
	DateValidite *Date   `json:"date_validite"`
}

type devisSent struct {
	Devis *model.Devis    `json:"devis"`
	Email *documents.Sent `json:"email"`
}

// List handles GET /api/v1/devis?status=&client_id=.
func (h *DevisHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.DevisFilter{ClientID: q.Get("client_id")}
	if raw := q.Get("status"); raw != "" {
		s, err := billing.DevisLifecycle.Parse(raw)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		f.Status = s
	}
	out, err := h.devis.List(r.Context(), tenantID(r), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, out)
}

// Get handles GET /api/v1/devis/{id}. The quote is returned with its lines.
func (h *DevisHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.devis.Get(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, d)
}

// Create handles POST /api/v1/devis. Lines get the tenant's default VAT
// rate when none is given, and the validity date defaults to the tenant's
// validity period.
func (h *DevisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req devisRequest
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
	validite := req.DateValidite.ptr()
	if validite == nil {
		validite = addDays(h.now(), e.ValiditeDevisJours)
	}
	d, err := h.devis.Create(ctx, tenant, store.DevisInput{
		ClientID:     req.ClientID,
		Objet:        req.Objet,
		Notes:        req.Notes,
		DateValidite: validite,
		Lignes:       toLignes(req.Lignes, e.TVADefaut),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusCreated, d)
}

// Update handles PATCH /api/v1/devis/{id}.
func (h *DevisHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req devisPatchRequest
	if !decode(w, r, &req, false) {
		return
	}
	d, err := h.devis.Update(r.Context(), tenantID(r), r.PathValue("id"), store.DevisPatch{
		ClientID:     req.ClientID,
		Objet:        req.Objet,
		Notes:        req.Notes,
		DateValidite: req.DateValidite.ptr(),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, d)
}

// Delete handles DELETE /api/v1/devis/{id}.
func (h *DevisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.devis.Delete(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, deleted{ID: id, Deleted: true})
}

// ReplaceLines handles PUT /api/v1/devis/{id}/lignes. The previous lines
// are kept if anything fails.
func (h *DevisHandler) ReplaceLines(w http.ResponseWriter, r *http.Request) {
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
	d, err := h.devis.ReplaceLines(ctx, tenant, r.PathValue("id"), toLignes(req.Lignes, e.TVADefaut))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, d)
}

// SetStatus handles POST /api/v1/devis/{id}/status.
func (h *DevisHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req, false) {
		return
	}
	to, err := billing.DevisLifecycle.Parse(req.Status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	d, err := h.devis.SetStatus(r.Context(), tenantID(r), r.PathValue("id"), to)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, d)
}

// PDF handles GET /api/v1/devis/{id}/pdf.
func (h *DevisHandler) PDF(w http.ResponseWriter, r *http.Request) {
	doc, data, err := h.docs.DevisPDF(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writePDF(w, r, doc, data)
}

// Send handles POST /api/v1/devis/{id}/send: the PDF is emailed to the
// client and the quote moves to sent.
func (h *DevisHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req, true) {
		return
	}
	d, sent, err := h.docs.SendDevis(r.Context(), tenantID(r), r.PathValue("id"),
		documents.SendOptions{To: req.To, Message: req.Message})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.metrics.sent(r.Context(), ChannelEmail)
	envelope.OK(w, http.StatusOK, devisSent{Devis: d, Email: sent})
}

// Invoice handles POST /api/v1/devis/{id}/facture: an accepted quote becomes
// a draft invoice with the same lines, once.
func (h *DevisHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantID(r)
	e, err := h.entreprises.Get(ctx, tenant)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	f, err := h.factures.CreateFromDevis(ctx, tenant, r.PathValue("id"), addDays(h.now(), e.DelaiPaiementJours))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusCreated, f)
}
