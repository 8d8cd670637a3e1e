package handler

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/store"
	"github.com/shopspring/decimal"
)

// EntrepriseHandler handles /api/v1/entreprise.
type EntrepriseHandler struct {
	entreprises *store.EntrepriseStore
	log         *slog.Logger
}

// NewEntrepriseHandler creates an EntrepriseHandler.
func NewEntrepriseHandler(entreprises *store.EntrepriseStore, log *slog.Logger) *EntrepriseHandler {
	return &EntrepriseHandler{entreprises: entreprises, log: log}
}

type entrepriseRequest struct {
	RaisonSociale      string         `json:"raison_sociale" validate:"max=200"`
	Siret              string         `json:"siret" validate:"omitempty,len=14,numeric"`
	TVAIntracom        string         `json:"tva_intracom" validate:"max=20"`
	Adresse            string         `json:"adresse" validate:"max=300"`
	CodePostal         string         `json:"code_postal" validate:"max=10"`
	Ville              string         `json:"ville" validate:"max=100"`
	Email              string         `json:"email" validate:"omitempty,email"`
	Telephone          string         `json:"telephone" validate:"max=30"`
	LogoURL            string         `json:"logo_url" validate:"omitempty,url"`
	IBAN               string         `json:"iban" validate:"max=42"`
	TVADefaut          billing.Number `json:"tva_defaut"`
	ValiditeDevisJours int            `json:"validite_devis_jours" validate:"gte=0,lte=365"`
	DelaiPaiementJours int            `json:"delai_paiement_jours" validate:"gte=0,lte=365"`
}

// Get handles GET /api/v1/entreprise. A tenant without a profile gets the
// defaults.
func (h *EntrepriseHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.entreprises.Get(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, e)
}

// Put handles PUT /api/v1/entreprise. A missing tva_defaut keeps the
// current one; zero day counts fall back to the defaults.
func (h *EntrepriseHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req entrepriseRequest
	if !decode(w, r, &req, false) {
		return
	}
	if req.TVADefaut.Valid && (req.TVADefaut.Value.IsNegative() || req.TVADefaut.Value.GreaterThan(decimal.NewFromInt(100))) {
		envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"tva_defaut": "doit être compris entre 0 et 100"})
		return
	}

	ctx := r.Context()
	e, err := h.entreprises.Get(ctx, tenantID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	e.RaisonSociale = req.RaisonSociale
	e.Siret = req.Siret
	e.TVAIntracom = req.TVAIntracom
	e.Adresse = req.Adresse
	e.CodePostal = req.CodePostal
	e.Ville = req.Ville
	e.Email = req.Email
	e.Telephone = req.Telephone
	e.LogoURL = req.LogoURL
	e.IBAN = req.IBAN
	e.TVADefaut = req.TVADefaut.Or(e.TVADefaut)
	e.ValiditeDevisJours = req.ValiditeDevisJours
	e.DelaiPaiementJours = req.DelaiPaiementJours
	if err := h.entreprises.Upsert(ctx, e); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, e)
}
