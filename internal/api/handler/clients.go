package handler

import (
	"log/slog"
	"net/http"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

// ClientHandler handles /api/v1/clients routes.
type ClientHandler struct {
	clients *store.ClientStore
	log     *slog.Logger
}

// NewClientHandler creates a ClientHandler.
func NewClientHandler(clients *store.ClientStore, log *slog.Logger) *ClientHandler {
	return &ClientHandler{clients: clients, log: log}
}

type clientRequest struct {
	Nom             string `json:"nom" validate:"required,max=100"`
	Prenom          string `json:"prenom" validate:"max=100"`
	Societe         string `json:"societe" validate:"max=200"`
	Email           string `json:"email" validate:"omitempty,email"`
	Telephone       string `json:"telephone" validate:"max=30"`
	Adresse         string `json:"adresse" validate:"max=300"`
	CodePostal      string `json:"code_postal" validate:"max=10"`
	Ville           string `json:"ville" validate:"max=100"`
	AdresseChantier string `json:"adresse_chantier" validate:"max=300"`
	Notes           string `json:"notes" validate:"max=5000"`
}

type clientPatchRequest struct {
	Nom             *string `json:"nom" validate:"omitnil,min=1,max=100"`
	Prenom          *string `json:"prenom" validate:"omitempty,max=100"`
	Societe         *string `json:"societe" validate:"omitempty,max=200"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Telephone       *string `json:"telephone" validate:"omitempty,max=30"`
	Adresse         *string `json:"adresse" validate:"omitempty,max=300"`
	CodePostal      *string `json:"code_postal" validate:"omitempty,max=10"`
	Ville           *string `json:"ville" validate:"omitempty,max=100"`
	AdresseChantier *string `json:"adresse_chantier" validate:"omitempty,max=300"`
	Notes           *string `json:"notes" validate:"omitempty,max=5000"`
}

// List handles GET /api/v1/clients?q=.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.clients.List(r.Context(), tenantID(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.List(w, out)
}

// Get handles GET /api/v1/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.clients.Get(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, c)
}

// Create handles POST /api/v1/clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decode(w, r, &req, false) {
		return
	}
	c := &model.Client{
		Nom:             req.Nom,
		Prenom:          req.Prenom,
		Societe:         req.Societe,
		Email:           req.Email,
		Telephone:       req.Telephone,
		Adresse:         req.Adresse,
		CodePostal:      req.CodePostal,
		Ville:           req.Ville,
		AdresseChantier: req.AdresseChantier,
		Notes:           req.Notes,
	}
	if err := h.clients.Create(r.Context(), tenantID(r), c); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusCreated, c)
}

// Update handles PATCH /api/v1/clients/{id}. Absent fields are unchanged.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req clientPatchRequest
	if !decode(w, r, &req, false) {
		return
	}
	c, err := h.clients.Update(r.Context(), tenantID(r), r.PathValue("id"), store.ClientPatch{
		Nom:             req.Nom,
		Prenom:          req.Prenom,
		Societe:         req.Societe,
		Email:           req.Email,
		Telephone:       req.Telephone,
		Adresse:         req.Adresse,
		CodePostal:      req.CodePostal,
		Ville:           req.Ville,
		AdresseChantier: req.AdresseChantier,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, c)
}

// Delete handles DELETE /api/v1/clients/{id}. A client still referenced by
// a quote or an invoice is kept and 409 is returned.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.clients.Delete(r.Context(), tenantID(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	envelope.OK(w, http.StatusOK, deleted{ID: id, Deleted: true})
}
