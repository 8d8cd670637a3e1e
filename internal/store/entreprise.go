package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/d9705996/artisan/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntrepriseDefaults fill the profile of a tenant that has not saved one.
type EntrepriseDefaults struct {
	VATPct       decimal.Decimal
	ValidityDays int
	PaymentDays  int
}

// EntrepriseStore persists tenant profiles.
type EntrepriseStore struct {
	db       *gorm.DB
	defaults EntrepriseDefaults
}

// NewEntrepriseStore returns an EntrepriseStore.
func NewEntrepriseStore(db *gorm.DB, defaults EntrepriseDefaults) *EntrepriseStore {
	return &EntrepriseStore{db: db, defaults: defaults}
}

// Get returns the tenant's profile. A tenant without one gets the defaults;
// the result is not persisted.
func (s *EntrepriseStore) Get(ctx context.Context, tenantID string) (*model.Entreprise, error) {
	var e model.Entreprise
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Entreprise{
			TenantID:           tenantID,
			TVADefaut:          s.defaults.VATPct,
			ValiditeDevisJours: s.defaults.ValidityDays,
			DelaiPaiementJours: s.defaults.PaymentDays,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entreprise: %w", err)
	}
	return &e, nil
}

// Upsert saves the tenant's profile.
func (s *EntrepriseStore) Upsert(ctx context.Context, e *model.Entreprise) error {
	if e.ValiditeDevisJours <= 0 {
		e.ValiditeDevisJours = s.defaults.ValidityDays
	}
	if e.DelaiPaiementJours <= 0 {
		e.DelaiPaiementJours = s.defaults.PaymentDays
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns(entrepriseColumns),
	}).Create(e).Error
	if err != nil {
		return fmt.Errorf("save entreprise: %w", err)
	}
	return nil
}

var entrepriseColumns = []string{
	"raison_sociale", "siret", "tva_intracom", "adresse", "code_postal", "ville", "email",
	"telephone", "logo_url", "iban", "tva_defaut", "validite_devis_jours", "delai_paiement_jours",
	"updated_at",
}
