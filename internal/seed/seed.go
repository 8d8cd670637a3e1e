// Package seed creates a demo tenant on first boot so a fresh install has
// something to show.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/d9705996/artisan/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DemoOptions configures the demo tenant.
type DemoOptions struct {
	// TenantID is the auth provider user id the demo belongs to. Empty
	// disables seeding.
	TenantID string
	VATPct   decimal.Decimal
}

// EnsureDemoTenant creates the tenant's entreprise profile and a sample
// client when the tenant has no profile yet. It reports whether anything
// was created and is safe to call on every startup.
func EnsureDemoTenant(ctx context.Context, db *gorm.DB, opts DemoOptions, log *slog.Logger) (bool, error) {
	if opts.TenantID == "" {
		return false, nil
	}
	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Entreprise
		err := tx.Where("tenant_id = ?", opts.TenantID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("look up demo entreprise: %w", err)
		}

		e := &model.Entreprise{
			TenantID:           opts.TenantID,
			RaisonSociale:      "Plomberie Démo",
			Adresse:            "12 rue des Artisans",
			CodePostal:         "69003",
			Ville:              "Lyon",
			Email:              "contact@plomberie-demo.fr",
			Telephone:          "04 78 00 00 00",
			TVADefaut:          opts.VATPct,
			ValiditeDevisJours: 30,
			DelaiPaiementJours: 30,
		}
		if err := tx.Create(e).Error; err != nil {
			return fmt.Errorf("insert demo entreprise: %w", err)
		}
		c := &model.Client{
			TenantID:   opts.TenantID,
			Nom:        "Durand",
			Prenom:     "Paul",
			Email:      "paul.durand@example.fr",
			Telephone:  "06 12 34 56 78",
			Adresse:    "3 place Bellecour",
			CodePostal: "69002",
			Ville:      "Lyon",
		}
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("insert demo client: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Info("demo tenant seeded", "tenant", opts.TenantID)
	} else {
		log.Info("demo tenant already exists", "tenant", opts.TenantID)
	}
	return created, nil
}
