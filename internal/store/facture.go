package store

import (
	"context"
	"fmt"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"gorm.io/gorm"
)

// FactureFilter narrows List results. Zero fields match everything.
type FactureFilter struct {
	Status   billing.FactureStatus
	ClientID string
	DevisID  string
}

// FactureInput is the data needed to create an invoice.
type FactureInput struct {
	ClientID     string
	Objet        string
	Notes        string
	DateEcheance *time.Time
	Lignes       []model.Ligne
}

// FacturePatch holds the header fields a PATCH may change.
type FacturePatch struct {
	ClientID     *string
	Objet        *string
	Notes        *string
	DateEcheance *time.Time
}

// FactureStore persists invoices and their lines.
type FactureStore struct {
	db  *gorm.DB
	now clock
}

// NewFactureStore returns a FactureStore.
func NewFactureStore(db *gorm.DB) *FactureStore {
	return &FactureStore{db: db, now: utcNow}
}

// List returns the tenant's invoices, newest first, without lines.
func (s *FactureStore) List(ctx context.Context, tenantID string, f FactureFilter) ([]model.Facture, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.DevisID != "" {
		q = q.Where("devis_id = ?", f.DevisID)
	}
	out := []model.Facture{}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list factures: %w", err)
	}
	return out, nil
}

// Get returns an invoice with its lines in order.
func (s *FactureStore) Get(ctx context.Context, tenantID, id string) (*model.Facture, error) {
	return s.get(s.db.WithContext(ctx), tenantID, id)
}

func (s *FactureStore) get(db *gorm.DB, tenantID, id string) (*model.Facture, error) {
	var f model.Facture
	if err := scoped(db.Preload("Lignes", orderedLines), tenantID, id).First(&f).Error; err != nil {
		return nil, fmt.Errorf("get facture %s: %w", id, notFound(err))
	}
	return &f, nil
}

// Create inserts a draft invoice, numbering it and computing its totals.
func (s *FactureStore) Create(ctx context.Context, tenantID string, in FactureInput) (*model.Facture, error) {
	var f model.Facture
	err := withNumero(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireClient(tx, tenantID, in.ClientID); err != nil {
				return err
			}
			var err error
			f, err = s.draft(tx, tenantID, in)
			if err != nil {
				return err
			}
			return tx.Create(&f).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create facture: %w", err)
	}
	return &f, nil
}

func (s *FactureStore) draft(tx *gorm.DB, tenantID string, in FactureInput) (model.Facture, error) {
	numero, err := nextNumero(tx, &model.Facture{}, tenantID, billing.PrefixFacture, s.now().Year())
	if err != nil {
		return model.Facture{}, err
	}
	f := model.Facture{
		TenantID:     tenantID,
		ClientID:     in.ClientID,
		Numero:       numero,
		Objet:        in.Objet,
		Notes:        in.Notes,
		Status:       billing.FactureDraft,
		DateEcheance: utcPtr(in.DateEcheance),
		Lignes:       factureLignes(in.Lignes),
	}
	f.SetTotals(billing.Compute(f.Lines()))
	return f, nil
}

// CreateFromDevis issues a draft invoice from an accepted quote, copying its
// client, subject and lines. A quote converts at most once.
func (s *FactureStore) CreateFromDevis(ctx context.Context, tenantID, devisID string, due *time.Time) (*model.Facture, error) {
	var f model.Facture
	err := withNumero(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var d model.Devis
			if err := scoped(tx.Preload("Lignes", orderedLines), tenantID, devisID).First(&d).Error; err != nil {
				return notFound(err)
			}
			if d.Status != billing.DevisAccepted {
				return fmt.Errorf("only an accepted quote can be invoiced, this one is %s: %w", d.Status, ErrConflict)
			}
			var n int64
			if err := tx.Model(&model.Facture{}).Where("tenant_id = ? AND devis_id = ?", tenantID, devisID).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("quote %s is already invoiced: %w", d.Numero, ErrConflict)
			}

			lignes := make([]model.Ligne, len(d.Lignes))
			for i, l := range d.Lignes {
				lignes[i] = l.Ligne
			}
			var err error
			f, err = s.draft(tx, tenantID, FactureInput{
				ClientID:     d.ClientID,
				Objet:        d.Objet,
				Notes:        d.Notes,
				DateEcheance: due,
				Lignes:       lignes,
			})
			if err != nil {
				return err
			}
			f.DevisID = &d.ID
			return tx.Create(&f).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("invoice devis %s: %w", devisID, err)
	}
	return &f, nil
}

// Update applies a header patch.
func (s *FactureStore) Update(ctx context.Context, tenantID, id string, p FacturePatch) (*model.Facture, error) {
	updates := map[string]any{}
	if p.ClientID != nil {
		updates["client_id"] = *p.ClientID
	}
	if p.Objet != nil {
		updates["objet"] = *p.Objet
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	if p.DateEcheance != nil {
		updates["date_echeance"] = p.DateEcheance.UTC()
	}
	var out *model.Facture
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.ClientID != nil {
			if err := requireClient(tx, tenantID, *p.ClientID); err != nil {
				return err
			}
		}
		if len(updates) > 0 {
			res := scoped(tx.Model(&model.Facture{}), tenantID, id).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		var err error
		out, err = s.get(tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update facture %s: %w", id, err)
	}
	return out, nil
}

// ReplaceLines swaps the invoice's lines and recomputes its totals in one
// transaction. Only draft invoices can change.
func (s *FactureStore) ReplaceLines(ctx context.Context, tenantID, id string, lignes []model.Ligne) (*model.Facture, error) {
	var out *model.Facture
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.Facture
		if err := scoped(tx, tenantID, id).First(&f).Error; err != nil {
			return notFound(err)
		}
		if f.Status != billing.FactureDraft {
			return fmt.Errorf("lines of a %s invoice are frozen: %w", f.Status, ErrConflict)
		}
		if err := tx.Where("facture_id = ?", id).Delete(&model.FactureLigne{}).Error; err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}
		rows := factureLignes(lignes)
		for i := range rows {
			rows[i].FactureID = id
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert lines: %w", err)
			}
		}
		f.Lignes = rows
		if err := tx.Model(&model.Facture{}).Where("id = ?", id).
			Updates(totalsUpdates(billing.Compute(f.Lines()))).Error; err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		var err error
		out, err = s.get(tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replace facture lines %s: %w", id, err)
	}
	return out, nil
}

// Recompute recalculates the stored totals from the stored lines.
func (s *FactureStore) Recompute(ctx context.Context, tenantID, id string) (*model.Facture, error) {
	var out *model.Facture
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := s.get(tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Facture{}).Where("id = ?", id).
			Updates(totalsUpdates(billing.Compute(f.Lines()))).Error; err != nil {
			return err
		}
		out, err = s.get(tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recompute facture %s: %w", id, err)
	}
	return out, nil
}

// SetStatus moves the invoice to status, stamping the matching date column
// only when it is still empty.
func (s *FactureStore) SetStatus(ctx context.Context, tenantID, id string, to billing.FactureStatus) (*model.Facture, error) {
	db := s.db.WithContext(ctx)
	var cur model.Facture
	if err := scoped(db.Select("id", "status"), tenantID, id).First(&cur).Error; err != nil {
		return nil, fmt.Errorf("get facture %s: %w", id, notFound(err))
	}
	if err := billing.FactureLifecycle.Check(cur.Status, to); err != nil {
		return nil, err
	}
	res := db.Model(&model.Facture{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, cur.Status).
		Updates(statusUpdates(string(to), billing.FactureLifecycle.Stamp(to), s.now()))
	if res.Error != nil {
		return nil, fmt.Errorf("set facture status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("facture %s changed concurrently: %w", id, ErrConflict)
	}
	return s.Get(ctx, tenantID, id)
}

// Delete removes a draft invoice and its lines. Issued invoices are kept.
func (s *FactureStore) Delete(ctx context.Context, tenantID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.Facture
		if err := scoped(tx.Select("id", "status"), tenantID, id).First(&f).Error; err != nil {
			return notFound(err)
		}
		if f.Status != billing.FactureDraft {
			return fmt.Errorf("a %s invoice cannot be deleted: %w", f.Status, ErrConflict)
		}
		if err := tx.Where("facture_id = ?", id).Delete(&model.FactureLigne{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Facture{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("delete facture %s: %w", id, err)
	}
	return nil
}

// OverdueCandidates returns sent invoices of every tenant whose due date is
// before now.
func (s *FactureStore) OverdueCandidates(ctx context.Context, now time.Time) ([]model.Facture, error) {
	var out []model.Facture
	err := s.db.WithContext(ctx).
		Where("status = ? AND date_echeance IS NOT NULL AND date_echeance < ?", billing.FactureSent, now.UTC()).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue factures: %w", err)
	}
	return out, nil
}

func factureLignes(in []model.Ligne) []model.FactureLigne {
	out := make([]model.FactureLigne, len(in))
	for i, l := range in {
		l = l.Rounded()
		l.Position = i
		out[i] = model.FactureLigne{Ligne: l}
	}
	return out
}
