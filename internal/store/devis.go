package store

import (
	"context"
	"fmt"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"gorm.io/gorm"
)

// DevisFilter narrows List results. Zero fields match everything.
type DevisFilter struct {
	Status   billing.DevisStatus
	ClientID string
}

// DevisInput is the data needed to create a quote.
type DevisInput struct {
	ClientID     string
	Objet        string
	Notes        string
	DateValidite *time.Time
	Lignes       []model.Ligne
}

// DevisPatch holds the header fields a PATCH may change.
type DevisPatch struct {
	ClientID     *string
	Objet        *string
	Notes        *string
	DateValidite *time.Time
}

// DevisStore persists quotes and their lines.
type DevisStore struct {
	db  *gorm.DB
	now clock
}

// NewDevisStore returns a DevisStore.
func NewDevisStore(db *gorm.DB) *DevisStore {
	return &DevisStore{db: db, now: utcNow}
}

// List returns the tenant's quotes, newest first, without lines.
func (s *DevisStore) List(ctx context.Context, tenantID string, f DevisFilter) ([]model.Devis, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	out := []model.Devis{}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list devis: %w", err)
	}
	return out, nil
}

// Get returns a quote with its lines in order.
func (s *DevisStore) Get(ctx context.Context, tenantID, id string) (*model.Devis, error) {
	return s.get(s.db.WithContext(ctx), tenantID, id)
}

func (s *DevisStore) get(db *gorm.DB, tenantID, id string) (*model.Devis, error) {
	var d model.Devis
	if err := scoped(db.Preload("Lignes", orderedLines), tenantID, id).First(&d).Error; err != nil {
		return nil, fmt.Errorf("get devis %s: %w", id, notFound(err))
	}
	return &d, nil
}

// Create inserts a draft quote, numbering it and computing its totals.
func (s *DevisStore) Create(ctx context.Context, tenantID string, in DevisInput) (*model.Devis, error) {
	var d model.Devis
	err := withNumero(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireClient(tx, tenantID, in.ClientID); err != nil {
				return err
			}
			now := s.now()
			numero, err := nextNumero(tx, &model.Devis{}, tenantID, billing.PrefixDevis, now.Year())
			if err != nil {
				return err
			}
			d = model.Devis{
				TenantID:     tenantID,
				ClientID:     in.ClientID,
				Numero:       numero,
				Objet:        in.Objet,
				Notes:        in.Notes,
				Status:       billing.DevisDraft,
				DateValidite: utcPtr(in.DateValidite),
				Lignes:       devisLignes(in.Lignes),
			}
			d.SetTotals(billing.Compute(d.Lines()))
			return tx.Create(&d).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create devis: %w", err)
	}
	return &d, nil
}

// Update applies a header patch.
func (s *DevisStore) Update(ctx context.Context, tenantID, id string, p DevisPatch) (*model.Devis, error) {
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
	if p.DateValidite != nil {
		updates["date_validite"] = p.DateValidite.UTC()
	}
	var out *model.Devis
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.ClientID != nil {
			if err := requireClient(tx, tenantID, *p.ClientID); err != nil {
				return err
			}
		}
		if len(updates) > 0 {
			res := scoped(tx.Model(&model.Devis{}), tenantID, id).Updates(updates)
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
		return nil, fmt.Errorf("update devis %s: %w", id, err)
	}
	return out, nil
}

// ReplaceLines swaps the quote's lines and recomputes its totals in one
// transaction. Lines are frozen once the quote is accepted or closed.
func (s *DevisStore) ReplaceLines(ctx context.Context, tenantID, id string, lignes []model.Ligne) (*model.Devis, error) {
	var out *model.Devis
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d model.Devis
		if err := scoped(tx, tenantID, id).First(&d).Error; err != nil {
			return notFound(err)
		}
		if d.Status != billing.DevisDraft && d.Status != billing.DevisSent {
			return fmt.Errorf("lines of a %s quote are frozen: %w", d.Status, ErrConflict)
		}
		if err := tx.Where("devis_id = ?", id).Delete(&model.DevisLigne{}).Error; err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}
		rows := devisLignes(lignes)
		for i := range rows {
			rows[i].DevisID = id
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert lines: %w", err)
			}
		}
		d.Lignes = rows
		if err := tx.Model(&model.Devis{}).Where("id = ?", id).
			Updates(totalsUpdates(billing.Compute(d.Lines()))).Error; err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		var err error
		out, err = s.get(tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replace devis lines %s: %w", id, err)
	}
	return out, nil
}

// Recompute recalculates the stored totals from the stored lines.
func (s *DevisStore) Recompute(ctx context.Context, tenantID, id string) (*model.Devis, error) {
	var out *model.Devis
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.get(tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Devis{}).Where("id = ?", id).
			Updates(totalsUpdates(billing.Compute(d.Lines()))).Error; err != nil {
			return err
		}
		out, err = s.get(tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recompute devis %s: %w", id, err)
	}
	return out, nil
}

// SetStatus moves the quote to status, stamping the matching date column
// only when it is still empty. The write is guarded by the status that was
// read, so a concurrent change yields ErrConflict.
func (s *DevisStore) SetStatus(ctx context.Context, tenantID, id string, to billing.DevisStatus) (*model.Devis, error) {
	db := s.db.WithContext(ctx)
	var cur model.Devis
	if err := scoped(db.Select("id", "status"), tenantID, id).First(&cur).Error; err != nil {
		return nil, fmt.Errorf("get devis %s: %w", id, notFound(err))
	}
	if err := billing.DevisLifecycle.Check(cur.Status, to); err != nil {
		return nil, err
	}
	res := db.Model(&model.Devis{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, cur.Status).
		Updates(statusUpdates(string(to), billing.DevisLifecycle.Stamp(to), s.now()))
	if res.Error != nil {
		return nil, fmt.Errorf("set devis status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("devis %s changed concurrently: %w", id, ErrConflict)
	}
	return s.Get(ctx, tenantID, id)
}

// Delete removes the quote and its lines.
func (s *DevisStore) Delete(ctx context.Context, tenantID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d model.Devis
		if err := scoped(tx.Select("id"), tenantID, id).First(&d).Error; err != nil {
			return notFound(err)
		}
		var invoiced int64
		if err := tx.Model(&model.Facture{}).Where("devis_id = ?", id).Count(&invoiced).Error; err != nil {
			return err
		}
		if invoiced > 0 {
			return fmt.Errorf("devis already invoiced: %w", ErrConflict)
		}
		if err := tx.Where("devis_id = ?", id).Delete(&model.DevisLigne{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Devis{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("delete devis %s: %w", id, err)
	}
	return nil
}

// ExpiryCandidates returns sent quotes of every tenant whose validity date
// is before now.
func (s *DevisStore) ExpiryCandidates(ctx context.Context, now time.Time) ([]model.Devis, error) {
	var out []model.Devis
	err := s.db.WithContext(ctx).
		Where("status = ? AND date_validite IS NOT NULL AND date_validite < ?", billing.DevisSent, now.UTC()).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list expiring devis: %w", err)
	}
	return out, nil
}

func devisLignes(in []model.Ligne) []model.DevisLigne {
	out := make([]model.DevisLigne, len(in))
	for i, l := range in {
		l = l.Rounded()
		l.Position = i
		out[i] = model.DevisLigne{Ligne: l}
	}
	return out
}
