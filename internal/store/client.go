package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/d9705996/artisan/internal/model"
	"gorm.io/gorm"
)

// ClientPatch holds the fields a PATCH may change. Nil means unchanged.
type ClientPatch struct {
	Nom             *string
	Prenom          *string
	Societe         *string
	Email           *string
	Telephone       *string
	Adresse         *string
	CodePostal      *string
	Ville           *string
	AdresseChantier *string
	Notes           *string
}

func (p ClientPatch) apply(c *model.Client) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Nom, p.Nom)
	set(&c.Prenom, p.Prenom)
	set(&c.Societe, p.Societe)
	set(&c.Email, p.Email)
	set(&c.Telephone, p.Telephone)
	set(&c.Adresse, p.Adresse)
	set(&c.CodePostal, p.CodePostal)
	set(&c.Ville, p.Ville)
	set(&c.AdresseChantier, p.AdresseChantier)
	set(&c.Notes, p.Notes)
}

// ClientStore persists the tenant's customers.
type ClientStore struct {
	db *gorm.DB
}

// NewClientStore returns a ClientStore.
func NewClientStore(db *gorm.DB) *ClientStore {
	return &ClientStore{db: db}
}

// List returns the tenant's clients sorted by name. search, when set,
// matches name, company or email case-insensitively.
func (s *ClientStore) List(ctx context.Context, tenantID, search string) ([]model.Client, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(nom) LIKE ? OR LOWER(prenom) LIKE ? OR LOWER(societe) LIKE ? OR LOWER(email) LIKE ?",
			like, like, like, like)
	}
	out := []model.Client{}
	if err := q.Order("nom ASC, prenom ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return out, nil
}

// Get returns one client.
func (s *ClientStore) Get(ctx context.Context, tenantID, id string) (*model.Client, error) {
	var c model.Client
	if err := scoped(s.db.WithContext(ctx), tenantID, id).First(&c).Error; err != nil {
		return nil, fmt.Errorf("get client %s: %w", id, notFound(err))
	}
	return &c, nil
}

// Create inserts c for the tenant.
func (s *ClientStore) Create(ctx context.Context, tenantID string, c *model.Client) error {
	c.ID = ""
	c.TenantID = tenantID
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// Update applies p to the client and saves it.
func (s *ClientStore) Update(ctx context.Context, tenantID, id string, p ClientPatch) (*model.Client, error) {
	c, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	p.apply(c)
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return nil, fmt.Errorf("update client %s: %w", id, err)
	}
	return c, nil
}

// Delete removes the client unless a quote or invoice still references it.
func (s *ClientStore) Delete(ctx context.Context, tenantID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireClient(tx, tenantID, id); err != nil {
			return err
		}
		var refs int64
		for _, m := range []any{&model.Devis{}, &model.Facture{}} {
			var n int64
			if err := tx.Model(m).Where("tenant_id = ? AND client_id = ?", tenantID, id).Count(&n).Error; err != nil {
				return err
			}
			refs += n
		}
		if refs > 0 {
			return ErrClientInUse
		}
		return tx.Delete(&model.Client{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("delete client %s: %w", id, err)
	}
	return nil
}

// FindByPhone returns the clients of every tenant reachable at phone. It
// backs inbound WhatsApp routing, which arrives without a tenant.
func (s *ClientStore) FindByPhone(ctx context.Context, phone string) ([]model.Client, error) {
	normalized := model.NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	var out []model.Client
	if err := s.db.WithContext(ctx).Where("telephone_normalise = ?", normalized).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find clients by phone: %w", err)
	}
	return out, nil
}
