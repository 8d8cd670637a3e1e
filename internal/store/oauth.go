package store

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/seal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OAuthStore persists OAuth grants. Tokens are sealed with box before they
// reach the database and opened on the way out.
type OAuthStore struct {
	db  *gorm.DB
	box *seal.Box
}

// NewOAuthStore returns an OAuthStore. A nil box stores tokens as-is.
func NewOAuthStore(db *gorm.DB, box *seal.Box) *OAuthStore {
	return &OAuthStore{db: db, box: box}
}

// List returns every connection of the tenant, active first. Tokens are
// left sealed.
func (s *OAuthStore) List(ctx context.Context, tenantID string) ([]model.OAuthConnection, error) {
	out := []model.OAuthConnection{}
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).
		Order("is_active DESC, created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list oauth connections: %w", err)
	}
	return out, nil
}

// Activate stores c as the active connection for its (tenant, provider,
// service) and deactivates any previous one in the same transaction.
func (s *OAuthStore) Activate(ctx context.Context, c *model.OAuthConnection) error {
	row := *c
	row.ID = ""
	row.IsActive = true
	if row.ExpiresAt != nil {
		row.ExpiresAt = utcPtr(row.ExpiresAt)
	}
	var err error
	if row.AccessToken, err = s.box.Seal(c.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if row.RefreshToken, err = s.box.Seal(c.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.OAuthConnection{}).
			Where("tenant_id = ? AND provider = ? AND service = ? AND is_active = ?", c.TenantID, c.Provider, c.Service, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate previous: %w", err)
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("activate oauth connection: %w", err)
	}
	c.ID, c.IsActive, c.CreatedAt, c.UpdatedAt = row.ID, true, row.CreatedAt, row.UpdatedAt
	return nil
}

// Active returns the active connection with its tokens opened.
func (s *OAuthStore) Active(ctx context.Context, tenantID, provider, service string) (*model.OAuthConnection, error) {
	var c model.OAuthConnection
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND service = ? AND is_active = ?", tenantID, provider, service, true).
		First(&c).Error
	if err != nil {
		return nil, fmt.Errorf("active %s/%s connection: %w", provider, service, notFound(err))
	}
	if c.AccessToken, err = s.box.Open(c.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = s.box.Open(c.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &c, nil
}

// UpdateToken persists a refreshed token. An empty refresh token keeps the
// stored one, since providers usually omit it on refresh.
func (s *OAuthStore) UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	access, err := s.box.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	updates := map[string]any{"access_token": access, "expires_at": utcPtr(expiresAt)}
	if refreshToken != "" {
		refresh, err := s.box.Seal(refreshToken)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		updates["refresh_token"] = refresh
	}
	res := s.db.WithContext(ctx).Model(&model.OAuthConnection{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update oauth token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("oauth connection %s: %w", id, ErrNotFound)
	}
	return nil
}

// MergeMetadata merges md into the connection's metadata. A nil value
// removes the key.
func (s *OAuthStore) MergeMetadata(ctx context.Context, tenantID, id string, md map[string]any) (*model.OAuthConnection, error) {
	var c model.OAuthConnection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scoped(tx, tenantID, id).First(&c).Error; err != nil {
			return notFound(err)
		}
		merged := datatypes.JSONMap{}
		maps.Copy(merged, c.Metadata)
		for k, v := range md {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		c.Metadata = merged
		return tx.Model(&model.OAuthConnection{}).Where("id = ?", id).Update("metadata", merged).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update oauth metadata %s: %w", id, err)
	}
	return &c, nil
}

// Deactivate turns a connection off. It is kept for audit.
func (s *OAuthStore) Deactivate(ctx context.Context, tenantID, id string) error {
	res := scoped(s.db.WithContext(ctx).Model(&model.OAuthConnection{}), tenantID, id).Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate oauth connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("oauth connection %s: %w", id, ErrNotFound)
	}
	return nil
}
