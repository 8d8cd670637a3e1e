package store

import (
	"context"
	"fmt"

	"github.com/d9705996/artisan/internal/model"
	"gorm.io/gorm"
)

// NotificationStore persists in-app notifications.
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore returns a NotificationStore.
func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// List returns up to limit notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []model.Notification{}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Create inserts n. TenantID must be set.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// MarkRead flags one notification as read.
func (s *NotificationStore) MarkRead(ctx context.Context, tenantID, id string) error {
	res := scoped(s.db.WithContext(ctx).Model(&model.Notification{}), tenantID, id).Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllRead flags every unread notification of the tenant and returns the
// number changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, tenantID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("tenant_id = ? AND read = ?", tenantID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes one notification.
func (s *NotificationStore) Delete(ctx context.Context, tenantID, id string) error {
	res := scoped(s.db.WithContext(ctx), tenantID, id).Delete(&model.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
