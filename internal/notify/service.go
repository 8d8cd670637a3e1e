package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d9705996/artisan/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Service stores notifications unless an equivalent one was stored within
// the dedup window.
type Service struct {
	store Store
	dedup Deduplicator
	log   *slog.Logger

	sent       metric.Int64Counter
	suppressed metric.Int64Counter
}

// NewService returns a Service. Counters are registered on the global OTel
// meter provider.
func NewService(store Store, dedup Deduplicator, log *slog.Logger) (*Service, error) {
	meter := otel.Meter("github.com/d9705996/artisan/internal/notify")
	sent, err := meter.Int64Counter("notifications.sent",
		metric.WithDescription("Notifications stored after deduplication"))
	if err != nil {
		return nil, fmt.Errorf("register sent counter: %w", err)
	}
	suppressed, err := meter.Int64Counter("notifications.suppressed",
		metric.WithDescription("Notifications dropped as duplicates"))
	if err != nil {
		return nil, fmt.Errorf("register suppressed counter: %w", err)
	}
	return &Service{store: store, dedup: dedup, log: log, sent: sent, suppressed: suppressed}, nil
}

// Notify stores n and reports whether it was stored. When the deduplicator
// fails the notification is stored anyway. A failed store write releases
// the key so a retry is not suppressed.
func (s *Service) Notify(ctx context.Context, n *model.Notification) (bool, error) {
	attrs := metric.WithAttributes(attribute.String("type", n.Type))
	key := Key(n.TenantID, n.Type, n.Title, n.Message)
	ok, err := s.dedup.ShouldSend(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "notification dedup unavailable", "error", err, "type", n.Type)
		ok = true
	}
	if !ok {
		s.suppressed.Add(ctx, 1, attrs)
		s.log.DebugContext(ctx, "notification suppressed", "tenant_id", n.TenantID, "type", n.Type)
		return false, nil
	}
	if err := s.store.Create(ctx, n); err != nil {
		if ferr := s.dedup.Forget(ctx, key); ferr != nil {
			s.log.WarnContext(ctx, "release notification key", "error", ferr, "type", n.Type)
		}
		return false, err
	}
	s.sent.Add(ctx, 1, attrs)
	return true, nil
}
