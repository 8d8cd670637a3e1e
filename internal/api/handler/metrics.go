package handler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outbound channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Metrics holds the instruments the handlers record. A nil *Metrics
// records nothing.
type Metrics struct {
	outbound metric.Int64Counter
}

// NewMetrics registers the handler instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/d9705996/artisan/internal/api/handler")
	outbound, err := meter.Int64Counter("outbound.messages",
		metric.WithDescription("Messages delivered to clients, by channel"))
	if err != nil {
		return nil, fmt.Errorf("register outbound counter: %w", err)
	}
	return &Metrics{outbound: outbound}, nil
}

func (m *Metrics) sent(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.outbound.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}
