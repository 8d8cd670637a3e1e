package pdf

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ContentType of every generated document.
const ContentType = "application/pdf"

// Renderer prints an HTML page to PDF.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// Archiver keeps a copy of generated documents.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Generator builds, renders and archives documents.
type Generator struct {
	renderer Renderer
	archive  Archiver
	log      *slog.Logger
	rendered metric.Int64Counter
}

// NewGenerator returns a Generator. archive may be nil.
func NewGenerator(renderer Renderer, archive Archiver, log *slog.Logger) (*Generator, error) {
	meter := otel.Meter("github.com/d9705996/artisan/internal/integration/pdf")
	rendered, err := meter.Int64Counter("documents.rendered",
		metric.WithDescription("PDF documents rendered"))
	if err != nil {
		return nil, fmt.Errorf("register rendered counter: %w", err)
	}
	return &Generator{renderer: renderer, archive: archive, log: log, rendered: rendered}, nil
}

// Generate renders doc. A failed archive upload is logged; the PDF is
// still returned.
func (g *Generator) Generate(ctx context.Context, doc *Document) ([]byte, error) {
	html, err := BuildHTML(doc)
	if err != nil {
		return nil, err
	}
	data, err := g.renderer.Render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", doc.Numero, err)
	}
	g.rendered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(doc.Kind))))

	if g.archive != nil {
		if err := g.archive.Put(ctx, doc.ArchiveKey(), data, ContentType); err != nil {
			g.log.WarnContext(ctx, "archive document failed", "key", doc.ArchiveKey(), "error", err)
		}
	}
	return data, nil
}
