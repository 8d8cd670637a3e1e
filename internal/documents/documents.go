// Package documents ties quotes and invoices to their outbound side
// effects: PDF rendering, email delivery, status changes, notifications,
// and the periodic overdue and expiry sweeps.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/mail"
	"github.com/d9705996/artisan/internal/integration/pdf"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
)

// ErrNoRecipient is returned when a document is sent to a client without
// an email address and no override was given.
var ErrNoRecipient = errors.New("no recipient email")

// Generator renders a resolved document to PDF.
type Generator interface {
	Generate(ctx context.Context, doc *pdf.Document) ([]byte, error)
}

// Notifier records in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) (bool, error)
}

// Links returns download links for archived documents.
type Links interface {
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Stores groups the repositories the service reads and writes.
type Stores struct {
	Devis       *store.DevisStore
	Factures    *store.FactureStore
	Clients     *store.ClientStore
	Entreprises *store.EntrepriseStore
}

// Service renders and sends documents.
type Service struct {
	st     Stores
	pdf    Generator
	mail   mail.Sender
	links  Links
	notify Notifier
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMail enables email delivery.
func WithMail(m mail.Sender) Option { return func(s *Service) { s.mail = m } }

// WithLinks adds an archive download link to outgoing emails.
func WithLinks(l Links) Option { return func(s *Service) { s.links = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New returns a Service. Without WithMail, Send* fail with
// integration.ErrNotConfigured.
func New(st Stores, gen Generator, n Notifier, log *slog.Logger, opts ...Option) *Service {
	s := &Service{st: st, pdf: gen, notify: n, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SendOptions tunes a send.
type SendOptions struct {
	// To overrides the client's email address.
	To string
	// Message is an optional paragraph added to the email body.
	Message string
}

// Sent reports a delivered document.
type Sent struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

const linkTTL = 7 * 24 * time.Hour

func (s *Service) parties(ctx context.Context, tenantID, clientID string) (*model.Entreprise, *model.Client, error) {
	e, err := s.st.Entreprises.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.st.Clients.Get(ctx, tenantID, clientID)
	if err != nil {
		return nil, nil, err
	}
	return e, c, nil
}

// DevisPDF renders a quote.
func (s *Service) DevisPDF(ctx context.Context, tenantID, id string) (*pdf.Document, []byte, error) {
	d, err := s.st.Devis.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	return s.devisPDF(ctx, d)
}

func (s *Service) devisPDF(ctx context.Context, d *model.Devis) (*pdf.Document, []byte, error) {
	e, c, err := s.parties(ctx, d.TenantID, d.ClientID)
	if err != nil {
		return nil, nil, err
	}
	doc := pdf.FromDevis(*e, *c, d)
	data, err := s.pdf.Generate(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// FacturePDF renders an invoice.
func (s *Service) FacturePDF(ctx context.Context, tenantID, id string) (*pdf.Document, []byte, error) {
	f, err := s.st.Factures.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	return s.facturePDF(ctx, f)
}

func (s *Service) facturePDF(ctx context.Context, f *model.Facture) (*pdf.Document, []byte, error) {
	e, c, err := s.parties(ctx, f.TenantID, f.ClientID)
	if err != nil {
		return nil, nil, err
	}
	doc := pdf.FromFacture(*e, *c, f)
	data, err := s.pdf.Generate(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// SendDevis emails the quote PDF to the client and marks the quote sent.
// Sending an already sent quote again keeps its first send date.
func (s *Service) SendDevis(ctx context.Context, tenantID, id string, opts SendOptions) (*model.Devis, *Sent, error) {
	d, err := s.st.Devis.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := billing.DevisLifecycle.Check(d.Status, billing.DevisSent); err != nil {
		return nil, nil, err
	}
	if s.mail == nil {
		return nil, nil, integration.NotConfigured("smtp", "RESEND_API_KEY", "MAIL_FROM")
	}
	if d.DateValidite == nil {
		e, err := s.st.Entreprises.Get(ctx, tenantID)
		if err != nil {
			return nil, nil, err
		}
		until := s.now().AddDate(0, 0, e.ValiditeDevisJours).UTC()
		if d, err = s.st.Devis.Update(ctx, tenantID, id, store.DevisPatch{DateValidite: &until}); err != nil {
			return nil, nil, err
		}
	}

	doc, data, err := s.devisPDF(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	validity := ""
	if d.DateValidite != nil {
		validity = " Il est valable jusqu'au " + pdf.FormatDate(d.DateValidite) + "."
	}
	sent, err := s.deliver(ctx, doc, data, opts, []string{
		fmt.Sprintf("Veuillez trouver ci-joint notre devis n° %s d'un montant de %s TTC.%s",
			doc.Numero, pdf.FormatEUR(doc.Totals.TTC), validity),
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := s.st.Devis.SetStatus(ctx, tenantID, id, billing.DevisSent)
	if err != nil {
		return nil, nil, err
	}
	s.raise(ctx, &model.Notification{
		TenantID: tenantID,
		Type:     model.NotificationDevisSent,
		Title:    "Devis " + out.Numero + " envoyé",
		Message:  "LÉO a envoyé le devis à " + sent.To + ".",
		Payload:  map[string]any{"devis_id": out.ID, "numero": out.Numero, "message_id": sent.MessageID},
	})
	return out, sent, nil
}

// SendFacture emails the invoice PDF to the client and marks the invoice
// sent. A missing due date is set from the tenant's payment terms first.
func (s *Service) SendFacture(ctx context.Context, tenantID, id string, opts SendOptions) (*model.Facture, *Sent, error) {
	f, err := s.st.Factures.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := billing.FactureLifecycle.Check(f.Status, billing.FactureSent); err != nil {
		return nil, nil, err
	}
	if s.mail == nil {
		return nil, nil, integration.NotConfigured("smtp", "RESEND_API_KEY", "MAIL_FROM")
	}
	if f.DateEcheance == nil {
		e, err := s.st.Entreprises.Get(ctx, tenantID)
		if err != nil {
			return nil, nil, err
		}
		due := s.now().AddDate(0, 0, e.DelaiPaiementJours).UTC()
		if f, err = s.st.Factures.Update(ctx, tenantID, id, store.FacturePatch{DateEcheance: &due}); err != nil {
			return nil, nil, err
		}
	}

	doc, data, err := s.facturePDF(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	sent, err := s.deliver(ctx, doc, data, opts, []string{
		fmt.Sprintf("Veuillez trouver ci-joint notre facture n° %s d'un montant de %s TTC, payable avant le %s.",
			doc.Numero, pdf.FormatEUR(doc.Totals.TTC), pdf.FormatDate(f.DateEcheance)),
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := s.st.Factures.SetStatus(ctx, tenantID, id, billing.FactureSent)
	if err != nil {
		return nil, nil, err
	}
	s.raise(ctx, &model.Notification{
		TenantID: tenantID,
		Type:     model.NotificationFactureSent,
		Title:    "Facture " + out.Numero + " envoyée",
		Message:  "LÉO a envoyé la facture à " + sent.To + ".",
		Payload:  map[string]any{"facture_id": out.ID, "numero": out.Numero, "message_id": sent.MessageID},
	})
	return out, sent, nil
}

func (s *Service) deliver(ctx context.Context, doc *pdf.Document, data []byte, opts SendOptions, paragraphs []string) (*Sent, error) {
	to := opts.To
	if to == "" {
		to = doc.Client.Email
	}
	if to == "" {
		return nil, fmt.Errorf("client %s: %w", doc.Client.DisplayName(), ErrNoRecipient)
	}
	if opts.Message != "" {
		paragraphs = append([]string{opts.Message}, paragraphs...)
	}
	body := mail.Body{
		Greeting:   "Bonjour " + doc.Client.DisplayName() + ",",
		Paragraphs: paragraphs,
		Company:    doc.Entreprise.RaisonSociale,
	}
	if s.links != nil {
		if u, err := s.links.URL(ctx, doc.ArchiveKey(), linkTTL); err == nil {
			body.ActionURL, body.ActionText = u, "Télécharger le document"
		}
	}
	html, text, err := mail.Render(body)
	if err != nil {
		return nil, err
	}
	subject := doc.Kind.Title() + " " + doc.Numero
	if doc.Entreprise.RaisonSociale != "" {
		subject += " - " + doc.Entreprise.RaisonSociale
	}
	id, err := s.mail.Send(ctx, mail.Email{
		To:          to,
		ReplyTo:     doc.Entreprise.Email,
		Subject:     subject,
		HTML:        html,
		Text:        text,
		Attachments: []mail.Attachment{{Name: doc.FileName(), ContentType: pdf.ContentType, Data: data}},
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "document sent", "kind", doc.Kind, "numero", doc.Numero, "message_id", id)
	return &Sent{MessageID: id, To: to}, nil
}

func (s *Service) raise(ctx context.Context, n *model.Notification) {
	if s.notify == nil {
		return
	}
	if _, err := s.notify.Notify(ctx, n); err != nil {
		s.log.WarnContext(ctx, "store notification failed", "type", n.Type, "error", err)
	}
}

// MarkOverdueFactures moves every sent invoice past its due date to
// overdue and returns how many changed.
func (s *Service) MarkOverdueFactures(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.st.Factures.OverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range rows {
		out, err := s.st.Factures.SetStatus(ctx, f.TenantID, f.ID, billing.FactureOverdue)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, billing.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		s.raise(ctx, &model.Notification{
			TenantID: out.TenantID,
			Type:     model.NotificationFactureOverdue,
			Title:    "Facture " + out.Numero + " en retard",
			Message:  "L'échéance du " + pdf.FormatDate(out.DateEcheance) + " est dépassée.",
			Payload:  map[string]any{"facture_id": out.ID, "numero": out.Numero},
		})
	}
	return n, nil
}

// ExpireDevis moves every sent quote past its validity date to expired and
// returns how many changed.
func (s *Service) ExpireDevis(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.st.Devis.ExpiryCandidates(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range rows {
		out, err := s.st.Devis.SetStatus(ctx, d.TenantID, d.ID, billing.DevisExpired)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, billing.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		s.raise(ctx, &model.Notification{
			TenantID: out.TenantID,
			Type:     model.NotificationDevisExpired,
			Title:    "Devis " + out.Numero + " expiré",
			Message:  "Le devis n'a pas été accepté avant le " + pdf.FormatDate(out.DateValidite) + ".",
			Payload:  map[string]any{"devis_id": out.ID, "numero": out.Numero},
		})
	}
	return n, nil
}
