// Package mail sends transactional email through an SMTP relay.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/d9705996/artisan/internal/integration"
	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

const provider = "smtp"

// Config holds relay settings. Port 465 uses implicit TLS; any other port
// requires STARTTLS.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Attachment is a file sent along with an email.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Email is one outbound message.
type Email struct {
	To          string
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Sender delivers an Email and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, e Email) (string, error)
}

// Mailer is the SMTP Sender.
type Mailer struct {
	cfg    Config
	domain string
}

// New returns a Mailer, or ErrNotConfigured when the relay password or
// sender address is missing.
func New(cfg Config) (*Mailer, error) {
	if cfg.Password == "" || cfg.From == "" {
		return nil, integration.NotConfigured(provider, "RESEND_API_KEY", "MAIL_FROM")
	}
	addr, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse MAIL_FROM: %w", err)
	}
	domain := "localhost"
	if _, d, ok := strings.Cut(addr.Address, "@"); ok {
		domain = d
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = integration.DefaultTimeout
	}
	return &Mailer{cfg: cfg, domain: domain}, nil
}

// Build assembles the MIME message for e and returns it with its
// Message-ID.
func (m *Mailer) Build(e Email) (*gomail.Msg, string, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, "", fmt.Errorf("from: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, "", fmt.Errorf("to %q: %w", e.To, err)
	}
	if e.ReplyTo != "" {
		if err := msg.ReplyTo(e.ReplyTo); err != nil {
			return nil, "", fmt.Errorf("reply-to %q: %w", e.ReplyTo, err)
		}
	}
	msg.Subject(e.Subject)
	msg.SetDate()
	id := uuid.NewString() + "@" + m.domain
	msg.SetGenHeader(gomail.HeaderMessageID, "<"+id+">")

	switch {
	case e.Text != "" && e.HTML != "":
		msg.SetBodyString(gomail.TypeTextPlain, e.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, e.HTML)
	case e.HTML != "":
		msg.SetBodyString(gomail.TypeTextHTML, e.HTML)
	default:
		msg.SetBodyString(gomail.TypeTextPlain, e.Text)
	}

	for _, a := range e.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data), gomail.WithFileContentType(gomail.ContentType(ct))); err != nil {
			return nil, "", fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, id, nil
}

// Send delivers e through the relay.
func (m *Mailer) Send(ctx context.Context, e Email) (string, error) {
	msg, id, err := m.Build(e)
	if err != nil {
		return "", err
	}
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
		gomail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", &integration.UpstreamError{Provider: provider, Message: err.Error()}
	}
	return id, nil
}

// Body is the content of a branded message.
type Body struct {
	Greeting   string
	Paragraphs []string
	Company    string
	ActionURL  string
	ActionText string
}

var bodyTmpl = template.Must(template.New("email").Parse(`<!doctype html>
<html lang="fr">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body style="font-family: Arial, Helvetica, sans-serif; color:#1f2937; line-height:1.5;">
  <div style="max-width:560px; margin:0 auto; padding:24px;">
    <p>{{.Greeting}}</p>
    {{range .Paragraphs}}<p>{{.}}</p>
    {{end}}{{if .ActionURL}}<p><a href="{{.ActionURL}}" style="display:inline-block; padding:10px 18px; background:#2563eb; color:#fff; text-decoration:none; border-radius:6px;">{{.ActionText}}</a></p>
    {{end}}<p style="margin-top:32px;">Bien cordialement,<br>LÉO{{if .Company}}, l'assistant de {{.Company}}{{end}}</p>
  </div>
</body>
</html>
`))

// Render returns the HTML and plain-text versions of b, signed by LÉO.
func Render(b Body) (html, text string, err error) {
	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, b); err != nil {
		return "", "", fmt.Errorf("render email: %w", err)
	}
	var t strings.Builder
	t.WriteString(b.Greeting + "\n\n")
	for _, p := range b.Paragraphs {
		t.WriteString(p + "\n\n")
	}
	if b.ActionURL != "" {
		t.WriteString(b.ActionText + " : " + b.ActionURL + "\n\n")
	}
	t.WriteString("Bien cordialement,\nLÉO")
	if b.Company != "" {
		t.WriteString(", l'assistant de " + b.Company)
	}
	return buf.String(), t.String(), nil
}
