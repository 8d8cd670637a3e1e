// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
// Every tenant-owned row carries the tenant id taken from the JWT subject.
package model

import (
	"strings"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func init() {
	// Amounts are emitted as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Entreprise is the tenant's business profile, used for document branding
// and billing defaults.
type Entreprise struct {
	TenantID           string          `gorm:"type:text;primaryKey" json:"tenant_id"`
	RaisonSociale      string          `gorm:"type:text;not null;default:''" json:"raison_sociale"`
	Siret              string          `gorm:"type:text;not null;default:''" json:"siret"`
	TVAIntracom        string          `gorm:"type:text;not null;default:''" json:"tva_intracom"`
	Adresse            string          `gorm:"type:text;not null;default:''" json:"adresse"`
	CodePostal         string          `gorm:"type:text;not null;default:''" json:"code_postal"`
	Ville              string          `gorm:"type:text;not null;default:''" json:"ville"`
	Email              string          `gorm:"type:text;not null;default:''" json:"email"`
	Telephone          string          `gorm:"type:text;not null;default:''" json:"telephone"`
	LogoURL            string          `gorm:"type:text;not null;default:''" json:"logo_url"`
	IBAN               string          `gorm:"type:text;not null;default:''" json:"iban"`
	TVADefaut          decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"tva_defaut"`
	ValiditeDevisJours int             `gorm:"not null;default:30" json:"validite_devis_jours"`
	DelaiPaiementJours int             `gorm:"not null;default:30" json:"delai_paiement_jours"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name.
func (Entreprise) TableName() string { return "entreprises" }

// Client is a customer of the tenant.
type Client struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"id"`
	TenantID           string    `gorm:"type:text;not null;index" json:"tenant_id"`
	Nom                string    `gorm:"type:text;not null" json:"nom"`
	Prenom             string    `gorm:"type:text;not null;default:''" json:"prenom"`
	Societe            string    `gorm:"type:text;not null;default:''" json:"societe"`
	Email              string    `gorm:"type:text;not null;default:''" json:"email"`
	Telephone          string    `gorm:"type:text;not null;default:''" json:"telephone"`
	TelephoneNormalise string    `gorm:"type:text;not null;default:'';index" json:"-"`
	Adresse            string    `gorm:"type:text;not null;default:''" json:"adresse"`
	CodePostal         string    `gorm:"type:text;not null;default:''" json:"code_postal"`
	Ville              string    `gorm:"type:text;not null;default:''" json:"ville"`
	AdresseChantier    string    `gorm:"type:text;not null;default:''" json:"adresse_chantier"`
	Notes              string    `gorm:"type:text;not null;default:''" json:"notes"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name.
func (Client) TableName() string { return "clients" }

// BeforeCreate generates a UUID primary key if not set.
func (c *Client) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// BeforeSave keeps the phone lookup column in sync.
func (c *Client) BeforeSave(_ *gorm.DB) error {
	c.TelephoneNormalise = NormalizePhone(c.Telephone)
	return nil
}

// DisplayName is "Prénom Nom", or the company name when set.
func (c *Client) DisplayName() string {
	if c.Societe != "" {
		return c.Societe
	}
	return strings.TrimSpace(c.Prenom + " " + c.Nom)
}

// NormalizePhone reduces a phone number to international digits, the form
// WhatsApp uses for sender ids: "06 12 34 56 78" and "+33 6 12 34 56 78"
// both become "33612345678".
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if rest, ok := strings.CutPrefix(digits, "00"); ok {
		return rest
	}
	if len(digits) == 10 && digits[0] == '0' {
		return "33" + digits[1:]
	}
	return digits
}

// Ligne is the shape shared by quote and invoice lines. Line amounts are
// derived and never stored.
type Ligne struct {
	Designation string          `gorm:"type:text;not null" json:"designation"`
	Description string          `gorm:"type:text;not null;default:''" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	Unit        string          `gorm:"type:text;not null;default:''" json:"unit"`
	UnitPriceHT decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_ht"`
	VATPct      decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"vat_pct"`
	Position    int             `gorm:"not null;default:0" json:"position"`
}

// Line returns the numeric view used by the totals calculator.
func (l Ligne) Line() billing.Line {
	return billing.Line{Quantity: l.Quantity, UnitPriceHT: l.UnitPriceHT, VATPct: l.VATPct}
}

// Rounded returns l with its numeric values at the column scales.
func (l Ligne) Rounded() Ligne {
	r := l.Line().Rounded()
	l.Quantity, l.UnitPriceHT, l.VATPct = r.Quantity, r.UnitPriceHT, r.VATPct
	return l
}

// DevisLigne is a line of a quote.
type DevisLigne struct {
	ID      string `gorm:"type:text;primaryKey" json:"id"`
	DevisID string `gorm:"type:text;not null;index" json:"devis_id"`
	Ligne
}

// TableName pins the table name.
func (DevisLigne) TableName() string { return "devis_lignes" }

// BeforeCreate generates a UUID primary key if not set.
func (l *DevisLigne) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// Devis is a quote.
type Devis struct {
	ID              string              `gorm:"type:text;primaryKey" json:"id"`
	TenantID        string              `gorm:"type:text;not null;uniqueIndex:idx_devis_tenant_numero,priority:1" json:"tenant_id"`
	ClientID        string              `gorm:"type:text;not null;index" json:"client_id"`
	Numero          string              `gorm:"type:text;not null;uniqueIndex:idx_devis_tenant_numero,priority:2" json:"numero"`
	Objet           string              `gorm:"type:text;not null;default:''" json:"objet"`
	Status          billing.DevisStatus `gorm:"type:text;not null;index" json:"status"`
	MontantHT       decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"montant_ht"`
	MontantTVA      decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"montant_tva"`
	MontantTTC      decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"montant_ttc"`
	DateEnvoi       *time.Time          `json:"date_envoi"`
	DateAcceptation *time.Time          `json:"date_acceptation"`
	DateValidite    *time.Time          `json:"date_validite"`
	Notes           string              `gorm:"type:text;not null;default:''" json:"notes"`
	Lignes          []DevisLigne        `gorm:"foreignKey:DevisID" json:"lignes"`
	CreatedAt       time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name.
func (Devis) TableName() string { return "devis" }

// BeforeCreate generates a UUID primary key if not set.
func (d *Devis) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Lines returns the numeric view of the quote's lines.
func (d *Devis) Lines() []billing.Line {
	out := make([]billing.Line, len(d.Lignes))
	for i, l := range d.Lignes {
		out[i] = l.Line()
	}
	return out
}

// SetTotals copies computed totals onto the header.
func (d *Devis) SetTotals(t billing.Totals) {
	d.MontantHT, d.MontantTVA, d.MontantTTC = t.HT, t.TVA, t.TTC
}

// FactureLigne is a line of an invoice.
type FactureLigne struct {
	ID        string `gorm:"type:text;primaryKey" json:"id"`
	FactureID string `gorm:"type:text;not null;index" json:"facture_id"`
	Ligne
}

// TableName pins the table name.
func (FactureLigne) TableName() string { return "facture_lignes" }

// BeforeCreate generates a UUID primary key if not set.
func (l *FactureLigne) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// Facture is an invoice, optionally issued from an accepted quote.
type Facture struct {
	ID           string                `gorm:"type:text;primaryKey" json:"id"`
	TenantID     string                `gorm:"type:text;not null;uniqueIndex:idx_factures_tenant_numero,priority:1" json:"tenant_id"`
	ClientID     string                `gorm:"type:text;not null;index" json:"client_id"`
	DevisID      *string               `gorm:"type:text;index" json:"devis_id"`
	Numero       string                `gorm:"type:text;not null;uniqueIndex:idx_factures_tenant_numero,priority:2" json:"numero"`
	Objet        string                `gorm:"type:text;not null;default:''" json:"objet"`
	Status       billing.FactureStatus `gorm:"type:text;not null;index" json:"status"`
	MontantHT    decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"montant_ht"`
	MontantTVA   decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"montant_tva"`
	MontantTTC   decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"montant_ttc"`
	DateEnvoi    *time.Time            `json:"date_envoi"`
	DateEcheance *time.Time            `json:"date_echeance"`
	DatePaiement *time.Time            `json:"date_paiement"`
	Notes        string                `gorm:"type:text;not null;default:''" json:"notes"`
	Lignes       []FactureLigne        `gorm:"foreignKey:FactureID" json:"lignes"`
	CreatedAt    time.Time             `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name.
func (Facture) TableName() string { return "factures" }

// BeforeCreate generates a UUID primary key if not set.
func (f *Facture) BeforeCreate(_ *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// Lines returns the numeric view of the invoice's lines.
func (f *Facture) Lines() []billing.Line {
	out := make([]billing.Line, len(f.Lignes))
	for i, l := range f.Lignes {
		out[i] = l.Line()
	}
	return out
}

// SetTotals copies computed totals onto the header.
func (f *Facture) SetTotals(t billing.Totals) {
	f.MontantHT, f.MontantTVA, f.MontantTTC = t.HT, t.TVA, t.TTC
}

// Notification types raised by the service itself.
const (
	NotificationDevisSent       = "devis_sent"
	NotificationFactureSent     = "facture_sent"
	NotificationFactureOverdue  = "facture_overdue"
	NotificationDevisExpired    = "devis_expired"
	NotificationWhatsAppMessage = "whatsapp_message"
)

// Notification is an in-app message for the tenant.
type Notification struct {
	ID        string            `gorm:"type:text;primaryKey" json:"id"`
	TenantID  string            `gorm:"type:text;not null;index" json:"tenant_id"`
	Type      string            `gorm:"type:text;not null" json:"type"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Message   string            `gorm:"type:text;not null;default:''" json:"message"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	Payload   datatypes.JSONMap `json:"payload"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName pins the table name.
func (Notification) TableName() string { return "notifications" }

// BeforeCreate generates a UUID primary key if not set.
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// OAuth provider and service tags.
const (
	ProviderGoogle  = "google"
	ServiceCalendar = "calendar"
)

// OAuthConnection stores a third-party grant. At most one row per
// (tenant, provider, service) is active.
type OAuthConnection struct {
	ID           string            `gorm:"type:text;primaryKey" json:"id"`
	TenantID     string            `gorm:"type:text;not null;uniqueIndex:idx_oauth_active,where:is_active,priority:1" json:"tenant_id"`
	Provider     string            `gorm:"type:text;not null;uniqueIndex:idx_oauth_active,where:is_active,priority:2" json:"provider"`
	Service      string            `gorm:"type:text;not null;uniqueIndex:idx_oauth_active,where:is_active,priority:3" json:"service"`
	AccessToken  string            `gorm:"type:text;not null" json:"-"`
	RefreshToken string            `gorm:"type:text;not null;default:''" json:"-"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	IsActive     bool              `gorm:"not null;default:false" json:"is_active"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName pins the table name.
func (OAuthConnection) TableName() string { return "oauth_connections" }

// BeforeCreate generates a UUID primary key if not set.
func (o *OAuthConnection) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// CalendarID returns the selected calendar, "primary" by default.
func (o *OAuthConnection) CalendarID() string {
	if v, ok := o.Metadata["calendar_id"].(string); ok && v != "" {
		return v
	}
	return "primary"
}
