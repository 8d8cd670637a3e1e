// Package pdf turns quotes and invoices into branded A4 PDFs.
package pdf

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"github.com/shopspring/decimal"
)

// Kind is the document type.
type Kind string

// Document kinds.
const (
	KindDevis   Kind = "devis"
	KindFacture Kind = "facture"
)

// Title is the heading printed on the document.
func (k Kind) Title() string {
	if k == KindFacture {
		return "Facture"
	}
	return "Devis"
}

// Line is a printed line with its derived amounts.
type Line struct {
	Designation string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPriceHT decimal.Decimal
	VATPct      decimal.Decimal
	TotalHT     decimal.Decimal
}

// VATRate is one row of the VAT breakdown.
type VATRate struct {
	Pct  decimal.Decimal
	Base decimal.Decimal
	TVA  decimal.Decimal
}

// Document is everything printed on a quote or invoice, fully resolved.
type Document struct {
	Kind       Kind
	TenantID   string
	Numero     string
	Objet      string
	IssuedAt   time.Time
	ValidUntil *time.Time // quotes
	DueAt      *time.Time // invoices
	Entreprise model.Entreprise
	Client     model.Client
	Lines      []Line
	VAT        []VATRate
	Totals     billing.Totals
	Notes      string
}

// FileName is "<numero>.pdf".
func (d *Document) FileName() string { return d.Numero + ".pdf" }

// ArchiveKey is the storage key "<tenant>/<kind>/<numero>.pdf".
func (d *Document) ArchiveKey() string {
	return d.TenantID + "/" + string(d.Kind) + "/" + d.FileName()
}

// FromDevis resolves a quote for printing.
func FromDevis(e model.Entreprise, c model.Client, d *model.Devis) *Document {
	lines := make([]model.Ligne, len(d.Lignes))
	for i, l := range d.Lignes {
		lines[i] = l.Ligne
	}
	doc := &Document{
		Kind:       KindDevis,
		TenantID:   d.TenantID,
		Numero:     d.Numero,
		Objet:      d.Objet,
		IssuedAt:   issued(d.DateEnvoi, d.CreatedAt),
		ValidUntil: d.DateValidite,
		Entreprise: e,
		Client:     c,
		Notes:      d.Notes,
	}
	doc.setLines(lines)
	return doc
}

// FromFacture resolves an invoice for printing.
func FromFacture(e model.Entreprise, c model.Client, f *model.Facture) *Document {
	lines := make([]model.Ligne, len(f.Lignes))
	for i, l := range f.Lignes {
		lines[i] = l.Ligne
	}
	doc := &Document{
		Kind:       KindFacture,
		TenantID:   f.TenantID,
		Numero:     f.Numero,
		Objet:      f.Objet,
		IssuedAt:   issued(f.DateEnvoi, f.CreatedAt),
		DueAt:      f.DateEcheance,
		Entreprise: e,
		Client:     c,
		Notes:      f.Notes,
	}
	doc.setLines(lines)
	return doc
}

func issued(sent *time.Time, created time.Time) time.Time {
	if sent != nil {
		return *sent
	}
	return created
}

// setLines derives line totals, the per-rate VAT breakdown and the
// document totals from the same lines.
func (d *Document) setLines(lines []model.Ligne) {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Position < lines[j].Position })
	calc := make([]billing.Line, len(lines))
	rates := map[string]*VATRate{}
	d.Lines = make([]Line, len(lines))
	for i, l := range lines {
		bl := l.Line()
		calc[i] = bl
		d.Lines[i] = Line{
			Designation: l.Designation,
			Description: l.Description,
			Quantity:    l.Quantity,
			Unit:        l.Unit,
			UnitPriceHT: l.UnitPriceHT,
			VATPct:      l.VATPct,
			TotalHT:     bl.HT().Round(2),
		}
		key := l.VATPct.String()
		r, ok := rates[key]
		if !ok {
			r = &VATRate{Pct: l.VATPct}
			rates[key] = r
		}
		r.Base = r.Base.Add(bl.HT())
		r.TVA = r.TVA.Add(bl.TVA())
	}
	d.VAT = d.VAT[:0]
	for _, r := range rates {
		d.VAT = append(d.VAT, VATRate{Pct: r.Pct, Base: r.Base.Round(2), TVA: r.TVA.Round(2)})
	}
	sort.Slice(d.VAT, func(i, j int) bool { return d.VAT[i].Pct.LessThan(d.VAT[j].Pct) })
	d.Totals = billing.Compute(calc)
}

//go:embed document.html
var documentHTML string

var documentTmpl = template.Must(template.New("document").Funcs(template.FuncMap{
	"eur":  FormatEUR,
	"pct":  FormatPct,
	"qty":  FormatQty,
	"date": FormatDate,
	"day":  func(t time.Time) string { return FormatDate(&t) },
}).Parse(documentHTML))

// BuildHTML renders the printable page.
func BuildHTML(doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render %s %s: %w", doc.Kind, doc.Numero, err)
	}
	return buf.String(), nil
}
