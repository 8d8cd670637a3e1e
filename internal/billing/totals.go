package billing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Stored scales of line values. Totals are computed on values already at
// these scales so a recompute from stored lines gives the same result.
const (
	QuantityScale = 3
	PriceScale    = 2
	VATScale      = 2
)

// Line is the numeric part of a quote or invoice line.
type Line struct {
	Quantity    decimal.Decimal
	UnitPriceHT decimal.Decimal
	VATPct      decimal.Decimal
}

// HT returns quantity * unit price, unrounded.
func (l Line) HT() decimal.Decimal { return l.Quantity.Mul(l.UnitPriceHT) }

// Rounded returns l with each value rounded half away from zero to its
// stored scale.
func (l Line) Rounded() Line {
	return Line{
		Quantity:    l.Quantity.Round(QuantityScale),
		UnitPriceHT: l.UnitPriceHT.Round(PriceScale),
		VATPct:      l.VATPct.Round(VATScale),
	}
}

// TVA returns the line's VAT amount, unrounded.
func (l Line) TVA() decimal.Decimal { return l.HT().Mul(l.VATPct).Div(hundred) }

// Totals are the header amounts of a document, each rounded to the cent.
type Totals struct {
	HT  decimal.Decimal `json:"montant_ht"`
	TVA decimal.Decimal `json:"montant_tva"`
	TTC decimal.Decimal `json:"montant_ttc"`
}

// Compute sums the lines. Aggregates are rounded half away from zero to two
// places and TTC is derived from the rounded HT and TVA, so TTC == HT + TVA
// holds exactly.
func Compute(lines []Line) Totals {
	ht, tva := decimal.Zero, decimal.Zero
	for _, l := range lines {
		lineHT := l.HT()
		ht = ht.Add(lineHT)
		tva = tva.Add(lineHT.Mul(l.VATPct).Div(hundred))
	}
	ht = ht.Round(2)
	tva = tva.Round(2)
	return Totals{HT: ht, TVA: tva, TTC: ht.Add(tva).Round(2)}
}

// LineInput is a line as submitted by the client. Numeric fields are lenient.
type LineInput struct {
	Designation string `json:"designation" validate:"required,max=500"`
	Description string `json:"description" validate:"max=5000"`
	Quantity    Number `json:"quantity"`
	Unit        string `json:"unit" validate:"max=32"`
	UnitPriceHT Number `json:"unit_price_ht"`
	VATPct      Number `json:"vat_pct"`
}

// Normalize applies defaults: quantity 1, price 0, VAT defaultVAT. Explicit
// zeros are kept. Values are rounded to their stored scales.
func (in LineInput) Normalize(defaultVAT decimal.Decimal) Line {
	return Line{
		Quantity:    in.Quantity.Or(decimal.NewFromInt(1)),
		UnitPriceHT: in.UnitPriceHT.Or(decimal.Zero),
		VATPct:      in.VATPct.Or(defaultVAT),
	}.Rounded()
}
