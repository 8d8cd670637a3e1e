package handler

import (
	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/model"
	"github.com/shopspring/decimal"
)

// linesRequest is the body of PUT /{devis,factures}/{id}/lignes.
type linesRequest struct {
	Lignes []billing.LineInput `json:"lignes" validate:"max=200,dive"`
}

// toLignes normalizes submitted lines. Positions follow the submitted order.
func toLignes(in []billing.LineInput, defaultVAT decimal.Decimal) []model.Ligne {
	out := make([]model.Ligne, len(in))
	for i, l := range in {
		n := l.Normalize(defaultVAT)
		out[i] = model.Ligne{
			Designation: l.Designation,
			Description: l.Description,
			Quantity:    n.Quantity,
			Unit:        l.Unit,
			UnitPriceHT: n.UnitPriceHT,
			VATPct:      n.VATPct,
			Position:    i,
		}
	}
	return out
}
