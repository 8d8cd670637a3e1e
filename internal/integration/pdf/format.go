package pdf

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatEUR renders an amount the French way: "1 234,50 €".
func FormatEUR(d decimal.Decimal) string {
	p := message.NewPrinter(language.French)
	return p.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2))) + " €"
}

// FormatPct renders a rate without trailing zeros: "5,5 %", "20 %".
func FormatPct(d decimal.Decimal) string {
	return frDecimal(d) + " %"
}

// FormatQty renders a quantity without trailing zeros: "2", "1,5".
func FormatQty(d decimal.Decimal) string {
	return frDecimal(d)
}

// FormatDate renders dd/mm/yyyy, or an empty string for nil.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func frDecimal(d decimal.Decimal) string {
	return strings.Replace(d.String(), ".", ",", 1)
}
