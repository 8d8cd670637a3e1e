package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// Document number prefixes.
const (
	PrefixDevis   = "DEV"
	PrefixFacture = "FAC"
)

// Numero formats a human-readable document number, e.g. DEV-2026-0007.
func Numero(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, seq)
}

// NumeroPrefix is the per-year prefix shared by all numbers of a series.
func NumeroPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%04d-", prefix, year)
}

// NextSeq returns the sequence following the highest existing number of the
// series, or 1. Numbers that do not parse are ignored.
func NextSeq(prefix string, year int, existing ...string) int {
	p := NumeroPrefix(prefix, year)
	highest := 0
	for _, n := range existing {
		rest, ok := strings.CutPrefix(n, p)
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		highest = max(highest, seq)
	}
	return highest + 1
}
