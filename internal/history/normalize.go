package history

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Nationwide is the canonical key of the whole-country aggregate row.
const Nationwide = "CAŁA POLSKA"

// nationwideLabels are the raw labels the source used for the aggregate
// row across its reporting eras.
var nationwideLabels = []string{"Cała Polska", "Cały kraj"}

// NormalizeProvince maps a raw province label to its canonical series key.
// Both nationwide labels collapse into Nationwide; every other name is
// upper-cased with Polish casing rules.
func NormalizeProvince(name string) string {
	name = norm.NFC.String(strings.Join(strings.Fields(name), " "))

	// Casers keep transform state and must not be shared across goroutines.
	fold := cases.Fold()
	folded := fold.String(name)
	for _, label := range nationwideLabels {
		if fold.String(norm.NFC.String(label)) == folded {
			return Nationwide
		}
	}
	return cases.Upper(language.Polish).String(name)
}
