// Package view renders scheduler snapshots and collections as text tables.
package view

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Missing is printed for absent or non-finite values.
const Missing = "-"

// DisplayLayout is the local timestamp layout used in tables.
const DisplayLayout = "02/01/2006 15:04:05"

var printer = message.NewPrinter(language.BrazilianPortuguese)

// FormatValue renders a measurement with two decimals in pt-BR notation.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return printer.Sprintf("%.2f", v)
}

// FormatTimestamp renders a backend dataHora in loc. Unparsable values are
// echoed unchanged.
func FormatTimestamp(raw string, loc *time.Location) string {
	if strings.TrimSpace(raw) == "" {
		return Missing
	}
	t, err := models.ParseTimestamp(raw)
	if err != nil {
		return raw
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayLayout)
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return Missing
	}
	return s
}
