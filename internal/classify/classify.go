// Package classify maps raw status and unit codes to canonical labels and
// evaluates readings against the ideal range of their sensor type.
//
// Every function here is total: unknown input degrades to a fallback label,
// never to an error or an empty string.
package classify

import "github.com/afroash/hydro-monitor/internal/models"

// Status labels shown for each severity tier.
const (
	LabelOK      = "within ideal range"
	LabelLow     = "below ideal range"
	LabelHigh    = "above ideal range"
	LabelUnknown = "unknown"
)

// MissingUnit is shown when a reading or sensor carries no unit at all.
const MissingUnit = "-"

var unitLabels = map[string]string{
	"°C":    "°C (Graus Celsius)",
	"mS/cm": "mS/cm (Condutividade)",
	"%":     "% (Percentual)",
	"lux":   "lux (Luminosidade)",
	"pH":    "pH (Potencial hidrogeniônico)",
}

// ClassifyUnit returns the display label for a unit code. Unrecognized codes
// are echoed unchanged.
func ClassifyUnit(code string) string {
	if code == "" {
		return MissingUnit
	}
	if label, ok := unitLabels[code]; ok {
		return label
	}
	return code
}

// ClassifyStatus returns the display label for a raw status code.
func ClassifyStatus(code string) string {
	return SeverityLabel(models.ParseSeverity(code))
}

// SeverityLabel returns the display label for a resolved tier.
func SeverityLabel(s models.Severity) string {
	switch s {
	case models.SeverityOK:
		return LabelOK
	case models.SeverityLow:
		return LabelLow
	case models.SeverityHigh:
		return LabelHigh
	default:
		return LabelUnknown
	}
}
