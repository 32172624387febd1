package classify

import (
	"fmt"
	"strconv"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Range is an inclusive ideal interval for a sensor type.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var idealRanges = map[string]Range{
	"pH":           {Min: 4.5, Max: 7.5},
	"EC":           {Min: 0.5, Max: 3.0},
	"temperatura":  {Min: 10, Max: 35},
	"nível":        {Min: 0, Max: 100},
	"luminosidade": {Min: 0, Max: 200000},
}

var unitsByType = map[string]string{
	"pH":           "",
	"EC":           "mS/cm",
	"temperatura":  "°C",
	"nível":        "%",
	"luminosidade": "lux",
}

// IdealRange returns the ideal range for a sensor type.
func IdealRange(tipo string) (Range, bool) {
	r, ok := idealRanges[tipo]
	return r, ok
}

// UnitForType returns the unit assigned automatically when a sensor of the
// given type is registered. Unknown types get no unit.
func UnitForType(tipo string) string {
	return unitsByType[tipo]
}

// Evaluation is the outcome of checking a value against its ideal range.
type Evaluation struct {
	Severity models.Severity
	Message  string
}

// Evaluate classifies a value for the given sensor type. Types without a
// configured range evaluate to unknown with no message.
func Evaluate(tipo string, valor float64) Evaluation {
	r, ok := idealRanges[tipo]
	if !ok {
		return Evaluation{Severity: models.SeverityUnknown}
	}
	switch {
	case valor < r.Min:
		return Evaluation{
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("%s abaixo da faixa ideal (%s < %s)", tipo, formatNumber(valor), formatNumber(r.Min)),
		}
	case valor > r.Max:
		return Evaluation{
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("%s acima da faixa ideal (%s > %s)", tipo, formatNumber(valor), formatNumber(r.Max)),
		}
	default:
		return Evaluation{Severity: models.SeverityOK}
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
