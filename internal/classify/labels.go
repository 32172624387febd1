package classify

import "github.com/afroash/hydro-monitor/internal/models"

// LabeledReading is a reading with its resolved tier and display labels.
type LabeledReading struct {
	models.Reading
	Severity    models.Severity
	StatusLabel string
	UnitLabel   string
}

// LabelReading resolves the reading's status and unit labels.
func LabelReading(r models.Reading) LabeledReading {
	sev := r.Severity()
	return LabeledReading{
		Reading:     r,
		Severity:    sev,
		StatusLabel: SeverityLabel(sev),
		UnitLabel:   ClassifyUnit(r.Unidade),
	}
}

// LabelReadings labels every reading, preserving order.
func LabelReadings(readings []models.Reading) []LabeledReading {
	out := make([]LabeledReading, len(readings))
	for i, r := range readings {
		out[i] = LabelReading(r)
	}
	return out
}

// LabeledAlert is an alert with the tier implied by its value and type.
type LabeledAlert struct {
	models.Alert
	Severity    models.Severity
	StatusLabel string
}

// LabelAlert evaluates the alert's value against its type's ideal range.
// Alerts for types without a range resolve to unknown.
func LabelAlert(a models.Alert) LabeledAlert {
	sev := Evaluate(a.Tipo, a.Valor).Severity
	return LabeledAlert{
		Alert:       a,
		Severity:    sev,
		StatusLabel: SeverityLabel(sev),
	}
}

// LabelAlerts labels every alert, preserving order.
func LabelAlerts(alerts []models.Alert) []LabeledAlert {
	out := make([]LabeledAlert, len(alerts))
	for i, a := range alerts {
		out[i] = LabelAlert(a)
	}
	return out
}
