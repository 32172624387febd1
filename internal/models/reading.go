package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Severity is the tier a reading falls into relative to its sensor's ideal range.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityLow     Severity = "critico-baixo"
	SeverityHigh    Severity = "critico-alto"
	SeverityUnknown Severity = "unknown"
)

// ParseSeverity resolves a raw status code to exactly one of the four tiers.
// Anything outside ok/critico-baixo/critico-alto is unknown.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.TrimSpace(raw)); s {
	case SeverityOK, SeverityLow, SeverityHigh:
		return s
	default:
		return SeverityUnknown
	}
}

// IsAlert reports whether the severity is outside the ideal range.
func (s Severity) IsAlert() bool {
	return s == SeverityLow || s == SeverityHigh
}

// Reading is a single measurement produced by a backend simulation tick
// or pushed by a device.
type Reading struct {
	SensorID string   `json:"sensorId"`
	Tipo     string   `json:"tipo,omitempty"`
	Valor    float64  `json:"valor"`
	Unidade  string   `json:"unidade,omitempty"`
	Status   Severity `json:"status,omitempty"`
	DataHora string   `json:"dataHora"`
	Mensagem string   `json:"mensagem,omitempty"`
}

// NewReading creates a reading stamped with the given instant in UTC.
func NewReading(sensorID, tipo, unidade string, valor float64, at time.Time) *Reading {
	return &Reading{
		SensorID: sensorID,
		Tipo:     tipo,
		Valor:    valor,
		Unidade:  unidade,
		DataHora: FormatTimestamp(at),
	}
}

// Severity returns the reading's status resolved to one of the four tiers.
func (r *Reading) Severity() Severity {
	return ParseSeverity(string(r.Status))
}

// Time returns the parsed dataHora, or the zero time when it cannot be parsed.
func (r *Reading) Time() time.Time {
	t, _ := ParseTimestamp(r.DataHora)
	return t
}

// IsValid checks the fields a device must always send
func (r *Reading) IsValid() bool {
	if strings.TrimSpace(r.SensorID) == "" {
		return false
	}
	if math.IsNaN(r.Valor) || math.IsInf(r.Valor, 0) {
		return false
	}
	if _, err := ParseTimestamp(r.DataHora); err != nil {
		return false
	}
	return true
}

func (r *Reading) String() string {
	return fmt.Sprintf("SensorID: %s, DataHora: %s, Valor: %.2f %s, Status: %s",
		r.SensorID,
		r.DataHora,
		r.Valor,
		r.Unidade,
		r.Severity())
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Alert is the backend's denormalized view of an out-of-range reading.
type Alert struct {
	SensorID string  `json:"sensorId"`
	Tipo     string  `json:"tipo"`
	Valor    float64 `json:"valor"`
	Mensagem string  `json:"mensagem"`
	DataHora string  `json:"dataHora"`
}

// Time returns the parsed dataHora, or the zero time when it cannot be parsed.
func (a *Alert) Time() time.Time {
	t, _ := ParseTimestamp(a.DataHora)
	return t
}

var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp tries the formats the backend and devices are known to emit.
// Values without a zone are taken as UTC.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}

// FormatTimestamp renders an instant the way the backend emits dataHora.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
