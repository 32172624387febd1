// internal/models/reading_test.go
package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestReading_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		reading  Reading
		expected bool
	}{
		{
			name:     "valid reading",
			reading:  Reading{SensorID: "s-ph-01", Valor: 6.4, DataHora: "2025-10-24T11:00:00Z"},
			expected: true,
		},
		{
			name:     "offset timestamp",
			reading:  Reading{SensorID: "s-ph-01", Valor: 6.4, DataHora: "2025-10-24T11:00:00+00:00"},
			expected: true,
		},
		{
			name:     "missing sensor id",
			reading:  Reading{Valor: 6.4, DataHora: "2025-10-24T11:00:00Z"},
			expected: false,
		},
		{
			name:     "NaN value",
			reading:  Reading{SensorID: "s-ph-01", Valor: math.NaN(), DataHora: "2025-10-24T11:00:00Z"},
			expected: false,
		},
		{
			name:     "malformed timestamp",
			reading:  Reading{SensorID: "s-ph-01", Valor: 6.4, DataHora: "yesterday"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.reading.IsValid()
			if result != tt.expected {
				t.Errorf("IsValid() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want Severity
	}{
		{"ok", SeverityOK},
		{"critico-baixo", SeverityLow},
		{"critico-alto", SeverityHigh},
		{" ok ", SeverityOK},
		{"", SeverityUnknown},
		{"desconhecido", SeverityUnknown},
		{"garbage", SeverityUnknown},
	}

	for _, tt := range tests {
		if got := ParseSeverity(tt.raw); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestReading_SeverityNeverBlank(t *testing.T) {
	var r Reading
	if r.Severity() != SeverityUnknown {
		t.Errorf("Severity() of empty reading = %v, want %v", r.Severity(), SeverityUnknown)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 10, 24, 11, 0, 0, 0, time.UTC)
	inputs := []string{
		"2025-10-24T11:00:00Z",
		"2025-10-24T11:00:00+00:00",
		"2025-10-24T11:00:00",
		"2025-10-24 11:00:00",
		"2025-10-24T11:00",
	}
	for _, in := range inputs {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTimestamp("not-a-time"); err == nil {
		t.Error("ParseTimestamp should fail on garbage")
	}
	if _, err := ParseTimestamp(""); err == nil {
		t.Error("ParseTimestamp should fail on empty input")
	}
}

func TestReading_JSONFieldNames(t *testing.T) {
	body := `{"sensorId":"s-ec-01","tipo":"EC","valor":3.4,"unidade":"mS/cm","status":"critico-alto","dataHora":"2025-10-24T11:00:00Z","mensagem":"EC acima da faixa ideal (3.4 > 3.0)"}`

	var decoded Reading
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded.SensorID != "s-ec-01" {
		t.Errorf("SensorID = %v, want s-ec-01", decoded.SensorID)
	}
	if decoded.Severity() != SeverityHigh {
		t.Errorf("Severity = %v, want %v", decoded.Severity(), SeverityHigh)
	}
	if decoded.Time().IsZero() {
		t.Error("Time should parse")
	}
}

func TestNewReading(t *testing.T) {
	at := time.Date(2025, 10, 24, 8, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	reading := NewReading("s-temp-01", "temperatura", "°C", 22.5, at)

	if reading == nil {
		t.Fatal("NewReading returned nil")
	}
	if reading.DataHora != "2025-10-24T11:30:00Z" {
		t.Errorf("DataHora = %v, want 2025-10-24T11:30:00Z", reading.DataHora)
	}
	if reading.Valor != 22.5 {
		t.Errorf("Valor = %v, want 22.5", reading.Valor)
	}
}

func TestReading_Copy(t *testing.T) {
	original := NewReading("s-ph-01", "pH", "", 6.1, time.Now())
	c := original.Copy()
	c.Valor = 1

	if original.Valor != 6.1 {
		t.Error("Copy should not share state with the original")
	}

	var nilReading *Reading
	if nilReading.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}
