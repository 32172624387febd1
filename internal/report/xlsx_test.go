package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
)

func TestWriteReadings(t *testing.T) {
	readings := classify.LabelReadings([]models.Reading{
		{SensorID: "ph-01", Tipo: "pH", Valor: 8.2, Unidade: "pH", Status: "critico-alto", Mensagem: "pH acima da faixa ideal (8.2 > 7.5)", DataHora: "2026-03-01T11:00:00Z"},
		{SensorID: "ec-01", Tipo: "EC", Valor: 1.5, Unidade: "mS/cm", Status: "ok", DataHora: "sem data"},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteReadings(&buf, readings, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "ph-01", rows[1][0])
	assert.Equal(t, "pH (Potencial hidrogeniônico)", rows[1][3])
	assert.Equal(t, "above ideal range", rows[1][4])
	assert.Equal(t, "01/03/2026 11:00:00", rows[1][6])
	assert.Equal(t, "sem data", rows[2][6])

	raw, err := f.GetCellValue(SheetName, "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "8.2", raw)
}

func TestWriteReadings_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReadings(&buf, nil, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
