// Package report writes labeled readings to an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
)

// SheetName is the worksheet holding the readings.
const SheetName = "Leituras"

// Headers are the column titles, in order.
var Headers = []string{"Sensor", "Tipo", "Valor", "Unidade", "Status", "Mensagem", "Data/Hora"}

var columnWidths = []float64{16, 14, 10, 26, 20, 40, 22}

// DateLayout is how Data/Hora cells are written.
const DateLayout = "02/01/2006 15:04:05"

// WriteReadings writes one row per reading below a styled header row.
// Parsable timestamps are rendered in loc (UTC when nil), others are kept raw.
func WriteReadings(w io.Writer, readings []classify.LabeledReading, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E2F0D9"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	valueFormat := "0.00"
	valueStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &valueFormat})
	if err != nil {
		return fmt.Errorf("failed to create value style: %w", err)
	}

	for col, header := range Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, rd := range readings {
		row := i + 2
		at := rd.DataHora
		if t, err := models.ParseTimestamp(rd.DataHora); err == nil {
			at = t.In(loc).Format(DateLayout)
		}
		values := []any{rd.SensorID, rd.Tipo, rd.Valor, rd.UnitLabel, rd.StatusLabel, rd.Mensagem, at}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}

		valueCell, _ := excelize.CoordinatesToCellName(3, row)
		if err := f.SetCellStyle(SheetName, valueCell, valueCell, valueStyle); err != nil {
			return fmt.Errorf("failed to style row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
