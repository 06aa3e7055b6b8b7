package spreadsheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/seace/internal/core"
)

// DefaultSheetName names the single sheet of an exported workbook.
const DefaultSheetName = "Procesos"

// Writer encodes tables as .xlsx. The zero value writes DefaultSheetName.
type Writer struct {
	SheetName string
}

// Encode implements core.Encoder.
func (w Writer) Encode(t *core.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := w.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if len(t.Columns) > 0 {
		if err := styleHeader(f, sheet, len(t.Columns)); err != nil {
			return nil, err
		}
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = cellValue(v)
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeXLSX writes t with the default sheet name.
func EncodeXLSX(t *core.Table) ([]byte, error) {
	return Writer{}.Encode(t)
}

func cellValue(v core.Value) interface{} {
	switch v.Kind {
	case core.KindText:
		return v.Text
	case core.KindNumber:
		return v.Number
	case core.KindTime:
		return v.Time
	default:
		return nil
	}
}

func styleHeader(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
