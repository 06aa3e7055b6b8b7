// Package spreadsheet reads SEACE workbooks into core tables and writes
// filtered tables back out as .xlsx.
//
// Only the first sheet is read. The header row is detected among the first
// rows so that exports with a title block above the table still parse.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/seace/internal/core"
)

// ErrUnsupportedFormat is returned for extensions other than .xls and .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported format")

// DefaultHeaderScanRows is how many leading rows are searched for the header.
const DefaultHeaderScanRows = 20

// Format is a workbook container format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// Reader parses uploaded workbooks. The zero value is ready to use.
type Reader struct {
	HeaderScanRows int
}

// Parse reads data using the format implied by name. When that parser
// cannot open the file the other format is tried, since SEACE downloads are
// sometimes served with the wrong extension.
func (r *Reader) Parse(name string, data []byte) (*core.Table, error) {
	order, err := formatsFor(name)
	if err != nil {
		return nil, err
	}

	t, firstErr := r.read(order[0], data)
	if firstErr == nil {
		return t, nil
	}
	if errors.Is(firstErr, core.ErrEmptyFile) {
		return nil, firstErr
	}

	t, err = r.read(order[1], data)
	if err == nil {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w (as %s: %w)", order[0], firstErr, order[1], err)
}

func formatsFor(name string) ([2]Format, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		return [2]Format{FormatXLSX, FormatXLS}, nil
	case ".xls":
		return [2]Format{FormatXLS, FormatXLSX}, nil
	default:
		if ext == "" {
			ext = "(none)"
		}
		return [2]Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (r *Reader) read(format Format, data []byte) (*core.Table, error) {
	switch format {
	case FormatXLSX:
		return r.ReadXLSX(data)
	default:
		return r.ReadXLS(data)
	}
}

// ReadXLSX parses an Office Open XML workbook.
func (r *Reader) ReadXLSX(data []byte) (*core.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("open xlsx: %w: no sheets", core.ErrEmptyFile)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	cell := func(row, col int, formatted string) core.Value {
		rawValue := formatted
		if row < len(raw) && col < len(raw[row]) {
			rawValue = raw[row][col]
		}
		name, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return core.Text(formatted)
		}
		typ, err := f.GetCellType(sheet, name)
		if err != nil {
			return core.Text(formatted)
		}
		return xlsxValue(typ, formatted, rawValue)
	}

	return buildTable(rows, cell, r.scanRows())
}

func xlsxValue(typ excelize.CellType, formatted, raw string) core.Value {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeBool, excelize.CellTypeError, excelize.CellTypeFormula:
		return core.Text(formatted)
	case excelize.CellTypeDate:
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return core.Timestamp(ts)
		}
		return core.Text(formatted)
	default:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return core.Number(f, formatted)
		}
		return core.Text(formatted)
	}
}

// ReadXLS parses a legacy BIFF workbook.
func (r *Reader) ReadXLS(data []byte) (t *core.Table, err error) {
	// The BIFF decoder panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			t, err = nil, fmt.Errorf("open xls: corrupt workbook: %v", p)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("open xls: %w: no sheets", core.ErrEmptyFile)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("open xls: %w: no sheets", core.ErrEmptyFile)
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}

	cell := func(_, _ int, formatted string) core.Value {
		return xlsValue(formatted)
	}
	return buildTable(rows, cell, r.scanRows())
}

// sheetRow returns row i, or nil for a row the file does not store. The
// decoder dereferences absent rows, so the panic is recovered here.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsValue types a BIFF cell from its rendered text. Only text that renders
// back identically is a number, so codes like "00123" stay text.
func xlsValue(s string) core.Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return core.Missing()
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == trimmed {
		return core.Number(f, trimmed)
	}
	return core.Text(s)
}

func (r *Reader) scanRows() int {
	if r == nil || r.HeaderScanRows <= 0 {
		return DefaultHeaderScanRows
	}
	return r.HeaderScanRows
}

type cellFunc func(row, col int, formatted string) core.Value

// buildTable turns a grid of rendered cells into a table. Rows above the
// header and fully empty rows are dropped.
func buildTable(rows [][]string, cell cellFunc, scan int) (*core.Table, error) {
	headerIdx := findHeaderRow(rows, scan)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: no header row found", core.ErrEmptyFile)
	}

	width := 0
	for _, row := range rows[headerIdx:] {
		if n := lastNonEmpty(row) + 1; n > width {
			width = n
		}
	}

	header := make([]string, width)
	copy(header, rows[headerIdx])
	t := core.NewTable(core.HeaderNames(header))

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if lastNonEmpty(row) < 0 {
			continue
		}
		values := make([]core.Value, width)
		for j := 0; j < width && j < len(row); j++ {
			if strings.TrimSpace(row[j]) == "" {
				continue
			}
			values[j] = cell(i, j, row[j])
		}
		t.Append(values)
	}
	return t, nil
}

// findHeaderRow picks, among the first scan rows, the row with the most
// non-empty cells that has at least two cells and some letters. Ties go to
// the earliest row.
func findHeaderRow(rows [][]string, scan int) int {
	limit := len(rows)
	if limit > scan {
		limit = scan
	}

	best, headerIdx := 0, -1
	for i := 0; i < limit; i++ {
		nonEmpty := 0
		hasText := false
		for _, c := range rows[i] {
			trimmed := strings.TrimSpace(c)
			if trimmed == "" {
				continue
			}
			nonEmpty++
			if containsLetters(trimmed) {
				hasText = true
			}
		}
		if nonEmpty >= 2 && hasText && nonEmpty > best {
			best = nonEmpty
			headerIdx = i
		}
	}
	return headerIdx
}

func containsLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func lastNonEmpty(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i
		}
	}
	return -1
}
