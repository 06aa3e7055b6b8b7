package spreadsheet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/schema"
)

// buildXLSX writes rows to the first sheet of a new workbook.
func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestReadXLSX_HeaderDetectionAndTypes(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Reporte de procesos SEACE"},
		{},
		{"Nomenclatura", "Moneda", "VR / VE", "", "Nomenclatura"},
		{"AS-001", "PEN", 1500.5, nil, "dup"},
		{},
		{"00123", "USD", 20, nil, nil},
	})

	var r Reader
	tbl, err := r.Parse("procesos.xlsx", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantCols := "Nomenclatura|Moneda|VR / VE|columna 4|Nomenclatura.1"
	if got := strings.Join(tbl.Columns, "|"); got != wantCols {
		t.Errorf("Columns = %s, want %s", got, wantCols)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (blank rows skipped)", tbl.Len())
	}

	amount := tbl.Rows[0][2]
	if amount.Kind != core.KindNumber || amount.Number != 1500.5 {
		t.Errorf("amount = %+v, want number 1500.5", amount)
	}
	code := tbl.Rows[1][0]
	if code.Kind != core.KindText || code.Text != "00123" {
		t.Errorf("code = %+v, want text 00123", code)
	}
	if !tbl.Rows[0][3].IsMissing() || !tbl.Rows[1][4].IsMissing() {
		t.Errorf("empty cells = %+v %+v, want missing", tbl.Rows[0][3], tbl.Rows[1][4])
	}
}

// testdata/procesos.xls is a BIFF8 export: a title in row 1, an absent
// row 2, the seace-v1 headers in row 3 and three processes, the last one
// without a publication date.
func TestReadXLS_SeaceExport(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "procesos.xls"))
	if err != nil {
		t.Fatal(err)
	}

	var r Reader
	tbl, err := r.Parse("procesos.xls", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantCols := []string{
		"Nombre o Sigla de la Entidad",
		"Fecha y Hora de Publicacion",
		"Nomenclatura",
		"Objeto de Contratación",
		"Descripción de Objeto",
		"VR / VE / Cuantía de la contratación",
		"Moneda",
	}
	if got := strings.Join(tbl.Columns, "|"); got != strings.Join(wantCols, "|") {
		t.Fatalf("Columns = %s", got)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}

	tests := []struct {
		row, col int
		kind     core.Kind
		text     string
		number   float64
	}{
		{row: 0, col: 0, kind: core.KindText, text: "MUNI LIMA"},
		{row: 0, col: 4, kind: core.KindText, text: "Adquisición de laptops"},
		{row: 0, col: 5, kind: core.KindNumber, number: 1500.5},
		{row: 1, col: 5, kind: core.KindNumber, number: 800},
		{row: 1, col: 2, kind: core.KindText, text: "AS-002-2024"},
		{row: 2, col: 1, kind: core.KindMissing},
	}
	for _, tt := range tests {
		v := tbl.Rows[tt.row][tt.col]
		if v.Kind != tt.kind {
			t.Errorf("cell (%d,%d) kind = %v, want %v", tt.row, tt.col, v.Kind, tt.kind)
			continue
		}
		if (tt.kind == core.KindText && v.Text != tt.text) || (tt.kind == core.KindNumber && v.Number != tt.number) {
			t.Errorf("cell (%d,%d) = %+v", tt.row, tt.col, v)
		}
	}

	rules, err := schema.Default()
	if err != nil {
		t.Fatal(err)
	}
	p, ok := rules.Get("seace-v1")
	if !ok {
		t.Fatal("seace-v1 not found")
	}
	if got := len(core.MapHeaders(tbl, p).Renames); got != len(wantCols) {
		t.Errorf("renames = %d, want %d", got, len(wantCols))
	}
	if _, err := core.Validate(tbl, p); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	stats, err := core.CoerceDates(tbl, p.Fields.Date)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Parsed != 2 || stats.Invalid != 0 {
		t.Errorf("dates = %+v, want 2 parsed", stats)
	}
}

func TestParse_EmptyWorkbook(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{{"solo un título"}})

	var r Reader
	_, err := r.Parse("vacio.xlsx", data)
	if !errors.Is(err, core.ErrEmptyFile) {
		t.Errorf("err = %v, want ErrEmptyFile", err)
	}
}

func TestParse_UnsupportedExtension(t *testing.T) {
	var r Reader
	for _, name := range []string{"procesos.csv", "procesos", "procesos.ods"} {
		if _, err := r.Parse(name, []byte("a,b\n1,2\n")); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: err = %v, want ErrUnsupportedFormat", name, err)
		}
	}
}

func TestParse_CorruptInput(t *testing.T) {
	var r Reader
	for _, name := range []string{"roto.xlsx", "roto.xls"} {
		_, err := r.Parse(name, []byte("this is not a workbook"))
		if err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParse_FallsBackToOtherFormat(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Nomenclatura", "Moneda"},
		{"AS-1", "PEN"},
	})

	var r Reader
	tbl, err := r.Parse("mal_nombrado.xls", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tbl.Len() != 1 || tbl.Columns[1] != "Moneda" {
		t.Errorf("table = %+v", tbl)
	}
}

func TestXLSValue(t *testing.T) {
	tests := []struct {
		in       string
		wantKind core.Kind
	}{
		{"", core.KindMissing},
		{"  ", core.KindMissing},
		{"1500", core.KindNumber},
		{"1500.25", core.KindNumber},
		{"-3", core.KindNumber},
		{"00123", core.KindText},
		{"1e3", core.KindText},
		{"1.50", core.KindText},
		{"PEN", core.KindText},
	}

	for _, tt := range tests {
		if got := xlsValue(tt.in); got.Kind != tt.wantKind {
			t.Errorf("xlsValue(%q).Kind = %v, want %v", tt.in, got.Kind, tt.wantKind)
		}
	}
}

func TestFindHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want int
	}{
		{"first row", [][]string{{"a", "b"}, {"1", "2"}}, 0},
		{"after title", [][]string{{"Título"}, {"", ""}, {"a", "b", "c"}, {"1", "2", "3"}}, 2},
		{"numbers only", [][]string{{"1", "2"}, {"3", "4"}}, -1},
		{"tie goes to earliest", [][]string{{"a", "b"}, {"c", "d"}}, 0},
		{"empty", nil, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findHeaderRow(tt.rows, DefaultHeaderScanRows); got != tt.want {
				t.Errorf("findHeaderRow() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeThenParse_RoundTrip(t *testing.T) {
	published := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	in := core.NewTable([]string{"nomenclatura", "vr/ve", "fecha de publicación", "observación"})
	in.Append([]core.Value{core.Text("AS-001"), core.Number(1500.5, ""), core.Timestamp(published), core.Missing()})
	in.Append([]core.Value{core.Text("00123"), core.Number(20, ""), core.Missing(), core.Text("urgente")})

	data, err := EncodeXLSX(in)
	if err != nil {
		t.Fatalf("EncodeXLSX() error = %v", err)
	}

	var r Reader
	out, err := r.Parse(core.ExportFileName, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := core.CoerceDates(out, "fecha de publicación"); err != nil {
		t.Fatal(err)
	}

	if strings.Join(out.Columns, "|") != strings.Join(in.Columns, "|") {
		t.Fatalf("Columns = %v, want %v", out.Columns, in.Columns)
	}
	if out.Len() != in.Len() {
		t.Fatalf("Len = %d, want %d", out.Len(), in.Len())
	}

	for i := range in.Rows {
		for j := range in.Rows[i] {
			want, got := in.Rows[i][j], out.Rows[i][j]
			if want.Kind != got.Kind {
				t.Errorf("cell %d,%d kind = %v, want %v", i, j, got.Kind, want.Kind)
				continue
			}
			switch want.Kind {
			case core.KindText:
				if got.Text != want.Text {
					t.Errorf("cell %d,%d = %q, want %q", i, j, got.Text, want.Text)
				}
			case core.KindNumber:
				if got.Number != want.Number {
					t.Errorf("cell %d,%d = %v, want %v", i, j, got.Number, want.Number)
				}
			case core.KindTime:
				if d := got.Time.Sub(want.Time); d > time.Second || d < -time.Second {
					t.Errorf("cell %d,%d = %v, want %v", i, j, got.Time, want.Time)
				}
			}
		}
	}
}

func TestWriter_SheetName(t *testing.T) {
	tbl := core.NewTable([]string{"a", "b"})
	data, err := Writer{SheetName: "Validado"}.Encode(tbl)
	if err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetName(0); got != "Validado" {
		t.Errorf("sheet = %q, want Validado", got)
	}
}
