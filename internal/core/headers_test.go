package core

import (
	"strings"
	"testing"

	"github.com/JonMunkholm/seace/internal/schema"
)

func TestMapHeaders_RenamesMatchesOnly(t *testing.T) {
	p := testProfile(t, "test")
	tbl := textTable(
		[]string{"Nombre o Sigla de la Entidad", " Objeto de Contratación ", "Observaciones", "MONEDA"},
		[]string{"MUNI", "Bien", "nota", "PEN"},
	)
	before := tbl.Clone().Rows

	report := MapHeaders(tbl, p)

	want := "entidad,objeto,Observaciones,moneda"
	if got := strings.Join(tbl.Columns, ","); got != want {
		t.Errorf("Columns = %s, want %s", got, want)
	}
	if len(report.Renames) != 3 {
		t.Errorf("Renames = %+v, want 3 entries", report.Renames)
	}
	if len(report.Conflicts) != 0 {
		t.Errorf("unexpected conflicts: %+v", report.Conflicts)
	}
	for i := range before {
		for j := range before[i] {
			if before[i][j] != tbl.Rows[i][j] {
				t.Errorf("row data changed at %d,%d", i, j)
			}
		}
	}
}

func TestMapHeaders_FirstMatchWins(t *testing.T) {
	p := testProfile(t, "test")
	tbl := textTable(
		[]string{"Entidad", "Nombre o Sigla de la Entidad", "Moneda"},
		[]string{"A", "B", "PEN"},
	)

	report := MapHeaders(tbl, p)

	if got := strings.Join(tbl.Columns, ","); got != "entidad,Nombre o Sigla de la Entidad,moneda" {
		t.Errorf("Columns = %s", got)
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("Conflicts = %+v, want one", report.Conflicts)
	}
	c := report.Conflicts[0]
	if c.Column != 1 || c.Canonical != "entidad" || c.KeptBy != "Entidad" {
		t.Errorf("conflict = %+v", c)
	}
	if v, _ := tbl.Column("entidad"); v[0].String() != "A" {
		t.Errorf("left-most column should own the canonical name, got %q", v[0].String())
	}
}

func TestMapHeaders_NamesStayUnique(t *testing.T) {
	p := testProfile(t, "test")
	tbl := textTable([]string{"moneda", "MONEDA", "Moneda"}, []string{"1", "2", "3"})

	report := MapHeaders(tbl, p)

	seen := map[string]bool{}
	for _, c := range tbl.Columns {
		if seen[c] {
			t.Fatalf("duplicate column %q in %v", c, tbl.Columns)
		}
		seen[c] = true
	}
	if len(report.Conflicts) != 2 {
		t.Errorf("Conflicts = %d, want 2", len(report.Conflicts))
	}
}

func TestMapHeaders_VerbatimIsExact(t *testing.T) {
	rules, err := schema.Default()
	if err != nil {
		t.Fatal(err)
	}
	v2, _ := rules.Get("seace-v2")

	tbl := textTable([]string{"nomenclatura", "Nomenclatura "}, []string{"x", "y"})
	report := MapHeaders(tbl, v2)

	if len(report.Renames) != 0 {
		t.Errorf("verbatim profile renamed inexact headers: %+v", report.Renames)
	}
}
