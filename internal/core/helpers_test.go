package core

import (
	"testing"
	"time"

	"github.com/JonMunkholm/seace/internal/schema"
)

const testRules = `
default_profile: test
profiles:
  - name: test
    normalization: folded
    aliases:
      "nombre o sigla de la entidad": entidad
      "entidad": entidad
      "objeto de contratación": objeto
      "fecha y hora de publicación": fecha
      "moneda": moneda
    required: [entidad, objeto, fecha, moneda]
    fields: {entity: entidad, object: objeto, date: fecha}
  - name: fixed
    normalization: folded
    aliases:
      "nombre o sigla de la entidad": entidad
      "objeto de contratación": objeto
      "fecha y hora de publicación": fecha
      "moneda": moneda
    required: [entidad, objeto, fecha, moneda]
    fields: {entity: entidad, object: objeto, date: fecha}
    mail:
      recipient: fixed
      fixed_message: true
      subject: "Asunto fijo"
      body: "Cuerpo fijo"
`

func testRuleSet(t *testing.T) *schema.Rules {
	t.Helper()
	rules, err := schema.Parse([]byte(testRules))
	if err != nil {
		t.Fatalf("parse test rules: %v", err)
	}
	return rules
}

func testProfile(t *testing.T, name string) *schema.Profile {
	t.Helper()
	p, ok := testRuleSet(t).Get(name)
	if !ok {
		t.Fatalf("profile %q not found", name)
	}
	return p
}

// textTable builds a table of text cells; "" becomes missing.
func textTable(columns []string, rows ...[]string) *Table {
	t := NewTable(columns)
	for _, r := range rows {
		cells := make([]Value, len(r))
		for i, s := range r {
			cells[i] = Text(s)
		}
		t.Append(cells)
	}
	return t
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleTable is a validated, date-coerced table for the "test" profile.
func sampleTable() *Table {
	t := NewTable([]string{"entidad", "objeto", "fecha", "moneda", "extra"})
	t.Append([]Value{Text("MUNI LIMA"), Text("Bien"), Timestamp(day(2024, 1, 10).Add(9 * time.Hour)), Text("PEN"), Text("a")})
	t.Append([]Value{Text("MUNI CUSCO"), Text("Servicio"), Timestamp(day(2024, 2, 15)), Text("PEN"), Text("b")})
	t.Append([]Value{Text("MUNI LIMA"), Text("Obra"), Timestamp(day(2024, 3, 20).Add(18 * time.Hour)), Text("USD"), Text("c")})
	t.Append([]Value{Text("MUNI LIMA"), Text("Bien"), Missing(), Text("PEN"), Text("d")})
	t.Append([]Value{Text("MUNI AREQUIPA"), Text("Bien"), Timestamp(day(2024, 2, 1)), Text("PEN"), Text("e")})
	return t
}

func sampleDataset(t *testing.T) *Dataset {
	t.Helper()
	p := testProfile(t, "test")
	table := sampleTable()
	report, err := Validate(table, p)
	if err != nil {
		t.Fatalf("sample table should validate: %v", err)
	}
	return NewDataset("procesos.xlsx", table, p, report, DateStats{})
}

func columnStrings(t *Table, name string) []string {
	col, _ := t.Column(name)
	out := make([]string, len(col))
	for i, v := range col {
		out[i] = v.String()
	}
	return out
}
