package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func render(t *testing.T, d PageData) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Page(d).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestPage(t *testing.T) {
	ds := &DatasetView{
		FileName:       "procesos.xlsx",
		Profile:        "seace-v1",
		Total:          2,
		Matched:        1,
		EntityField:    "nombre entidad",
		Entities:       []Choice{{Value: "MUNI LIMA", Selected: true}, {Value: "MUNI CUSCO"}},
		Required:       []string{"nombre entidad", "moneda"},
		RequiredOnly:   true,
		Columns:        []string{"nombre entidad", "moneda"},
		Rows:           [][]string{{`<script>alert("x")</script>`, "PEN"}},
		ArchiveEnabled: true,
		ArchiveKey:     "2024/03/15/k.xlsx",
		ArchiveURL:     "javascript:alert(1)",
	}

	tests := []struct {
		name    string
		data    PageData
		want    []string
		notWant []string
	}{
		{
			name: "upload form only",
			data: PageData{Profiles: []ProfileOption{{Name: "seace-v1", Label: "v1"}, {Name: "seace-v4", Label: "v4", Selected: true}}, MaxSize: 10 << 20},
			want: []string{
				"<!DOCTYPE html>",
				`<option value="seace-v1">v1</option>`,
				`<option value="seace-v4" selected>v4</option>`,
				"Tamaño máximo: 10 MB",
			},
			notWant: []string{"2. Resultado"},
		},
		{
			name: "error alert",
			data: PageData{Error: &Alert{Message: "Faltan columnas", Code: "VAL004", Details: []string{"moneda"}}},
			want: []string{`role="alert"`, "<strong>Faltan columnas</strong>", "<li>moneda</li>", "Código: VAL004"},
		},
		{
			name: "dataset",
			data: PageData{Dataset: ds},
			want: []string{
				"Columnas validadas:",
				`<option value="MUNI LIMA" selected>MUNI LIMA</option>`,
				`<input type="hidden" name="entity" value="MUNI LIMA">`,
				`value="required" checked`,
				"&lt;script&gt;",
				"1 de 2 filas coinciden",
				"about:invalid#TemplFailedSanitizationURL",
			},
			notWant: []string{"<script>", "javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := render(t, tt.data)
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("output missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(body, w) {
					t.Errorf("output should not contain %q", w)
				}
			}
		})
	}
}
