package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		v      Value
		want   time.Time
		wantOK bool
	}{
		{"day first with time", Text("15/03/2024 10:30"), time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"day first with seconds", Text("15/03/2024 10:30:45"), time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC), true},
		{"day first date only", Text("01/02/2024"), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"iso", Text("2024-03-15"), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"iso with time", Text("2024-03-15 08:00:00"), time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), true},
		{"padded text", Text("  2024-03-15  "), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"excel serial", Number(45366.4375, ""), time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"serial as text", Text("45366"), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"timestamp passes through", Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"garbage", Text("pendiente"), time.Time{}, false},
		{"month out of range", Text("15/13/2024"), time.Time{}, false},
		{"negative serial", Number(-3, ""), time.Time{}, false},
		{"huge serial", Number(9e9, ""), time.Time{}, false},
		{"missing", Missing(), time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.v)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoerceDates(t *testing.T) {
	tbl := NewTable([]string{"fecha", "otro"})
	tbl.Append([]Value{Text("15/03/2024"), Text("a")})
	tbl.Append([]Value{Text("no es fecha"), Text("b")})
	tbl.Append([]Value{Missing(), Text("c")})
	tbl.Append([]Value{Number(45366, ""), Text("d")})

	stats, err := CoerceDates(tbl, "fecha")
	if err != nil {
		t.Fatalf("CoerceDates() error = %v", err)
	}

	if tbl.Len() != 4 {
		t.Fatalf("row count changed: %d", tbl.Len())
	}
	wantKinds := []Kind{KindTime, KindMissing, KindMissing, KindTime}
	for i, want := range wantKinds {
		if got := tbl.Rows[i][0].Kind; got != want {
			t.Errorf("row %d kind = %v, want %v", i, got, want)
		}
	}
	if got := columnStrings(tbl, "otro"); got[0] != "a" || got[3] != "d" {
		t.Errorf("other column changed or reordered: %v", got)
	}
	if stats.Parsed != 2 || stats.Missing != 2 || stats.Invalid != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCoerceDates_UnknownColumn(t *testing.T) {
	if _, err := CoerceDates(NewTable([]string{"a"}), "fecha"); err == nil {
		t.Error("expected error for unknown column")
	}
}
