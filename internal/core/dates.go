package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Excel serials outside this range are not dates (1 is 1900-01-01, the upper
// bound is 9999-12-31).
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// dateLayouts are tried in order. SEACE exports write day-first dates.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
	"2006.01.02 15:04:05",
	"2006.01.02",
}

// DateStats counts the outcome of a coercion.
type DateStats struct {
	Parsed  int
	Missing int // blank cells plus cells that could not be parsed
	Invalid int // non-blank cells that could not be parsed
}

// CoerceDates replaces every cell of column with a timestamp or the missing
// marker. Row count and order are unchanged.
func CoerceDates(t *Table, column string) (DateStats, error) {
	var stats DateStats

	idx := t.Index(column)
	if idx < 0 {
		return stats, fmt.Errorf("coerce dates: column %q not found", column)
	}

	for _, row := range t.Rows {
		v := row[idx]
		ts, ok := ParseDate(v)
		if ok {
			row[idx] = Timestamp(ts)
			stats.Parsed++
			continue
		}
		if !v.IsMissing() {
			stats.Invalid++
		}
		row[idx] = Missing()
		stats.Missing++
	}
	return stats, nil
}

// ParseDate interprets a cell as a timestamp.
func ParseDate(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindTime:
		return v.Time, true
	case KindNumber:
		return fromSerial(v.Number)
	case KindText:
		return parseDateText(v.Text)
	default:
		return time.Time{}, false
	}
}

func fromSerial(serial float64) (time.Time, bool) {
	if serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, false
	}
	ts, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	// Serial fractions carry float noise; round to the second.
	return ts.Round(time.Second), true
}

func parseDateText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	// Text cells holding a bare serial, as written by some xls exporters.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	return time.Time{}, false
}
