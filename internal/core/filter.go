package core

import (
	"sort"
	"time"

	"github.com/JonMunkholm/seace/internal/schema"
)

// DateRange is a closed interval compared at day granularity: To includes
// its whole day.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Criteria selects rows of a Dataset. Empty slices and a nil range select
// everything.
type Criteria struct {
	Entities []string
	Objects  []string
	Dates    *DateRange
}

// Options are the distinct values observed in a dataset, offered as filter
// choices.
type Options struct {
	Entities []string
	Objects  []string
	HasDates bool
	MinDate  time.Time
	MaxDate  time.Time
}

// Dataset is a validated table bound to the profile that accepted it.
type Dataset struct {
	FileName string
	Table    *Table
	Profile  *schema.Profile
	Report   Report
	Dates    DateStats

	options Options
}

// NewDataset computes the filter options of a validated table.
func NewDataset(fileName string, t *Table, p *schema.Profile, report Report, dates DateStats) *Dataset {
	d := &Dataset{
		FileName: fileName,
		Table:    t,
		Profile:  p,
		Report:   report,
		Dates:    dates,
	}
	d.options = Options{
		Entities: distinct(t, p.Fields.Entity),
		Objects:  distinct(t, p.Fields.Object),
	}

	if col, ok := t.Column(p.Fields.Date); ok {
		for _, v := range col {
			if v.Kind != KindTime {
				continue
			}
			if !d.options.HasDates || v.Time.Before(d.options.MinDate) {
				d.options.MinDate = v.Time
			}
			if !d.options.HasDates || v.Time.After(d.options.MaxDate) {
				d.options.MaxDate = v.Time
			}
			d.options.HasDates = true
		}
	}
	return d
}

// Options returns the observed filter choices.
func (d *Dataset) Options() Options { return d.options }

// DefaultCriteria selects every observed value and the full observed date
// range. Filtering with it returns the whole table.
func (d *Dataset) DefaultCriteria() Criteria {
	c := Criteria{
		Entities: append([]string(nil), d.options.Entities...),
		Objects:  append([]string(nil), d.options.Objects...),
	}
	if d.options.HasDates {
		c.Dates = &DateRange{From: d.options.MinDate, To: d.options.MaxDate}
	}
	return c
}

// Filter returns the rows matching c in their original order. All columns
// are kept.
func (d *Dataset) Filter(c Criteria) *Table {
	t := d.Table
	entities := d.selection(c.Entities, d.options.Entities)
	objects := d.selection(c.Objects, d.options.Objects)
	from, to, byDate := d.dayBounds(c.Dates)

	if entities == nil && objects == nil && !byDate {
		return &Table{Columns: t.Columns, Rows: t.Rows}
	}

	entityIdx := t.Index(d.Profile.Fields.Entity)
	objectIdx := t.Index(d.Profile.Fields.Object)
	dateIdx := t.Index(d.Profile.Fields.Date)

	out := &Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if entities != nil && !entities[cell(row, entityIdx).String()] {
			continue
		}
		if objects != nil && !objects[cell(row, objectIdx).String()] {
			continue
		}
		if byDate {
			v := cell(row, dateIdx)
			if v.Kind != KindTime {
				continue
			}
			day := dayOf(v.Time)
			if day.Before(from) || day.After(to) {
				continue
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// selection returns the membership set for a criterion, or nil when chosen
// selects nothing or covers every observed value. A non-empty choice over a
// column with no observed values still selects, and matches no row.
func (d *Dataset) selection(chosen, observed []string) map[string]bool {
	if len(chosen) == 0 {
		return nil
	}
	set := make(map[string]bool, len(chosen))
	for _, v := range chosen {
		set[v] = true
	}
	if len(observed) == 0 {
		return set
	}
	for _, v := range observed {
		if !set[v] {
			return set
		}
	}
	return nil
}

// dayBounds returns the day interval of r and whether it restricts rows.
// Without observed dates any explicit range restricts, so no row passes.
func (d *Dataset) dayBounds(r *DateRange) (from, to time.Time, active bool) {
	if r == nil {
		return time.Time{}, time.Time{}, false
	}
	from, to = dayOf(r.From), dayOf(r.To)
	if !d.options.HasDates {
		return from, to, true
	}
	if !from.After(dayOf(d.options.MinDate)) && !to.Before(dayOf(d.options.MaxDate)) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// cell returns row[i], or a missing value when the column is absent.
func cell(row []Value, i int) Value {
	if i < 0 || i >= len(row) {
		return Value{}
	}
	return row[i]
}

func dayOf(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func distinct(t *Table, column string) []string {
	col, ok := t.Column(column)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, v := range col {
		if v.IsMissing() {
			continue
		}
		s := v.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
