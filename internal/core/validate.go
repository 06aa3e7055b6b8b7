package core

import "github.com/JonMunkholm/seace/internal/schema"

// Report is the outcome of header mapping and required-field validation.
type Report struct {
	Profile string
	Headers HeaderReport
	Present []string // required fields found, in configuration order
	Missing []string // required fields absent, in configuration order
}

// Valid reports whether every required field is present.
func (r Report) Valid() bool { return len(r.Missing) == 0 }

// Validate checks that every required field of p is a column of t.
// It returns a MissingColumnsError listing all absent fields.
func Validate(t *Table, p *schema.Profile) (Report, error) {
	report := Report{Profile: p.Name}

	for _, name := range p.Required {
		if t.Has(name) {
			report.Present = append(report.Present, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
	}

	if !report.Valid() {
		return report, &Error{Kind: MissingColumnsError, Op: "validate", Missing: report.Missing}
	}
	return report, nil
}

// Reviewable returns the required columns of t in profile order.
func Reviewable(t *Table, p *schema.Profile) *Table {
	return t.Select(p.Required)
}
