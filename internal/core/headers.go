package core

import "github.com/JonMunkholm/seace/internal/schema"

// Rename records one applied header rename.
type Rename struct {
	Column int    // position in the table
	From   string // header as parsed
	To     string // canonical name
}

// Conflict records a column whose canonical name was already taken by a
// column further left. The column keeps a uniquified version of its
// original header.
type Conflict struct {
	Column    int
	Source    string // header as parsed
	Canonical string // name it would have been renamed to
	KeptBy    string // source header of the column that owns the canonical name
	Renamed   string // name it ended up with
}

// HeaderReport describes what MapHeaders did.
type HeaderReport struct {
	Renames   []Rename
	Conflicts []Conflict
}

// MapHeaders renames every column whose normalized header is a key of the
// profile's alias map. Unmatched columns keep their names. Row data is never
// touched. When two columns resolve to the same name the left-most one wins.
func MapHeaders(t *Table, p *schema.Profile) HeaderReport {
	var report HeaderReport

	used := make(map[string]bool, len(t.Columns))
	owner := make(map[string]string, len(t.Columns))
	names := make([]string, len(t.Columns))

	for i, header := range t.Columns {
		canonical, ok := p.Canonical(header)
		if !ok {
			names[i] = uniqueName(header, used)
			owner[names[i]] = header
			continue
		}

		if used[canonical] {
			name := uniqueName(header, used)
			report.Conflicts = append(report.Conflicts, Conflict{
				Column:    i,
				Source:    header,
				Canonical: canonical,
				KeptBy:    owner[canonical],
				Renamed:   name,
			})
			names[i] = name
			owner[name] = header
			continue
		}

		used[canonical] = true
		owner[canonical] = header
		names[i] = canonical
		if canonical != header {
			report.Renames = append(report.Renames, Rename{Column: i, From: header, To: canonical})
		}
	}

	t.Columns = names
	return report
}
