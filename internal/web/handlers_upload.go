package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/seace/internal/core"
)

// handleUpload validates an uploaded workbook and stores it in the session.
// A parse or missing-column rejection clears any previous dataset; other
// failures, such as a busy server, leave it in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	ds, err := s.ingest(w, r)
	if err != nil {
		if core.Halts(err) {
			sess.Clear()
		}
		s.renderPage(w, r, statusFor(err), sess, pageState{err: err})
		return
	}

	sess.SetDataset(ds)
	s.renderPage(w, r, http.StatusOK, sess, pageState{notice: uploadNotice(ds)})
}

// handleValidate is the JSON form of handleUpload.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	ds, err := s.ingest(w, r)
	if err != nil {
		if core.Halts(err) {
			sess.Clear()
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	sess.SetDataset(ds)
	writeJSON(w, http.StatusOK, newValidationResponse(sess, ds))
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) (*core.Dataset, error) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		return nil, err
	}
	ctx := WithRequestMetadata(r.Context(), r)
	return s.service.Ingest(ctx, name, data, r.FormValue("profile"))
}

// ValidationResponse reports an accepted upload.
type ValidationResponse struct {
	SessionID string            `json:"session_id"`
	FileName  string            `json:"file_name"`
	Profile   string            `json:"profile"`
	Rows      int               `json:"rows"`
	Columns   []string          `json:"columns"`
	Required  []string          `json:"required"`
	Renames   []RenameJSON      `json:"renames"`
	Conflicts []ConflictJSON    `json:"conflicts,omitempty"`
	Dates     DateStatsJSON     `json:"dates"`
	Options   FilterOptionsJSON `json:"options"`
}

// RenameJSON is one header rename.
type RenameJSON struct {
	Column int    `json:"column"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ConflictJSON is one header collision.
type ConflictJSON struct {
	Column    int    `json:"column"`
	Source    string `json:"source"`
	Canonical string `json:"canonical"`
	KeptBy    string `json:"kept_by"`
	Renamed   string `json:"renamed"`
}

// DateStatsJSON summarizes date coercion.
type DateStatsJSON struct {
	Column  string `json:"column"`
	Parsed  int    `json:"parsed"`
	Missing int    `json:"missing"`
	Invalid int    `json:"invalid"`
}

// FilterOptionsJSON lists the observed filter choices.
type FilterOptionsJSON struct {
	Entities []string `json:"entities"`
	Objects  []string `json:"objects"`
	MinDate  string   `json:"min_date,omitempty"`
	MaxDate  string   `json:"max_date,omitempty"`
}

func newValidationResponse(sess *core.Session, ds *core.Dataset) ValidationResponse {
	resp := ValidationResponse{
		SessionID: sess.ID,
		FileName:  ds.FileName,
		Profile:   ds.Profile.Name,
		Rows:      ds.Table.Len(),
		Columns:   ds.Table.Columns,
		Required:  core.Reviewable(ds.Table, ds.Profile).Columns,
		Renames:   make([]RenameJSON, 0, len(ds.Report.Headers.Renames)),
		Dates: DateStatsJSON{
			Column:  ds.Profile.Fields.Date,
			Parsed:  ds.Dates.Parsed,
			Missing: ds.Dates.Missing,
			Invalid: ds.Dates.Invalid,
		},
	}
	for _, rn := range ds.Report.Headers.Renames {
		resp.Renames = append(resp.Renames, RenameJSON{Column: rn.Column, From: rn.From, To: rn.To})
	}
	for _, c := range ds.Report.Headers.Conflicts {
		resp.Conflicts = append(resp.Conflicts, ConflictJSON{
			Column:    c.Column,
			Source:    c.Source,
			Canonical: c.Canonical,
			KeptBy:    c.KeptBy,
			Renamed:   c.Renamed,
		})
	}

	opts := ds.Options()
	resp.Options = FilterOptionsJSON{Entities: opts.Entities, Objects: opts.Objects}
	if opts.HasDates {
		resp.Options.MinDate = opts.MinDate.Format(time.RFC3339)
		resp.Options.MaxDate = opts.MaxDate.Format(time.RFC3339)
	}
	return resp
}
