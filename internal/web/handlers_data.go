package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/seace/internal/core"
)

// handleDownload streams the filtered workbook as procesos_validado.xlsx.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existingSession(r)
	if !ok || sess.Dataset() == nil {
		respondError(w, r, core.ErrNoDataset, statusFor(core.ErrNoDataset))
		return
	}

	c := parseCriteria(r, sess.Dataset())
	data, err := s.service.Download(WithRequestMetadata(r.Context(), r), sess, c)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", core.ExportContentType)
	w.Header().Set("Content-Disposition", contentDisposition(core.ExportFileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// ProfileJSON describes one header profile.
type ProfileJSON struct {
	Name          string   `json:"name"`
	Label         string   `json:"label"`
	Default       bool     `json:"default"`
	Normalization string   `json:"normalization"`
	Required      []string `json:"required"`
	Entity        string   `json:"entity_field"`
	Object        string   `json:"object_field"`
	Date          string   `json:"date_field"`
	Recipient     string   `json:"recipient"`
}

// handleListProfiles returns every configured profile.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	rules := s.service.Rules()
	out := make([]ProfileJSON, 0, len(rules.Profiles))
	for _, name := range rules.Names() {
		p, _ := rules.Get(name)
		out = append(out, ProfileJSON{
			Name:          p.Name,
			Label:         p.Label,
			Default:       p.Name == rules.DefaultProfile,
			Normalization: string(p.Normalization),
			Required:      p.Required,
			Entity:        p.Fields.Entity,
			Object:        p.Fields.Object,
			Date:          p.Fields.Date,
			Recipient:     string(p.Mail.Recipient),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// TableResponse is a page of the filtered session table.
type TableResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total"`
	Matched int        `json:"matched"`
}

// handleSessionTable returns the session table filtered by the query
// string. limit caps the rows returned; 0 returns every match.
// view=required returns only the validated required columns.
func (s *Server) handleSessionTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existingSession(r)
	if !ok || sess.Dataset() == nil {
		respondError(w, r, core.ErrNoDataset, statusFor(core.ErrNoDataset))
		return
	}
	ds := sess.Dataset()

	filtered := ds.Filter(parseCriteria(r, ds))
	if requiredView(r) {
		filtered = core.Reviewable(filtered, ds.Profile)
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		limit = s.cfg.Upload.PreviewRows
	}
	page := filtered
	if limit > 0 {
		page = filtered.Head(limit)
	}

	writeJSON(w, http.StatusOK, TableResponse{
		Columns: filtered.Columns,
		Rows:    stringRows(page),
		Total:   ds.Table.Len(),
		Matched: filtered.Len(),
	})
}

// handleHealth reports liveness and load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	limiter := s.service.Limiter()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"time":           time.Now().UTC().Format(time.RFC3339),
		"sessions":       s.sessions.Len(),
		"uploads_active": limiter.ActiveCount(),
		"uploads_max":    limiter.MaxConcurrent(),
		"archive":        s.service.ArchiveEnabled(),
		"export_log":     s.exports != nil,
	})
}
