package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/schema"
	"github.com/JonMunkholm/seace/internal/web/templates"
)

// pageState is what a handler adds to the page beyond the session.
type pageState struct {
	err      error
	notice   string
	criteria *core.Criteria
	form     *core.MailRequest // resubmitted mail form values
	archived *core.ArchiveResult
	// requiredOnly limits the preview to the validated required columns.
	requiredOnly bool
}

// handleIndex renders the page, applying the filters in the query string.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	var st pageState
	if ds := sess.Dataset(); ds != nil {
		c := parseCriteria(r, ds)
		st.criteria = &c
		st.requiredOnly = requiredView(r)
	}
	s.renderPage(w, r, http.StatusOK, sess, st)
}

// handleReset drops the session's dataset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Clear()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// renderPage renders the full page for sess.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, sess *core.Session, st pageState) {
	data := templates.PageData{
		Profiles: s.profileOptions(sess),
		Notice:   st.notice,
		MaxSize:  s.cfg.Upload.MaxFileSize,
	}

	if st.err != nil {
		msg := core.MapError(st.err)
		slog.Warn("request failed",
			"path", r.URL.Path,
			"status", status,
			"code", msg.Code,
			"error", st.err,
		)
		data.Error = templates.NewAlert(msg, core.MissingFields(st.err)...)
	}

	if ds := sess.Dataset(); ds != nil {
		c := ds.DefaultCriteria()
		if st.criteria != nil {
			c = *st.criteria
		}
		data.Dataset = s.datasetView(ds, c, sess.Mail(), st)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Page(data).Render(r.Context(), w); err != nil {
		slog.Error("render page", "error", err)
	}
}

func (s *Server) profileOptions(sess *core.Session) []templates.ProfileOption {
	rules := s.service.Rules()
	selected := rules.DefaultProfile
	if ds := sess.Dataset(); ds != nil {
		selected = ds.Profile.Name
	}

	var opts []templates.ProfileOption
	for _, name := range rules.Names() {
		p, _ := rules.Get(name)
		label := p.Label
		if label == "" {
			label = p.Name
		}
		opts = append(opts, templates.ProfileOption{Name: name, Label: label, Selected: name == selected})
	}
	return opts
}

func (s *Server) datasetView(ds *core.Dataset, c core.Criteria, mail core.MailState, st pageState) *templates.DatasetView {
	filtered := ds.Filter(c)
	reviewable := core.Reviewable(filtered, ds.Profile)
	shown := filtered
	if st.requiredOnly {
		shown = reviewable
	}
	head := shown.Head(s.cfg.Upload.PreviewRows)
	opts := ds.Options()
	p := ds.Profile

	v := &templates.DatasetView{
		FileName:    ds.FileName,
		Profile:     p.Name,
		Total:       ds.Table.Len(),
		Matched:     filtered.Len(),
		Renames:     ds.Report.Headers.Renames,
		Conflicts:   ds.Report.Headers.Conflicts,
		Dates:       ds.Dates,
		EntityField: p.Fields.Entity,
		ObjectField: p.Fields.Object,
		DateField:   p.Fields.Date,
		Entities:    choices(opts.Entities, c.Entities),
		Objects:     choices(opts.Objects, c.Objects),
		HasDates:    opts.HasDates,

		Required:     reviewable.Columns,
		RequiredOnly: st.requiredOnly,
		Columns:      shown.Columns,
		Rows:         stringRows(head),
		Truncated:    head.Len() < shown.Len(),

		ArchiveEnabled: s.service.ArchiveEnabled(),
	}

	if opts.HasDates {
		v.MinDate = opts.MinDate.Format(dateInputLayout)
		v.MaxDate = opts.MaxDate.Format(dateInputLayout)
		v.From, v.To = v.MinDate, v.MaxDate
		if c.Dates != nil {
			v.From = c.Dates.From.Format(dateInputLayout)
			v.To = c.Dates.To.Format(dateInputLayout)
		}
	}

	v.Mail = templates.MailView{
		Token:         mail.Token(),
		FormRecipient: p.Mail.Recipient != schema.RecipientFixed,
		FixedMessage:  p.Mail.FixedMessage,
		Subject:       p.Mail.Subject,
		Body:          p.Mail.Body,
		Sent:          mail.Sent,
		SentTo:        mail.SentTo,
	}
	if mail.Sent {
		v.Mail.SentAt = mail.SentAt.Format(core.DisplayTimeLayout)
	}
	if f := st.form; f != nil {
		v.Mail.To = f.To
		if !p.Mail.FixedMessage {
			if f.Subject != "" {
				v.Mail.Subject = f.Subject
			}
			if f.Body != "" {
				v.Mail.Body = f.Body
			}
		}
	}

	if a := st.archived; a != nil {
		v.ArchiveKey = a.Key
		v.ArchiveURL = a.URL
	}
	return v
}

// choices marks the chosen values; an empty choice selects everything.
func choices(observed, chosen []string) []templates.Choice {
	picked := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		picked[c] = true
	}
	out := make([]templates.Choice, len(observed))
	for i, v := range observed {
		out[i] = templates.Choice{Value: v, Selected: len(chosen) == 0 || picked[v]}
	}
	return out
}

func stringRows(t *core.Table) [][]string {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		rows[i] = cells
	}
	return rows
}

func mailNotice(res core.MailResult) string {
	return fmt.Sprintf("Correo enviado a %s con %d filas.", res.To, res.Rows)
}

func uploadNotice(ds *core.Dataset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Archivo validado: %d filas", ds.Table.Len())
	if n := len(ds.Report.Headers.Renames); n > 0 {
		fmt.Fprintf(&b, ", %d columnas renombradas", n)
	}
	b.WriteString(".")
	return b.String()
}
