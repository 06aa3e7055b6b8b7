package web

// Shared request helpers used across handlers.

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/seace/internal/core"
)

// dateInputLayout is the value format of <input type="date">.
const dateInputLayout = "2006-01-02"

// session returns the caller's session, creating it and setting the cookie
// when the request carries none or an expired one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *core.Session {
	var id string
	if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
		id = c.Value
	}

	sess, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cfg.Session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.Session.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// existingSession returns the caller's session without creating one.
func (s *Server) existingSession(r *http.Request) (*core.Session, bool) {
	c, err := r.Cookie(s.cfg.Session.CookieName)
	if err != nil {
		return nil, false
	}
	return s.sessions.Get(c.Value)
}

// readUpload reads the "file" part of a multipart form, bounded by the
// configured size limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (name string, data []byte, err error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, fmt.Errorf("%w: limit %d bytes", core.ErrFileTooLarge, maxSize)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return "", nil, core.ErrNoFile
		}
		return "", nil, fmt.Errorf("read upload form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, core.ErrNoFile
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, data, nil
}

// parseCriteria reads entity, object, from and to from the query string
// or form. A missing bound takes the dataset's observed bound; a reversed
// range is swapped.
func parseCriteria(r *http.Request, ds *core.Dataset) core.Criteria {
	_ = r.ParseForm()

	c := core.Criteria{
		Entities: formValues(r, "entity"),
		Objects:  formValues(r, "object"),
	}

	opts := ds.Options()
	from, hasFrom := parseDay(r.Form.Get("from"))
	to, hasTo := parseDay(r.Form.Get("to"))
	if !hasFrom && !hasTo {
		return c
	}
	if !opts.HasDates {
		// No row has a date, so any explicit range selects nothing.
		c.Dates = &core.DateRange{From: from, To: to}
		return c
	}
	if !hasFrom {
		from = opts.MinDate
	}
	if !hasTo {
		to = opts.MaxDate
	}
	if to.Before(from) {
		from, to = to, from
	}
	c.Dates = &core.DateRange{From: from, To: to}
	return c
}

// requiredView reports whether the request asks for only the validated
// required columns.
func requiredView(r *http.Request) bool {
	return r.FormValue("view") == "required"
}

// formValues returns the non-blank values of a repeated field.
func formValues(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.Form[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse(dateInputLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// contentDisposition names the attachment of a download.
func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
