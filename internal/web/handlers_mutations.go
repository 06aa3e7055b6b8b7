package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/seace/internal/core"
)

// handleMail sends the filtered workbook. The form carries a one-time
// token; a resubmitted form is rejected instead of mailing twice.
func (s *Server) handleMail(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	ds := sess.Dataset()
	if ds == nil {
		s.renderPage(w, r, statusFor(core.ErrNoDataset), sess, pageState{err: core.ErrNoDataset})
		return
	}

	c := parseCriteria(r, ds)
	req := core.MailRequest{
		Token:    r.FormValue("token"),
		To:       r.FormValue("to"),
		Subject:  r.FormValue("subject"),
		Body:     r.FormValue("body"),
		Criteria: c,
	}

	res, err := s.service.SendMail(WithRequestMetadata(r.Context(), r), sess, req)
	if err != nil {
		s.renderPage(w, r, statusFor(err), sess, pageState{err: err, criteria: &c, form: &req})
		return
	}
	s.renderPage(w, r, http.StatusOK, sess, pageState{notice: mailNotice(res), criteria: &c})
}

// handleArchive stores the filtered workbook in the archive bucket.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	ds := sess.Dataset()
	if ds == nil {
		s.renderPage(w, r, statusFor(core.ErrNoDataset), sess, pageState{err: core.ErrNoDataset})
		return
	}

	c := parseCriteria(r, ds)
	res, err := s.service.Archive(WithRequestMetadata(r.Context(), r), sess, c)
	if err != nil {
		s.renderPage(w, r, statusFor(err), sess, pageState{err: err, criteria: &c})
		return
	}

	s.renderPage(w, r, http.StatusOK, sess, pageState{
		notice:   fmt.Sprintf("Archivo guardado con %d filas.", res.Rows),
		criteria: &c,
		archived: &res,
	})
}
