package web

import (
	"net/http"
	"strconv"
	"time"
)

// ExportJSON is one entry of the export log.
type ExportJSON struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Sink      string `json:"sink"`
	FileName  string `json:"file_name"`
	Profile   string `json:"profile"`
	Recipient string `json:"recipient,omitempty"`
	Rows      int    `json:"rows"`
	IPAddress string `json:"ip_address,omitempty"`
	CreatedAt string `json:"created_at"`
}

// handleListExports returns the most recent exports, newest first.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		respondError(w, r, errExportLogOff, http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.exports.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]ExportJSON, len(events))
	for i, ev := range events {
		out[i] = ExportJSON{
			ID:        ev.ID.String(),
			SessionID: ev.SessionID,
			Sink:      ev.Sink,
			FileName:  ev.FileName,
			Profile:   ev.Profile,
			Recipient: ev.Recipient,
			Rows:      ev.Rows,
			IPAddress: ev.IPAddress,
			CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
