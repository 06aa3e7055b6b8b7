package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, then
// mapped through core.MapError so the client only sees the Spanish message,
// the suggested action and the support code. API routes get JSON; pages get
// an HTML alert.

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/spreadsheet"
	"github.com/JonMunkholm/seace/internal/web/templates"
)

var (
	errRateLimited  = errors.New("rate limit exceeded")
	errExportLogOff = errors.New("export log is not configured")
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

// respondError logs err and writes the mapped message in the format the
// client expects.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if wantsJSON(r) {
		writeJSON(w, statusCode, ErrorResponse{
			Error:   err.Error(),
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
			Missing: core.MissingFields(err),
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	page := templates.Layout("Validador de procesos SEACE",
		templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code))
	if err := page.Render(r.Context(), w); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// statusFor picks the HTTP status of a pipeline error.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, core.ErrArchiveDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrAlreadySent), errors.Is(err, core.ErrNoDataset):
		return http.StatusConflict
	case errors.Is(err, core.ErrEmptyFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoFile), errors.Is(err, core.ErrUnknownProfile):
		return http.StatusBadRequest
	}

	switch kind, _ := core.KindOf(err); kind {
	case core.MissingColumnsError:
		return http.StatusUnprocessableEntity
	case core.ParseError, core.InvalidRecipientError:
		return http.StatusBadRequest
	case core.TransportError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
