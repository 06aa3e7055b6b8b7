package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"file too large", fmt.Errorf("%w: 30MB", ErrFileTooLarge), "FILE001"},
		{"body too large", errors.New("http: request body too large"), "FILE001"},
		{"parse error falls back to unreadable", parseErr("parse x.xlsx", errors.New("zip: not a valid zip file")), "FILE002"},
		{"unsupported format wins over parse kind", parseErr("parse x.csv", errors.New("unsupported format: .csv")), "FILE003"},
		{"no file", ErrNoFile, "FILE004"},
		{"empty workbook", parseErr("parse x.xlsx", ErrEmptyFile), "FILE005"},
		{"missing columns", &Error{Kind: MissingColumnsError, Op: "validate", Missing: []string{"moneda"}}, "VAL004"},
		{"unknown profile", fmt.Errorf("%w: v9", ErrUnknownProfile), "VAL007"},
		{"invalid recipient", &Error{Kind: InvalidRecipientError, Op: "send mail"}, "MAIL001"},
		{"transport", transportErr("send mail", errors.New("dial tcp: connection refused")), "MAIL002"},
		{"already sent", ErrAlreadySent, "MAIL004"},
		{"archive transport", transportErr("archive", errors.New("access denied")), "ARC001"},
		{"archive disabled", ErrArchiveDisabled, "ARC002"},
		{"no dataset", ErrNoDataset, "SES001"},
		{"busy", ErrTooManyUploads, "UPL002"},
		{"deadline", errors.New("context deadline exceeded"), "UPL005"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"case insensitive", errors.New("FILE TOO LARGE"), "FILE001"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_ListsMissingFields(t *testing.T) {
	err := &Error{Kind: MissingColumnsError, Op: "validate", Missing: []string{"nombre entidad", "moneda"}}
	msg := MapError(fmt.Errorf("upload: %w", err))

	if !strings.Contains(msg.Message, "nombre entidad, moneda") {
		t.Errorf("Message = %q, want the missing fields listed", msg.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrNoFile)
	want := "No se seleccionó ningún archivo (Código: FILE004). Seleccione un archivo Excel para validar"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("nil error should format as empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil is not user facing")
	}
	if !IsUserFacing(ErrNoDataset) {
		t.Error("known error should be user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) should be nil")
	}

	tech := fmt.Errorf("upload: %w", ErrTooManyUploads)
	ue := NewUserError(tech)
	if ue.Error() != "El sistema está procesando otros archivos" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, ErrTooManyUploads) {
		t.Error("Unwrap should expose the technical error")
	}
}
