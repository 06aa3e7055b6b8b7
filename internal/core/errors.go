package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// ParseError means the upload could not be read as a workbook.
	ParseError ErrorKind = "parse"
	// MissingColumnsError means required canonical fields are absent after
	// renaming.
	MissingColumnsError ErrorKind = "missing_columns"
	// InvalidRecipientError means the mail recipient is not a plausible
	// address.
	InvalidRecipientError ErrorKind = "invalid_recipient"
	// TransportError means a delivery collaborator such as SMTP or the object
	// store failed.
	TransportError ErrorKind = "transport"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Op      string
	Missing []string // set for MissingColumnsError, in configuration order
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingColumnsError:
		return fmt.Sprintf("%s: missing required columns: %s", e.Op, strings.Join(e.Missing, ", "))
	default:
		if e.Err == nil {
			return fmt.Sprintf("%s: %s", e.Op, e.Kind)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for conditions outside the four kinds.
var (
	ErrNoFile          = errors.New("no file provided")
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnknownProfile  = errors.New("unknown profile")
	ErrNoDataset       = errors.New("no validated dataset in session")
	ErrAlreadySent     = errors.New("mail already sent for this form")
	ErrArchiveDisabled = errors.New("archive storage is not configured")
)

func parseErr(op string, err error) error {
	return &Error{Kind: ParseError, Op: op, Err: err}
}

func transportErr(op string, err error) error {
	return &Error{Kind: TransportError, Op: op, Err: err}
}

// KindOf returns the kind of a classified error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// MissingFields returns the missing canonical names carried by err, if any.
func MissingFields(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Kind == MissingColumnsError {
		return e.Missing
	}
	return nil
}

// Halts reports whether err stops the pipeline before filtering and export.
// Parse and missing-column failures halt; recipient and transport failures
// only fail the current send.
func Halts(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == ParseError || kind == MissingColumnsError)
}
