package core

// error_messages.go maps technical errors to Spanish user messages.
//
// # Error Codes Reference
//
// Codes are quoted by users to support staff. They are grouped by category.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: the upload exceeds UPLOAD_MAX_FILE_SIZE
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Unreadable workbook: neither parser could read the upload
//	          Kind: parse
//	FILE003 - Unsupported format: extension is not .xls or .xlsx
//	          Patterns: "unsupported format"
//	FILE004 - No file: the form was submitted without a file
//	          Patterns: "no file provided"
//	FILE005 - Empty file: no header row or no data rows
//	          Patterns: "empty file"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL004 - Missing columns: required canonical fields are absent
//	         Kind: missing_columns (message lists every field)
//	VAL007 - Unknown profile: the selected header profile does not exist
//	         Patterns: "unknown profile"
//
// # Mail Errors (MAIL001-MAIL099)
//
//	MAIL001 - Invalid recipient: the address has no "@"
//	          Kind: invalid_recipient
//	MAIL002 - Delivery failed: SMTP or mail configuration error
//	          Kind: transport (message carries the underlying error)
//	MAIL004 - Already sent: the form was resubmitted
//	          Patterns: "mail already sent"
//
// # Archive Errors (ARC001-ARC099)
//
//	ARC001 - Archive failed: the object store rejected the upload
//	         Kind: transport with Op "archive"
//	ARC002 - Archive disabled: no object store is configured
//	         Patterns: "archive storage is not configured"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - No dataset: nothing validated yet or the session expired
//	         Patterns: "no validated dataset"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy: every parse slot is taken
//	         Patterns: "too many uploads"
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unexpected error. Check the logs for the technical error.
//
// Classified errors (*Error) are mapped by kind first. Everything else is
// matched case-insensitively with strings.Contains; the first pattern wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-facing error information with guidance.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "El archivo supera el tamaño máximo permitido",
			Action:  "Divida el archivo o elimine hojas que no se usen",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "El archivo supera el tamaño máximo permitido",
			Action:  "Divida el archivo o elimine hojas que no se usen",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Formato de archivo no soportado",
			Action:  "Suba un archivo .xls o .xlsx",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No se seleccionó ningún archivo",
			Action:  "Seleccione un archivo Excel para validar",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "El archivo no contiene datos",
			Action:  "Verifique que la primera hoja tenga cabeceras y filas",
			Code:    "FILE005",
		},
	},

	// Validation
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Faltan columnas requeridas",
			Action:  "Revise que el archivo tenga todas las cabeceras del perfil",
			Code:    "VAL004",
		},
	},
	{
		pattern: "unknown profile",
		msg: UserMessage{
			Message: "Perfil de cabeceras desconocido",
			Action:  "Elija uno de los perfiles disponibles",
			Code:    "VAL007",
		},
	},

	// Mail and archive
	{
		pattern: "mail already sent",
		msg: UserMessage{
			Message: "El correo ya fue enviado",
			Action:  "Vuelva a cargar la página para enviar otro correo",
			Code:    "MAIL004",
		},
	},
	{
		pattern: "archive storage is not configured",
		msg: UserMessage{
			Message: "El archivado no está habilitado",
			Action:  "Descargue el archivo o envíelo por correo",
			Code:    "ARC002",
		},
	},

	// Session
	{
		pattern: "no validated dataset",
		msg: UserMessage{
			Message: "No hay un archivo validado en la sesión",
			Action:  "Suba el archivo nuevamente",
			Code:    "SES001",
		},
	},

	// Upload
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "El sistema está procesando otros archivos",
			Action:  "Espere un momento e intente de nuevo",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "La solicitud fue cancelada",
			Action:  "Intente de nuevo",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "La solicitud tardó demasiado",
			Action:  "Intente con un archivo más pequeño o revise su conexión",
			Code:    "UPL005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "La solicitud tardó demasiado",
			Action:  "Intente de nuevo en unos minutos",
			Code:    "UPL005",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Demasiadas solicitudes",
			Action:  "Espere un momento antes de intentar de nuevo",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "Ocurrió un error inesperado",
	Action:  "Intente de nuevo o contacte a soporte",
	Code:    "ERR000",
}

// MapError converts an error to a user message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case MissingColumnsError:
			return UserMessage{
				Message: "Faltan columnas requeridas: " + strings.Join(e.Missing, ", "),
				Action:  "Agregue o renombre esas columnas y vuelva a subir el archivo",
				Code:    "VAL004",
			}
		case InvalidRecipientError:
			return UserMessage{
				Message: "La dirección de correo no es válida",
				Action:  "Ingrese una dirección como usuario@dominio.pe",
				Code:    "MAIL001",
			}
		case TransportError:
			cause := "error desconocido"
			if e.Err != nil {
				cause = e.Err.Error()
			}
			if e.Op == "archive" {
				return UserMessage{
					Message: "No se pudo archivar el archivo: " + cause,
					Action:  "Intente de nuevo o descargue el archivo",
					Code:    "ARC001",
				}
			}
			return UserMessage{
				Message: "No se pudo enviar el correo: " + cause,
				Action:  "Revise la configuración de correo o intente más tarde",
				Code:    "MAIL002",
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if e != nil && e.Kind == ParseError {
		return UserMessage{
			Message: "No se pudo leer el archivo como libro de Excel",
			Action:  "Verifique que el archivo no esté dañado ni protegido con contraseña",
			Code:    "FILE002",
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Código: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Código: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
