package files

import "net/http"

// Kind classifies a gateway error for the HTTP layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindNotFound
	KindTooLarge
)

// Error is a caller-facing failure with a suggested fix.
type Error struct {
	Kind    Kind
	Message string
	Fix     string
}

func (e *Error) Error() string { return e.Message }

// Status maps the error kind to an HTTP status code.
// A missing delete target answers 400, not 404.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}

var (
	ErrMissingParams = &Error{KindValidation, "Key/urlprefix and/or file name is empty.", "Submit a key and/or file name."}
	ErrInvalidKey    = &Error{KindAuth, "Key is invalid.", "Submit a valid key."}
	ErrNotFound      = &Error{KindNotFound, "Cant find to delete", "None"}
	ErrBadSubdir     = &Error{KindValidation, "Subdir is not a public directory.", "Use the subdir from the delete URL."}
	ErrBadFilename   = &Error{KindValidation, "File name is invalid.", "Submit a plain file name without path separators."}
	ErrNoFile        = &Error{KindValidation, "No file submitted.", "Attach a file in a multipart field."}
	ErrBadMultipart  = &Error{KindValidation, "Request body is not valid multipart/form-data.", "Submit the file as multipart/form-data."}
	ErrTooLarge      = &Error{KindTooLarge, "File is too large.", "Submit a smaller file."}
)
