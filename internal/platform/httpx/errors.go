// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors the transport maps onto status codes.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrUnprocessable = errors.New("unprocessable")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail(err, ErrNotFound))
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", detail(err, ErrDuplicate))
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", detail(err, ErrValidation))
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", detail(err, ErrConflict))
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", detail(err, ErrUnprocessable))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Wrap tags err with kind so RespondError picks the matching status.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &tagged{kind: kind, err: err}
}

type tagged struct {
	kind error
	err  error
}

func (t *tagged) Error() string   { return t.err.Error() }
func (t *tagged) Unwrap() []error { return []error{t.kind, t.err} }

// detail hides the bare sentinel text when nothing more specific is known.
func detail(err, sentinel error) string {
	var t *tagged
	if errors.As(err, &t) {
		return t.err.Error()
	}
	if err == sentinel {
		return ""
	}
	return err.Error()
}
