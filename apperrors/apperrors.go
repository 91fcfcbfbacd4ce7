// Package apperrors holds the error taxonomy shared by every layer and the
// mapping from those errors to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuth        Kind = "auth"
	KindInput       Kind = "input"
	KindRecognition Kind = "recognition"
	KindUpstream    Kind = "upstream"
	KindParse       Kind = "parse"
)

var (
	ErrUnauthenticated  = Auth("Not authenticated", nil)
	ErrNoRefreshToken   = Auth("No refresh token available", nil)
	ErrNoTracks         = Input("No tracks found", nil)
	ErrNoTracksSelected = Input("No tracks selected", nil)
	ErrInvalidFile      = Input("Invalid file", nil)
)

// Error carries a Kind and the HTTP status it should surface as.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind and Message so sentinels survive re-wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func Auth(message string, err error) *Error {
	return &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: message, Err: err}
}

func Input(message string, err error) *Error {
	return &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: message, Err: err}
}

func Parse(message string, err error) *Error {
	return &Error{Kind: KindParse, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// Recognition builds an OCR failure. A zero status falls back to 500.
func Recognition(status int, message string, err error) *Error {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: KindRecognition, Status: status, Message: message, Err: err}
}

// Upstream builds a provider failure. A 401 from the provider means the
// session is unusable, so it becomes an auth error instead.
func Upstream(status int, message string, err error) *Error {
	if status == http.StatusUnauthorized {
		return Auth(message, err)
	}
	if status < 400 {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindUpstream, Status: status, Message: message, Err: err}
}

// StatusCode maps any error to the status a handler should respond with.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Message is the client-facing text for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
