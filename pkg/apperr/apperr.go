// Package apperr defines the error taxonomy shared by the adapters and the
// HTTP layer. Adapters never panic on bad upstream data; they return an
// *Error tagged with one of the kinds below so callers can distinguish
// "can't reach provider" from "provider responded but payload unusable".
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindInvalidInput marks a missing or malformed request field. User-correctable.
	KindInvalidInput Kind = iota
	// KindConfiguration marks a missing server credential. Operator-correctable.
	KindConfiguration
	// KindUpstreamUnavailable marks a transport failure or non-2xx from a collaborator.
	KindUpstreamUnavailable
	// KindMalformedResponse marks a collaborator reply whose payload is unusable.
	// The raw payload is carried for diagnostics.
	KindMalformedResponse
	// KindMethodNotAllowed marks an unsupported HTTP method.
	KindMethodNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConfiguration:
		return "configuration"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindMalformedResponse:
		return "malformed_response"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	}
	return "unknown"
}

var kind2http = map[Kind]int{
	KindInvalidInput:        http.StatusBadRequest,
	KindConfiguration:       http.StatusInternalServerError,
	KindUpstreamUnavailable: http.StatusInternalServerError,
	KindMalformedResponse:   http.StatusInternalServerError,
	KindMethodNotAllowed:    http.StatusMethodNotAllowed,
}

type Error struct {
	Kind    Kind
	Message string
	// Raw holds the collaborator payload for KindMalformedResponse.
	Raw []byte
	err error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// Malformed builds a KindMalformedResponse error carrying the raw payload.
func Malformed(message string, raw []byte) *Error {
	return &Error{Kind: KindMalformedResponse, Message: message, Raw: raw}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus maps the kind to a response status code.
func (e *Error) HTTPStatus() int {
	if c, ok := kind2http[e.Kind]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// KindOf extracts the kind from err, or ok=false when err carries no *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Convert returns err as *Error, wrapping untagged errors as upstream failures.
func Convert(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindUpstreamUnavailable, "upstream failure", err)
}
