// Package gwerr defines the gateway's error taxonomy.
//
// Every component returns a *gwerr.Error carrying a machine-readable
// Kind, a human-readable message, and an optional details map. The
// HTTP boundary maps Kind to a status code and a JSON envelope; nothing
// below the boundary deals in status codes except the Provider kind,
// which records the upstream status it observed.
package gwerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates error categories.
type Kind int

const (
	// KindInternal is the fallback for unexpected failures.
	KindInternal Kind = iota
	// KindValidation covers bad input, disallowed scopes, and duplicate
	// unique keys.
	KindValidation
	// KindAuthentication covers malformed bearer headers and state
	// mismatches during callback validation.
	KindAuthentication
	// KindNotFound covers unknown ids, states, and external identifiers.
	KindNotFound
	// KindProvider is a non-2xx response from the identity provider.
	KindProvider
	// KindNetwork is a transport failure reaching the provider
	// (timeout, refused connection, DNS). Unlike KindProvider it may be
	// transient and retry-worthy.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuthentication:
		return "authentication_error"
	case KindNotFound:
		return "not_found"
	case KindProvider:
		return "provider_error"
	case KindNetwork:
		return "network_error"
	default:
		return "internal_error"
	}
}

// Error is the gateway's tagged error type.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any

	// ProviderStatus and ProviderBody are set for KindProvider only.
	ProviderStatus int
	ProviderBody   string

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to the status code surfaced to API
// clients. Provider errors surface the upstream status when known.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindProvider:
		if e.ProviderStatus != 0 {
			return e.ProviderStatus
		}
		return http.StatusBadGateway
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error.
func Validation(message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// Authentication builds an authentication error.
func Authentication(message string, details map[string]any) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Details: details}
}

// NotFound builds a not-found error.
func NotFound(message string, details map[string]any) *Error {
	return &Error{Kind: KindNotFound, Message: message, Details: details}
}

// Provider builds an error for a non-2xx provider response. The raw
// response body is preserved for logging and for the details map.
func Provider(status int, body, message string) *Error {
	return &Error{
		Kind:           KindProvider,
		Message:        message,
		Details:        map[string]any{"status_code": status, "response": body},
		ProviderStatus: status,
		ProviderBody:   body,
	}
}

// Network builds an error for a transport failure reaching the provider.
func Network(message string, cause error) *Error {
	e := &Error{Kind: KindNetwork, Message: message, Err: cause}
	if cause != nil {
		e.Details = map[string]any{"error": cause.Error()}
	}
	return e
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf extracts the Kind from err, or KindInternal if err is not a
// gateway error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
