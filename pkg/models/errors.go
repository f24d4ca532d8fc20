package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure kinds surfaced by the dispatch core.
// The boundary maps kinds to HTTP status codes; the core never sees HTTP.
type ErrorKind string

const (
	// KindCredentials — a required configuration variable was absent when the
	// adapter was constructed.
	KindCredentials ErrorKind = "credentials_error"

	// KindModelNotFound — registry miss or vendor-side 404.
	KindModelNotFound ErrorKind = "model_not_found"

	// KindConversion — the neutral request could not be translated into the
	// vendor shape (capability gating, malformed attachments, role rules).
	KindConversion ErrorKind = "conversion_error"

	// KindThrottling — the vendor asked us to slow down. The only retryable kind.
	KindThrottling ErrorKind = "throttling_error"

	// KindServiceCall — any other vendor failure: bad status, network error,
	// empty completion, non-terminal completion status.
	KindServiceCall ErrorKind = "service_call_error"

	// KindStructuredResponse — the structured-response engine failed to parse
	// model output into the declared schema.
	KindStructuredResponse ErrorKind = "structured_response_error"

	// KindTimeout — I/O timeout at the transport or an expired deadline.
	KindTimeout ErrorKind = "timeout_error"
)

// Error is the structured error type carried across the dispatch core.
type Error struct {
	Kind    ErrorKind `json:"error"`
	Message string    `json:"message"`

	// RawText and ReturnClass are populated for structured-response failures
	// so callers can inspect the offending model output.
	RawText     string `json:"xml,omitempty"`
	ReturnClass string `json:"return_class,omitempty"`

	Cause error `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error may be retried. Only throttling is.
func (e *Error) Retryable() bool { return e.Kind == KindThrottling }

// NewError creates an Error with the given kind and message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// NewStructuredResponseError builds a parse-failure error that preserves the
// raw model output and the target class name.
func NewStructuredResponseError(message, rawText, returnClass string) *Error {
	return &Error{
		Kind:        KindStructuredResponse,
		Message:     message,
		RawText:     rawText,
		ReturnClass: returnClass,
	}
}

// KindOf extracts the error kind from err. Unknown errors map to
// KindServiceCall so the taxonomy stays closed at the core boundary.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServiceCall
}

// AsError returns err as *Error, wrapping unknown errors as service-call
// failures with the original message preserved.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindServiceCall, Message: err.Error(), Cause: err}
}
