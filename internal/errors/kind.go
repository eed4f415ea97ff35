package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags a failure with how callers should treat it.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindUnavailable       Kind = "unavailable"
	KindMalformedResponse Kind = "malformed_response"
	KindMissingCredential Kind = "missing_credential"
	KindInvalidRequest    Kind = "invalid_request"
)

var kinds = map[Kind]struct{}{
	KindUnknown:           {},
	KindPayloadTooLarge:   {},
	KindUnauthorized:      {},
	KindForbidden:         {},
	KindQuotaExceeded:     {},
	KindUnavailable:       {},
	KindMalformedResponse: {},
	KindMissingCredential: {},
	KindInvalidRequest:    {},
}

// ParseKind reports whether s names a known kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := kinds[k]
	return k, ok
}

// Transient reports whether a failure of this kind may succeed when retried
// after a delay. Only overload/unavailability qualifies; quota exhaustion is
// surfaced to the user rather than burning retry budget.
func (k Kind) Transient() bool {
	return k == KindUnavailable
}

// HTTPStatus is the status code used when relaying a failure of this kind to
// an HTTP caller.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnauthorized, KindMissingCredential:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (k Kind) guidance() string {
	switch k {
	case KindPayloadTooLarge:
		return "The submitted content is too large. Upload a smaller file or shorten the text and try again."
	case KindUnauthorized:
		return "The Gemini API key was rejected. Check that GEMINI_API_KEY is set to a valid key."
	case KindForbidden:
		return "The Gemini API key is not allowed to use this model. Check the key's project permissions."
	case KindQuotaExceeded:
		return "The Gemini API quota is exhausted. Wait a while or review the billing settings for this key."
	case KindUnavailable:
		return "The model is temporarily overloaded or unavailable. Please try again shortly."
	case KindMalformedResponse:
		return "The model returned a response in an unexpected format. Please try again."
	case KindMissingCredential:
		return "No Gemini API key is configured. Set GEMINI_API_KEY or send an x-goog-api-key header."
	default:
		return ""
	}
}

// ClassifiedError is a failure tagged with a Kind. It is produced at the
// backend boundary and is either retried (transient kinds) or propagated.
type ClassifiedError struct {
	Kind Kind
	// Status is the upstream HTTP status, 0 when the failure did not come
	// from an HTTP response.
	Status int
	// Message is the upstream or internal detail.
	Message string
	// Action is user-facing context attached by a feature, e.g.
	// "Failed to process resume".
	Action string
	// Final marks a failure whose retry chain already ran to completion
	// elsewhere, e.g. a relayed genrelay instance that spent its budget.
	// A final failure keeps its kind but is never retried again.
	Final bool
	Err   error
}

// New builds a ClassifiedError of the given kind.
func New(kind Kind, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: err.Error(), Err: err}
}

func (e *ClassifiedError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Action != "" {
		msg = e.Action + ": " + msg
	}
	return msg
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient reports whether the failure may be retried.
func (e *ClassifiedError) Transient() bool { return e.Kind.Transient() && !e.Final }

// HTTPStatus returns the status used to relay this failure.
func (e *ClassifiedError) HTTPStatus() int { return e.Kind.HTTPStatus() }

// UserMessage is the human-readable text shown to an end user. Credential
// kinds always carry configuration guidance so they are distinguishable from
// a generic network failure.
func (e *ClassifiedError) UserMessage() string {
	msg := e.Kind.guidance()
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = "The request failed."
	}
	if e.Action != "" {
		msg = e.Action + ". " + msg
	}
	return msg
}

// KindOf returns the kind of err, classifying it if needed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && Classify(err).Transient()
}

// Annotate attaches user-facing context to err without changing its kind.
func Annotate(err error, action string) error {
	if err == nil {
		return nil
	}
	ce := Classify(err)
	out := *ce
	out.Action = action
	out.Err = err
	return &out
}

// As is errors.As specialised to ClassifiedError.
func As(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	ok := errors.As(err, &ce)
	return ce, ok
}
