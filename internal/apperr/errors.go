// Package apperr carries the error classification shared by the transport
// layer and the stores. Kinds are attached once, where the failure is
// observed; everything above switches on the kind instead of matching
// message text.
package apperr

import "errors"

// Kind classifies a failure.
type Kind string

const (
	// KindNotAuthorized marks a 401 from the backend: the session is not
	// recognised at all.
	KindNotAuthorized Kind = "not_authorized"
	// KindAccessDenied marks a 403: the session is valid but lacks the
	// admin role for the attempted operation.
	KindAccessDenied Kind = "access_denied"
	// KindServerMisconfigured marks a 409: the document server address is
	// missing or wrong on the backend side.
	KindServerMisconfigured Kind = "server_misconfigured"
	// KindRequestTimeout marks a client-side abort of the authorization
	// request.
	KindRequestTimeout Kind = "request_timeout"
	// KindValidation marks invalid local form input. It never leaves the
	// component that produced it.
	KindValidation Kind = "validation"
	// KindUnclassified covers everything else, including transient network
	// failures whose retries were exhausted.
	KindUnclassified Kind = "unclassified"
)

// Error is an error with a classification kind attached.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with the given message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or KindUnclassified when err has
// no classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnclassified
}

// IsAuth reports whether err invalidates the session: not authorized,
// access denied, or a fail-closed request timeout.
func IsAuth(err error) bool {
	switch KindOf(err) {
	case KindNotAuthorized, KindAccessDenied, KindRequestTimeout:
		return true
	}
	return false
}
