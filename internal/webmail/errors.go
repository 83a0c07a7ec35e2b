package webmail

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a webmail protocol failure. Transport-level failures
// (DNS, resets, timeouts) are never wrapped into an Error; they propagate
// from the HTTP client as-is.
type ErrorKind int

const (
	// KindGeneric covers any protocol violation that has no more specific
	// classification: wrong content type, missing field, unexpected success
	// marker.
	KindGeneric ErrorKind = iota

	// KindCSRFToken means the token page was unreachable or carried no
	// csrf-token meta tag.
	KindCSRFToken

	// KindLogin means the login call failed for a reason other than bad
	// credentials: malformed response, non-200 status, or an unrecognized
	// server-side exception.
	KindLogin

	// KindAuthenticationFailed means the server explicitly rejected the
	// credentials. It is a specialization of KindLogin.
	KindAuthenticationFailed

	// KindLoginRequired means a mutating call was rejected because the
	// session is no longer authenticated; the caller must log in again.
	KindLoginRequired
)

// String returns a short tag for the kind, used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindCSRFToken:
		return "csrf_token"
	case KindLogin:
		return "login"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindLoginRequired:
		return "login_required"
	default:
		return "generic"
	}
}

// Error is a classified webmail failure with the server-provided or
// client-derived detail message.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("webmail: %s: %s", e.Kind, e.Detail)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// kindOf extracts the ErrorKind from err, or KindGeneric, false if err is
// not a classified webmail error.
func kindOf(err error) (ErrorKind, bool) {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind, true
	}
	return KindGeneric, false
}

// IsAuthenticationFailed reports whether err is the server's explicit
// bad-credentials rejection.
func IsAuthenticationFailed(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindAuthenticationFailed
}

// IsLoginFailure reports whether err came from a failed login call,
// including the bad-credentials specialization.
func IsLoginFailure(err error) bool {
	kind, ok := kindOf(err)
	return ok && (kind == KindLogin || kind == KindAuthenticationFailed)
}

// IsLoginRequired reports whether err signals an expired or missing
// authenticated session.
func IsLoginRequired(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindLoginRequired
}
