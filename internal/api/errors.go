// Package api is the M2M JSON client: session handling, the request transport
// and typed wrappers for the inventory and fulfillment endpoints.
package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession is returned when an authenticated endpoint is called before login.
var ErrNoSession = errors.New("no M2M session (log in first)")

// ErrorKind classifies a failed M2M call.
type ErrorKind int

const (
	// KindAuthError - HTTP 401/403 or an AUTH_* service error code
	KindAuthError ErrorKind = iota + 1
	// KindNotFound - HTTP 404 or a *_NOT_FOUND service error code
	KindNotFound
	// KindBadRequest - HTTP 400 or another 4xx status
	KindBadRequest
	// KindServerError - HTTP 5xx after transport retries, or an undecodable response
	KindServerError
	// KindServiceError - a 2xx response whose envelope carries an errorCode
	KindServiceError
	// KindNetworkError - the request never produced a response
	KindNetworkError
)

// String returns the kind name used in logs and CLI output.
func (k ErrorKind) String() string {
	switch k {
	case KindAuthError:
		return "AuthError"
	case KindNotFound:
		return "NotFound"
	case KindBadRequest:
		return "BadRequest"
	case KindServerError:
		return "ServerError"
	case KindServiceError:
		return "ServiceError"
	case KindNetworkError:
		return "NetworkError"
	default:
		return "Unknown"
	}
}

// TransportError is the error returned for every failed M2M call.
type TransportError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Code       string // service errorCode, if any
	Message    string // service errorMessage or response excerpt
	Err        error  // underlying cause for network and decode failures
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsTransportError extracts a *TransportError from err.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err is a TransportError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := AsTransportError(err)
	return ok && te.Kind == kind
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoSession) || IsKind(err, KindAuthError)
}

// IsNotFound reports whether err is a NotFound transport error.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// kindForStatus maps a non-2xx HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuthError
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindBadRequest
	}
}

// kindForServiceCode maps an M2M errorCode to an error kind.
func kindForServiceCode(code string) ErrorKind {
	upper := strings.ToUpper(code)
	switch {
	case strings.HasPrefix(upper, "AUTH_"):
		return KindAuthError
	case strings.HasSuffix(upper, "NOT_FOUND"):
		return KindNotFound
	default:
		return KindServiceError
	}
}
