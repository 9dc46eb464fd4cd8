// Package errdefs defines the client error taxonomy and maps each error to a
// process exit code.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Exit codes reported by the swamp command.
const (
	ExitOK                = 0
	ExitInvalidOptions    = 1
	ExitParser            = 2
	ExitInvalidIdentifier = 3
	ExitIncompatible      = 4
	ExitInvalidName       = 4
	ExitSessionExpired    = 5
	ExitSessionRestore    = 6
	ExitSessionSave       = 7
	ExitNoDefaultPlatform = 8
	ExitHTTPOther         = 20
	ExitTransport         = 30
	ExitUncategorized     = 1
)

// ClientOptionError reports invalid or missing caller options.
type ClientOptionError struct {
	Msg string
}

func (e *ClientOptionError) Error() string { return e.Msg }

// ParserError reports a command line that could not be parsed.
type ParserError struct {
	Err error
}

func (e *ParserError) Error() string { return e.Err.Error() }
func (e *ParserError) Unwrap() error { return e.Err }

// InvalidIdentifierError reports an identifier the service does not know.
type InvalidIdentifierError struct {
	Kind string
	ID   string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("Invalid %s UUID: %s", e.Kind, e.ID)
}

// InvalidNameError reports a name that does not resolve to a resource.
type InvalidNameError struct {
	Kind string
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("Invalid %s name: %s", e.Kind, e.Name)
}

// IncompatibleTupleError reports a tool that cannot assess a package type or
// cannot run on a platform.
type IncompatibleTupleError struct {
	Msg string
}

func (e *IncompatibleTupleError) Error() string { return e.Msg }

// NoDefaultPlatformError reports a package type with no default platform.
type NoDefaultPlatformError struct {
	PackageType string
}

func (e *NoDefaultPlatformError) Error() string {
	return fmt.Sprintf("no default platform for package type %q", e.PackageType)
}

// SessionExpiredError reports a restored session holding expired cookies.
type SessionExpiredError struct{}

func (e *SessionExpiredError) Error() string {
	return "session expired, please login again"
}

// SessionRestoreError reports a session that could not be loaded.
type SessionRestoreError struct {
	Err error
}

func (e *SessionRestoreError) Error() string {
	return fmt.Sprintf("could not restore session: %v", e.Err)
}

func (e *SessionRestoreError) Unwrap() error { return e.Err }

// SessionSaveError reports a session that could not be persisted.
type SessionSaveError struct {
	Err error
}

func (e *SessionSaveError) Error() string {
	return fmt.Sprintf("could not save session: %v", e.Err)
}

func (e *SessionSaveError) Unwrap() error { return e.Err }

// SecurityError reports a login response carrying an insecure cookie while
// secure cookies are required.
type SecurityError struct {
	Cookie string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("cookie named %q is not secure, logon aborted", e.Cookie)
}

// HTTPError is a non-2xx response from the service.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// TransportError is an I/O failure below HTTP semantics.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoJSONError is a non-empty response body that is not JSON.
type NoJSONError struct {
	URL  string
	Body string
}

func (e *NoJSONError) Error() string {
	body := e.Body
	if len(body) > 128 {
		body = body[:128] + "..."
	}
	return fmt.Sprintf("%s: response is not JSON: %s", e.URL, body)
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		optErr     *ClientOptionError
		parseErr   *ParserError
		idErr      *InvalidIdentifierError
		nameErr    *InvalidNameError
		tupleErr   *IncompatibleTupleError
		expiredErr *SessionExpiredError
		restoreErr *SessionRestoreError
		saveErr    *SessionSaveError
		platErr    *NoDefaultPlatformError
		httpErr    *HTTPError
		transErr   *TransportError
		jsonErr    *NoJSONError
		secErr     *SecurityError
	)

	switch {
	case errors.As(err, &optErr):
		return ExitInvalidOptions
	case errors.As(err, &parseErr):
		return ExitParser
	case errors.As(err, &idErr):
		return ExitInvalidIdentifier
	case errors.As(err, &nameErr):
		return ExitInvalidName
	case errors.As(err, &tupleErr):
		return ExitIncompatible
	case errors.As(err, &expiredErr):
		return ExitSessionExpired
	case errors.As(err, &restoreErr):
		return ExitSessionRestore
	case errors.As(err, &saveErr):
		return ExitSessionSave
	case errors.As(err, &platErr):
		return ExitNoDefaultPlatform
	case errors.As(err, &httpErr):
		return HTTPExitCode(httpErr.StatusCode)
	case errors.As(err, &transErr), errors.As(err, &jsonErr), errors.As(err, &secErr):
		return ExitTransport
	default:
		return ExitUncategorized
	}
}

// HTTPExitCode folds an HTTP status into the exit code range: 4xx map to
// 20..119 and 5xx to 40..139. The ranges overlap each other and the fixed
// codes (400 is ExitHTTPOther, 410 is ExitTransport); callers that need the
// status itself should unwrap the HTTPError.
func HTTPExitCode(status int) int {
	switch {
	case status >= 400 && status <= 499:
		return status - 380
	case status >= 500 && status <= 599:
		return status - 460
	default:
		return ExitHTTPOther
	}
}
