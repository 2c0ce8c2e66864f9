package broker

import "errors"

// Sentinel errors distinguishing the transient/terminal taxonomy a caller
// can branch on with errors.Is, rather than parsing status codes or strings
// at every call site.
var (
	// ErrTransient wraps network, protocol, and 5xx failures: retried with
	// exponential backoff up to a bounded attempt count.
	ErrTransient = errors.New("broker: transient error")

	// ErrTerminal wraps invalid-token, permission-denied, and
	// authentication-failure responses: never retried, propagated
	// immediately so the caller can re-authenticate or fix configuration.
	ErrTerminal = errors.New("broker: terminal error")
)

// Classify maps an HTTP status code (0 if the request never reached the
// server, e.g. a network error) to Transient or Terminal.
func Classify(statusCode int, networkErr error) error {
	if networkErr != nil {
		return ErrTransient
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrTerminal
	case statusCode >= 500:
		return ErrTransient
	case statusCode >= 400:
		return ErrTerminal
	default:
		return nil
	}
}
