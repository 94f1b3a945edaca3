package roomwire

import (
	"errors"
	"fmt"

	"github.com/luciancaetano/roomwire/deferred"
)

// TimeoutError is returned when a query or wait deadline elapses.
type TimeoutError = deferred.TimeoutError

// AccessError reports that the server denied or could not find a queried
// room or user.
type AccessError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Reason)
}

// WaitTimeoutError rejects a message wait that timed out. Matches holds the
// messages accumulated so far and is nil when none matched.
type WaitTimeoutError struct {
	Timeout *TimeoutError
	Matches []*Message
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("%s (%d partial matches)", e.Timeout.Error(), len(e.Matches))
}

func (e *WaitTimeoutError) Unwrap() error { return e.Timeout }

// LoginError reports a failed challenge-response login.
type LoginError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Reason, e.Err)
	}
	return "login failed: " + e.Reason
}

func (e *LoginError) Unwrap() error { return e.Err }

// TransportError reports a socket or HTTP failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PayloadError reports a structured payload that failed to parse.
type PayloadError struct {
	Context string
	Raw     string
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMalformedPayload, e.Context, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsAccessDenied reports whether err is, or wraps, an AccessError.
func IsAccessDenied(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}
