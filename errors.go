package embedcheckout

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrMountTargetNotFound may be returned (or wrapped) by [WidgetHandle.Mount]
// when the widget itself cannot resolve the mount target.
var ErrMountTargetNotFound = errors.New("embedcheckout: mount target not found")

// SessionFetchError reports a transport failure or a non-success response
// from the session-issuance backend.
type SessionFetchError struct {
	Endpoint   string
	StatusCode int // Zero when no response was received.
	Status     string
	Body       string // Leading bytes of the response body, if any.
	Err        error

	retryAfter time.Duration
}

func (e *SessionFetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("embedcheckout: fetch session from %s: %v", e.Endpoint, e.Err)
	}
	msg := fmt.Sprintf("embedcheckout: session endpoint %s returned %s", e.Endpoint, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *SessionFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfter returns the delay advertised by the backend's Retry-After
// header. The adapter never retries; widgets and callers may.
func (e *SessionFetchError) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

// Temporary reports whether the failure looks transient (no response,
// 429 or 5xx).
func (e *SessionFetchError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// MalformedCredentialError reports a backend response that does not carry
// the credential field as a non-empty string.
type MalformedCredentialError struct {
	Field string
	Err   error
}

func (e *MalformedCredentialError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("embedcheckout: malformed session response: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("embedcheckout: malformed session response: %s is missing", e.Field)
}

func (e *MalformedCredentialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WidgetInitError wraps failures of the external widget factory or of a
// mount attempt that is not a missing target.
type WidgetInitError struct {
	Err error
}

func (e *WidgetInitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("embedcheckout: initialize widget: %v", e.Err)
}

func (e *WidgetInitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MountTargetNotFoundError reports that the mount target is absent from the
// host surface.
type MountTargetNotFoundError struct {
	Target string
	Err    error
}

func (e *MountTargetNotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("embedcheckout: mount target %q not found", e.Target)
}

func (e *MountTargetNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Err != nil {
		return e.Err
	}
	return ErrMountTargetNotFound
}

// credentialError returns the fetch or malformed-credential error carried by
// err, or nil.
func credentialError(err error) error {
	var fetchErr *SessionFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	var malformedErr *MalformedCredentialError
	if errors.As(err, &malformedErr) {
		return malformedErr
	}
	return nil
}

// parseRetryAfter accepts both the delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
