package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error code the API uses for a ship that is still mid-flight. Calls that
// need a stationary ship fail with this until arrival.
const codeShipInTransit = 4214

// Error is a classified SpaceTraders API failure. Status is the HTTP
// status, Code the API's own error code, and RetryAfter the server's
// cooldown hint when it sent one (rate limits and transit conflicts).
type Error struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// RateLimited reports whether the server refused the call to shed load.
func (e *Error) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Temporary reports whether the same call may succeed if retried:
// rate limits, server faults, and in-transit conflicts that clear on
// their own.
func (e *Error) Temporary() bool {
	if e.RateLimited() || e.Status >= 500 {
		return true
	}
	return e.Code == codeShipInTransit
}

// InTransit reports whether the call failed because the ship has not
// arrived yet.
func (e *Error) InTransit() bool {
	return e.Code == codeShipInTransit
}

// Rejected reports a structural refusal that retrying cannot fix:
// insufficient credits, a full hold, an offer the venue will not honor.
func (e *Error) Rejected() bool {
	return e.Status >= 400 && e.Status < 500 && !e.RateLimited() && !e.InTransit()
}

// AsError unwraps err to the classified API error, if there is one.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRateLimited reports whether err (anywhere in its chain) is a rate
// limit refusal.
func IsRateLimited(err error) bool {
	if apiErr, ok := AsError(err); ok {
		return apiErr.RateLimited()
	}
	return false
}

// IsTemporary reports whether err is worth retrying as-is.
func IsTemporary(err error) bool {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Temporary()
	}
	return false
}

// IsRejected reports whether err is a non-retryable refusal.
func IsRejected(err error) bool {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Rejected()
	}
	return false
}

// RetryHint returns the server's cooldown hint for err, if it carried one.
func RetryHint(err error) (time.Duration, bool) {
	if apiErr, ok := AsError(err); ok && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
