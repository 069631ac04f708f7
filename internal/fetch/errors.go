package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError carries a non-2xx status returned by the target.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.StatusCode, e.URL)
}

// Permanent reports whether the status should not be retried. 4xx responses
// are permanent for that URL; 429 is handled by the cooldown path instead.
func (e *HTTPError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// RateLimitedError indicates the host signalled active blocking (429 or an
// interstitial page). The client has already placed the host in cooldown.
type RateLimitedError struct {
	Host string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("host %s is rate limiting requests", e.Host)
}

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
