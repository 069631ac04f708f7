package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(3, time.Millisecond, time.Second)

	assert.False(t, policy.ShouldRetry(nil, 0))
	assert.True(t, policy.ShouldRetry(errors.New("connection reset"), 0))
	assert.True(t, policy.ShouldRetry(&HTTPError{StatusCode: 503}, 1))

	// Attempt budget: attempts are zero-indexed.
	assert.False(t, policy.ShouldRetry(errors.New("boom"), 2))

	// Permanent client errors and cancellation never retry.
	assert.False(t, policy.ShouldRetry(&HTTPError{StatusCode: 404}, 0))
	assert.False(t, policy.ShouldRetry(&HTTPError{StatusCode: 403}, 0))
	assert.False(t, policy.ShouldRetry(context.Canceled, 0))
	assert.False(t, policy.ShouldRetry(context.DeadlineExceeded, 0))

	// Rate-limit signals go through the cooldown path, not retry.
	assert.False(t, policy.ShouldRetry(&RateLimitedError{Host: "example.com"}, 0))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 5; attempt++ {
		d := policy.Backoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}

	// The jittered delay always lands in [delay/2, delay).
	first := policy.Backoff(0)
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)
	assert.Less(t, first, 100*time.Millisecond)
}

func TestHTTPErrorPermanent(t *testing.T) {
	t.Parallel()

	assert.True(t, (&HTTPError{StatusCode: 404}).Permanent())
	assert.True(t, (&HTTPError{StatusCode: 410}).Permanent())
	assert.False(t, (&HTTPError{StatusCode: 429}).Permanent())
	assert.False(t, (&HTTPError{StatusCode: 500}).Permanent())
	assert.False(t, (&HTTPError{StatusCode: 302}).Permanent())
}
