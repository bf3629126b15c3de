// Package retry wraps network calls in bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxElapsed bounds a retried call when the caller passes zero.
const DefaultMaxElapsed = 2 * time.Minute

// Do runs op until it succeeds, returns a permanent error, ctx ends, or
// maxElapsed passes. The last error op returned is the one reported.
func Do(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	if maxElapsed <= 0 {
		maxElapsed = DefaultMaxElapsed
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op()
		return lastErr
	}, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// CheckStatus turns a response code into an error. 5xx and 429 are
// retryable, other non-2xx codes are permanent.
func CheckStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if len(body) > 512 {
		body = body[:512]
	}
	err := &StatusError{Code: code, Body: string(body)}
	if code >= 500 || code == http.StatusTooManyRequests {
		return err
	}
	return Permanent(err)
}

// ForStatus wraps err as permanent when code is a client error other than
// 429. Used for SDK errors that carry a status code.
func ForStatus(code int, err error) error {
	if err == nil {
		return nil
	}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
