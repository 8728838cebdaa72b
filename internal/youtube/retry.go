package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/googleapi"
)

// retryOnce runs op and, if it fails with a transient error, runs it once more
// after a jittered delay. Quota is reserved per attempt.
func retryOnce[T any](ctx context.Context, c *Client, cost int, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBackoff
	bo.MaxInterval = 4 * c.cfg.RetryBackoff

	attempt := func() (T, error) {
		var zero T
		if err := c.budget.Reserve(cost); err != nil {
			return zero, backoff.Permanent(err)
		}
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
}

// retryable reports whether err is a transport failure, 429 or 5xx. An
// undecodable body is final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
