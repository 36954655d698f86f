package sheets

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"google.golang.org/api/googleapi"
)

// RetryPolicy retries transient API failures with exponential backoff.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy allows four retries within a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      4,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsedTime:  time.Minute,
	}
}

// Do runs op until it succeeds, returns a permanent error, or the policy is
// exhausted.
func (p RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	log := logger.FromContext(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("op", name).
			Dur("retry_in", wait).
			Msg("Sheets call failed, retrying")
	})
}

// IsRetryable reports whether err is worth retrying: rate limiting, server
// errors and anything that is not an API error at all (network failures).
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}
