// Package retries provides the bounded-retry helper the stores wrap
// their AWS calls in.
package retries

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/aws/smithy-go"
)

const (
	DefaultAttempts  = 3
	HealthAttempts   = 2
	DefaultBaseDelay = 100 * time.Millisecond
	HealthBaseDelay  = 50 * time.Millisecond
)

// Retry runs fn up to attempts times with exponential backoff starting
// at baseDelay. A non-retriable error or context cancellation stops the
// loop immediately.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, retriable func(error) bool) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if retriable != nil && !retriable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}

// IsRetriableDbError classifies transient DynamoDB/network failures.
func IsRetriableDbError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException",
			"ProvisionedThroughputExceededException",
			"RequestLimitExceeded",
			"InternalServerError",
			"ServiceUnavailable":
			return true
		}
	}

	return false
}
