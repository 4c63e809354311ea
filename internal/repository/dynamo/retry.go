package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"messenger/internal/domain"
)

const (
	maxAttempts = 4
	baseBackoff = 50 * time.Millisecond
	callTimeout = 2 * time.Second
)

// transient reports whether err is worth retrying: throttling, a DynamoDB
// internal error, or an attempt that ran out of time. Conditional-write
// rejections are deliberate outcomes and are never retried here.
func transient(err error) bool {
	var throttled *types.ProvisionedThroughputExceededException
	var limited *types.RequestLimitExceeded
	var internal *types.InternalServerError
	if errors.As(err, &throttled) || errors.As(err, &limited) || errors.As(err, &internal) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn under a per-attempt timeout, backing off exponentially on
// transient failures. Exhausting the budget surfaces domain.ErrUnavailable so
// callers can report a retryable condition instead of hanging.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(baseBackoff << (attempt - 2)):
			case <-ctx.Done():
				return fmt.Errorf("dynamo: %s: %w", op, ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, callTimeout)
		err = fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !transient(err) {
			return fmt.Errorf("dynamo: %s: %w", op, err)
		}
		s.log.Warn("transient storage error", "op", op, "attempt", attempt, "err", err)
	}
	return fmt.Errorf("dynamo: %s: %w (last: %v)", op, domain.ErrUnavailable, err)
}
