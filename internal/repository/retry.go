package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
)

// retrier re-runs a store call on transient failures with exponential backoff.
type retrier struct {
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func newRetrier(logger *zap.Logger) retrier {
	return retrier{
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func (r *retrier) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return r.execute(ctx, operation, requestID, isTransientError, fn)
}

// executeInsert is executeWithRetry for non-idempotent writes. A timed out
// insert may already be committed, so only failures the server reported
// before applying the request are retried.
func (r *retrier) executeInsert(ctx context.Context, operation, requestID string, fn func() error) error {
	return r.execute(ctx, operation, requestID, isRetryableInsertError, fn)
}

func (r *retrier) execute(ctx context.Context, operation, requestID string, retryable func(error) bool, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewRetriedOperationError(operation, requestID, attempt, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, ErrNotFound) {
			return err
		}

		if !retryable(err) || attempt == attempts-1 {
			opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewRetriedOperationError(operation, requestID, attempt+1, err)
		}

		opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewRetriedOperationError(operation, requestID, attempts, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

func isRetryableInsertError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return isTransientError(err)
}
