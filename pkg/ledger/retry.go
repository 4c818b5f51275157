package ledger

import "context"

// RetryOnConflict runs operation and, if it failed with a retryable
// ErrConcurrentModification, runs it exactly once more.
func RetryOnConflict[T any](ctx context.Context, operation func(ctx context.Context) (T, error)) (T, error) {
	result, err := operation(ctx)
	if err == nil || !IsRetryable(err) {
		return result, err
	}
	return operation(ctx)
}
