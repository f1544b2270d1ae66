package port

import "context"

type CommandGuard interface {
	// Lock claims every key or none. A key already held by another command
	// fails with domain.ErrBusy instead of waiting.
	Lock(ctx context.Context, keys ...string) (unlock func(context.Context) error, err error)

	// Remember records an idempotency token, returns false if already seen.
	Remember(ctx context.Context, token string) (bool, error)

	// Forget drops a token so a failed command can be resubmitted with it.
	Forget(ctx context.Context, token string) error
}
