// Package retry provides exponential backoff retry logic for transient failures.
//
// The monitoring source uses it to re-acquire the management connection after
// it breaks at runtime; startup connection failures are not retried.
//
//	err := retry.Do(ctx, retry.Persistent(), func() error {
//	    return mgr.Connect(ctx)
//	})
//
// Return retry.NonRetryable(err) from fn to stop immediately. Config.Clock
// accepts a mock clock so backoff can be driven from tests.
package retry
