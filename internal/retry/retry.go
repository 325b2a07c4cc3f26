// Package retry implements the Retry Harness (spec.md §4.1): a bounded
// retry wrapper over any asynchronous operation, with a single
// failure-log between attempts and no jittered backoff between an
// individual op's own attempts — the platform's own throttling already
// implements global backoff (spec.md §5). What this package does add is
// cross-call pacing: every gateway in this process (ledger claims,
// object store writes, queue sends) routes through the same Do, so a
// burst of simultaneously-failing operations can retry in lockstep and
// hammer a struggling downstream even though no single op backs off.
// burstLimiter smooths that burst with golang.org/x/time/rate.
package retry

import (
	"context"
	"log/slog"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// MaxAttempts is the fixed total attempt budget spec.md §4.1 specifies:
// one initial attempt plus two retries.
const MaxAttempts = 3

// burstLimiter caps how many attempts (first attempts and retries alike)
// across all Do callers in this process may start per second. It has nothing to do with the
// per-op backoff spec.md §4.1 and §5 disable; it exists purely to
// smooth the thundering herd of many concurrent Do calls all retrying
// a shared downstream at once.
var burstLimiter = rate.NewLimiter(rate.Limit(200), 200)

// Do runs op, retrying up to MaxAttempts total attempts on failure with
// no backoff delay between attempts. Every failed attempt is logged
// once; on the final failure the last error is returned verbatim. Every
// error op returns is retried; Do has no way to mark an error as
// permanent, so callers that need to distinguish transient from
// permanent failures classify before calling Do.
func Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(MaxAttempts-1, retry.NewConstant(0))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := burstLimiter.Wait(ctx); err != nil {
			return err
		}
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if attempt < MaxAttempts {
			slog.WarnContext(ctx, "retry harness: attempt failed, retrying",
				"label", label, "attempt", attempt, "max_attempts", MaxAttempts, "error", err)
			return retry.RetryableError(err)
		}
		slog.ErrorContext(ctx, "retry harness: exhausted attempts",
			"label", label, "attempts", attempt, "error", err)
		return err
	})
}
