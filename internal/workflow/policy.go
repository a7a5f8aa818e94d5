package workflow

import (
	"context"
	"math/rand"
	"time"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

// computeBackoff mirrors the teacher's exponential-backoff-with-jitter
// formula (graph/policy.go): delay = min(base*2^attempt, maxDelay) +
// jitter(0, base).
func computeBackoff(attempt int, cfg state.RetryConfig) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := base * time.Duration(uint64(1)<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(base) + 1)) // #nosec G404 -- retry jitter, not security
	return delay + jitter
}

// runNodeWithRetry retries node.Run while it returns a retryable
// (*errs.TransientProviderError) error, per spec.md §4.5/§7's "retried per
// profile RetryConfig; promoted to workflow failure on exhaustion". Any
// other error returns immediately.
func runNodeWithRetry(ctx context.Context, node Node, s State, cfg state.RetryConfig) NodeResult {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last NodeResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last = node.Run(ctx, s)
		if last.Err == nil || !errs.IsRetryable(last.Err) {
			return last
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return NodeResult{Err: ctx.Err()}
		case <-time.After(computeBackoff(attempt, cfg)):
		}
	}
	return last
}
