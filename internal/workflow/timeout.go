package workflow

import (
	"context"
	"time"
)

// runNodeWithTimeout wraps node.Run in a deadline, adapted from the
// teacher's executeNodeWithTimeout (graph/timeout.go). A zero timeout means
// unlimited execution.
func runNodeWithTimeout(ctx context.Context, node Node, s State, timeout time.Duration) NodeResult {
	if timeout <= 0 {
		return node.Run(ctx, s)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, s)
	if timeoutCtx.Err() == context.DeadlineExceeded && result.Err == nil {
		result.Err = &NodeError{Message: "node exceeded timeout of " + timeout.String()}
	}
	return result
}
