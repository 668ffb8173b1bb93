package types

import (
	"context"
	"time"
)

// ActionExecutor performs one abstract browser action against the browsing
// context bound to a session. It is the only downward dependency of the
// orchestrator and the recovery engine; nothing below this interface
// depends back upward.
//
// The two failure channels are distinct on purpose: an error-status Result
// is a reported failure of the action itself, while a non-nil error is a
// fault raised by the executor (driver crash, lost connection). The
// orchestrator normalizes both into the classify-then-recover path.
//
// Implementations must be safe to retry: the recovery engine re-dispatches
// failed actions without deduplicating side effects.
type ActionExecutor interface {
	Perform(ctx context.Context, sessionID, action string, params map[string]any, timeout time.Duration) (Result, error)
}
