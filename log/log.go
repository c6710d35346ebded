// Package log provides the structured logger used across the broker and
// client, a thin wrapper around github.com/luxfi/log matching the
// teacher's log.NewNoOpLogger()-by-default convention.
package log

import (
	luxlog "github.com/luxfi/log"
)

// Logger is re-exported so callers depend on this package, not luxlog
// directly, keeping the wrapping boundary in one place.
type Logger = luxlog.Logger

// NewNoOp returns a logger that discards everything, the default for
// tests and embeddings that haven't wired a real sink.
func NewNoOp() Logger {
	return luxlog.NewNoOpLogger()
}

// Named returns base scoped with a "component" field, the convention
// used throughout the broker and client to tag log lines by subsystem
// (e.g. "broker", "client", "overlay") without threading a name through
// every constructor.
func Named(base Logger, component string) Logger {
	return base.With("component", component)
}
