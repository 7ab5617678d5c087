package safe

import (
	"log/slog"
	"runtime/debug"
)

// Run executes fn and recovers from any panic, logging the stack instead of
// crashing the process. Background goroutines should always go through here.
func Run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", "safe.Run"),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	fn()
}

// RunWithComponent behaves like Run but tags the log entry with the caller's
// component name so the origin is visible in aggregated logs.
func RunWithComponent(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	fn()
}
