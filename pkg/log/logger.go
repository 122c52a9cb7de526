// Package log defines the crawler's logging contract. The context is
// threaded through every call so implementations can pick up run or
// worker scoped values later without changing call sites.
package log

import "context"

type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
}
