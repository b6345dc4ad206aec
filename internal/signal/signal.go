package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. It is the
// root context for every lakechat command: cancelling it tears down open
// completion streams, running MCP server processes, and the chat REPL.
// The returned stop function releases the signal registration.
func NotifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
