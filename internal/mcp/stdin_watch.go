package mcp

import (
	"context"
	"os"
	"time"

	"bugtriage/internal/logging"
)

// WatchParent polls for parent process death in a background goroutine and
// calls cancelFn when the parent PID changes, so a disconnected MCP client
// does not leave a zombie server behind.
//
// It must not read stdin: the SDK's StdioTransport owns it, and stealing
// bytes would corrupt the JSON-RPC stream.
func WatchParent(ctx context.Context, cancelFn context.CancelFunc) {
	ppid := os.Getppid()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					logging.New("mcp").Warn("parent process died, shutting down", "was_pid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
