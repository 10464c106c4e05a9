package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// defaultRequestTimeout applies when the config leaves sync.request_timeout unset.
const defaultRequestTimeout = 20 * time.Second

// baseContext is the command's context, or Background when the command runs
// outside Execute.
func baseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// interruptContext is canceled on SIGINT or SIGTERM. Long-running commands
// use it so the watch pipeline shuts down in order.
func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(baseContext(cmd), os.Interrupt, syscall.SIGTERM)
}

// requestTimeout bounds a single node round trip.
func (c *CommandContext) requestTimeout() time.Duration {
	if d := c.Cfg.Sync.RequestTimeout; d > 0 {
		return d
	}
	return defaultRequestTimeout
}

// requestContext allows rounds node round trips before giving up.
func (c *CommandContext) requestContext(cmd *cobra.Command, rounds int) (context.Context, context.CancelFunc) {
	if rounds < 1 {
		rounds = 1
	}
	return context.WithTimeout(baseContext(cmd), time.Duration(rounds)*c.requestTimeout())
}
