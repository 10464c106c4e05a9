package cli

import (
	"github.com/mrz1836/coinsync/internal/config"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/service/balance"
	historysvc "github.com/mrz1836/coinsync/internal/service/history"
	"github.com/mrz1836/coinsync/internal/service/transaction"
)

// LogWriter is the logger commands hand to the sync services. Any value
// satisfying it also satisfies each service's narrower logger.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// ClientFactory builds the node client for a command; tests swap it for an
// in-memory node.
type ClientFactory func(cc *CommandContext) (node.Client, error)

var (
	_ LogWriter   = (*config.Logger)(nil)
	_ node.Client = (*node.RPCClient)(nil)

	_ balance.LogWriter     = LogWriter(nil)
	_ historysvc.LogWriter  = LogWriter(nil)
	_ transaction.LogWriter = LogWriter(nil)
)
