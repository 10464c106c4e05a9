package history

import (
	"context"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
)

// HistoryFetcher retrieves transaction records from the node.
type HistoryFetcher interface {
	GetHistory(ctx context.Context, acct account.Account) ([]node.TransactionRecord, error)
}

// RecordStore merges fetched records into local history.
type RecordStore interface {
	Upsert(account string, records ...node.TransactionRecord) (int, error)
}

// LogWriter is the logging surface used by the syncer and poller.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// AccountSource lists the accounts the poller refreshes on every tick.
type AccountSource func() []account.Account

// ChangeFunc is called with the account name after a sync changed its
// history.
type ChangeFunc func(account string)
