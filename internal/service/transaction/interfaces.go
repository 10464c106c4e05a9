package transaction

import (
	"context"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
)

// FeeEstimator asks the node for a fee quote.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, req node.FeeRequest) (*node.FeeQuote, error)
}

// Sender submits a transaction. Implementations must not retry.
type Sender interface {
	SendTransaction(ctx context.Context, params node.SendParams) (string, error)
}

// BalanceChecker returns an account balance fetched from the node, never
// from a cache.
type BalanceChecker interface {
	FreshBalance(ctx context.Context, acct account.Account) (uint64, error)
}

// BalanceInvalidator drops a cached balance and schedules a refresh.
type BalanceInvalidator interface {
	Invalidate(name string) bool
}

// HistoryRecorder stores transaction records.
type HistoryRecorder interface {
	Upsert(account string, records ...node.TransactionRecord) (int, error)
}

// MetricsRecorder records send and fee pipeline metrics.
type MetricsRecorder interface {
	RecordStaleDiscard(source string)
	RecordSend(err error)
}

// LogWriter provides logging operations.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
