package balance

import (
	"context"
	"time"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/cache"
	"github.com/mrz1836/coinsync/internal/state"
)

// BalanceFetcher reads balances from the node.
// Satisfied by node.Client.
type BalanceFetcher interface {
	GetBalance(ctx context.Context, acct account.Account) (uint64, error)
}

// CacheProvider provides balance cache operations.
// Satisfied by *cache.BalanceCache.
type CacheProvider interface {
	Get(account string) (*cache.Entry, bool, time.Duration)
	Put(account string, amountUnits uint64)
	Invalidate(account string)
}

// Dispatcher publishes balance updates to application state.
// Satisfied by *state.State.
type Dispatcher interface {
	Dispatch(u state.BalanceUpdate)
	Forget(account string)
}

// MetricsRecorder receives controller counters.
// Satisfied by *metrics.Metrics.
type MetricsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordStaleDiscard(source string)
}

// LogWriter is the subset of the application logger used here.
// Satisfied by *config.Logger.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
