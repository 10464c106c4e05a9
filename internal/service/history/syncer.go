// Package history keeps local transaction history in step with the node.
//
// A Syncer fetches an account's records and merges them into the store.
// A Poller repeats that on a ticker so pending records advance to
// confirmed or failed.
package history

import (
	"context"
	"time"

	"github.com/mrz1836/coinsync/internal/account"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// DefaultRequestTimeout bounds a single history fetch.
const DefaultRequestTimeout = 20 * time.Second

// SyncResult is the outcome of syncing one account.
type SyncResult struct {
	Account string
	Changed int
	Err     error
}

// SyncerConfig holds the dependencies of a Syncer.
type SyncerConfig struct {
	Client         HistoryFetcher
	Store          RecordStore
	Logger         LogWriter
	RequestTimeout time.Duration
	OnChange       ChangeFunc
}

// Syncer fetches history from the node and merges it into the store.
type Syncer struct {
	client   HistoryFetcher
	store    RecordStore
	logger   LogWriter
	timeout  time.Duration
	onChange ChangeFunc
}

// NewSyncer creates a Syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	s := &Syncer{
		client:   cfg.Client,
		store:    cfg.Store,
		logger:   cfg.Logger,
		timeout:  cfg.RequestTimeout,
		onChange: cfg.OnChange,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRequestTimeout
	}
	return s
}

// SyncAccount fetches the account's history and merges it into the store.
// It returns the number of records inserted or changed.
func (s *Syncer) SyncAccount(ctx context.Context, acct account.Account) (int, error) {
	if acct.Name == "" {
		return 0, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"field": "account name"})
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.client.GetHistory(fetchCtx, acct)
	if err != nil {
		return 0, coinerr.Wrap(err, "fetching history for %s", acct.Name)
	}

	changed, err := s.store.Upsert(acct.Name, records...)
	if err != nil {
		return 0, coinerr.Wrap(err, "storing history for %s", acct.Name)
	}

	s.debug("history: %s synced, %d of %d records changed", acct.Name, changed, len(records))
	if changed > 0 && s.onChange != nil {
		s.onChange(acct.Name)
	}
	return changed, nil
}

// SyncAll syncs accounts one after another and reports each outcome.
// A failing account does not stop the others; cancellation of ctx does.
func (s *Syncer) SyncAll(ctx context.Context, accounts []account.Account) []SyncResult {
	results := make([]SyncResult, 0, len(accounts))

	for _, acct := range accounts {
		if ctx.Err() != nil {
			results = append(results, SyncResult{Account: acct.Name, Err: ctx.Err()})
			break
		}

		changed, err := s.SyncAccount(ctx, acct)
		if err != nil && s.logger != nil && ctx.Err() == nil {
			s.logger.Error("history: sync of %s failed: %v", acct.Name, err)
		}
		results = append(results, SyncResult{Account: acct.Name, Changed: changed, Err: err})
	}

	return results
}

func (s *Syncer) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}
