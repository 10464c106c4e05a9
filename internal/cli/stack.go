package cli

import (
	"errors"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/cache"
	"github.com/mrz1836/coinsync/internal/history"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/output"
	"github.com/mrz1836/coinsync/internal/service/balance"
	historysvc "github.com/mrz1836/coinsync/internal/service/history"
	"github.com/mrz1836/coinsync/internal/state"
)

// syncStack is the sync layer wired for one command run.
type syncStack struct {
	cc        *CommandContext
	client    node.Client
	accounts  []account.Account
	cache     *cache.BalanceCache
	cacheFile *cache.FileStorage
	state     *state.State
	balances  *balance.Controller
	history   *history.Store
}

// openSyncStack builds the node client, balance cache, application state
// and balance controller. History is opened separately by commands that
// need it.
func openSyncStack(cc *CommandContext) (*syncStack, error) {
	client, err := cc.Client()
	if err != nil {
		return nil, err
	}
	accounts, err := cc.Accounts()
	if err != nil {
		return nil, err
	}

	s := &syncStack{cc: cc, client: client, accounts: accounts}
	s.loadCache()
	s.state = state.New(state.WithRecorder(cc.Metrics), state.WithLogger(cc.logFor("state")))
	s.balances = balance.NewController(balance.Config{
		Client:         client,
		Cache:          s.cache,
		State:          s.state,
		Metrics:        cc.Metrics,
		Logger:         cc.logFor("balance"),
		Clock:          cc.Clock,
		DebounceWindow: cc.Cfg.Sync.DebounceWindow,
		RequestTimeout: cc.Cfg.Sync.RequestTimeout,
		MaxConcurrent:  cc.Cfg.Sync.MaxConcurrent,
	})
	return s, nil
}

// loadCache restores the persisted balance cache. The cache is soft state:
// a missing or corrupt file yields an empty cache.
func (s *syncStack) loadCache() {
	if !s.cc.Cfg.Cache.Persist {
		s.cache = cache.NewBalanceCache(cache.WithNow(s.cc.Clock.Now))
		return
	}

	s.cacheFile = cache.NewFileStorage(s.cc.Cfg.ResolvePath(s.cc.Cfg.Cache.File))
	c, err := s.cacheFile.Load(cache.WithNow(s.cc.Clock.Now))
	if err != nil {
		s.cc.Log.Error("balance cache: %v", err)
		switch {
		case errors.Is(err, cache.ErrCorruptCache):
			s.cc.Fmt.Warn("balance cache was corrupted and has been reset")
		case errors.Is(err, cache.ErrUnknownVersion):
			// Written by a newer coinsync: run without it and leave it alone.
			s.cacheFile = nil
			s.cc.Fmt.Warn("balance cache was written by a newer version and is ignored")
		}
	}
	if maxAge := s.cc.Cfg.Cache.MaxAge; maxAge > 0 {
		if n := c.Prune(maxAge); n > 0 {
			s.cc.Log.Debug("balance cache: dropped %d entries older than %s", n, maxAge)
		}
	}
	s.cache = c
}

// openHistory opens the history store, persisted in pebble when enabled.
func (s *syncStack) openHistory() error {
	if s.history != nil {
		return nil
	}
	if !s.cc.Cfg.History.Persist {
		s.history = history.NewStore()
		return nil
	}

	backend, err := history.OpenPebble(s.cc.Cfg.ResolvePath(s.cc.Cfg.History.Dir))
	if err != nil {
		return err
	}
	store, err := history.Open(backend)
	if err != nil {
		_ = backend.Close()
		return err
	}
	s.history = store
	return nil
}

// syncer returns a history syncer writing to the opened store.
func (s *syncStack) syncer(onChange historysvc.ChangeFunc) *historysvc.Syncer {
	return historysvc.NewSyncer(historysvc.SyncerConfig{
		Client:         s.client,
		Store:          s.history,
		Logger:         s.cc.logFor("history"),
		RequestTimeout: s.cc.Cfg.Sync.RequestTimeout,
		OnChange:       onChange,
	})
}

// close stops background work and persists soft state.
func (s *syncStack) close() {
	s.balances.Close()
	s.state.Close()

	if s.cacheFile != nil {
		if err := s.cacheFile.Save(s.cache); err != nil {
			s.cc.Log.Error("balance cache: %v", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.cc.Log.Error("history store: %v", err)
		}
	}
	if s.cc.Metrics != nil {
		m := s.cc.Metrics.Snapshot()
		s.cc.Log.Debug("metrics: %d rpc calls (%d failed, avg %.1fms), cache hit rate %.0f%%, %d stale results, %d dropped dispatches",
			m.RPCCallsTotal, m.RPCErrorsTotal, m.RPCLatencyAvgMs(), m.CacheHitRate(), m.StaleDiscards, m.DroppedDispatches)
	}
}

// selectAccounts returns the named accounts, or every account when names
// is empty.
func (s *syncStack) selectAccounts(names []string) ([]account.Account, error) {
	if len(names) == 0 {
		return s.accounts, nil
	}
	out := make([]account.Account, 0, len(names))
	for _, name := range names {
		a, err := account.Find(s.accounts, name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// balanceRow renders a published balance.
func (s *syncStack) balanceRow(u state.BalanceUpdate) output.BalanceRow {
	row := output.BalanceRow{
		Account:     u.Account,
		Amount:      node.FormatUnits(u.AmountUnits, s.cc.Cfg.Send.Decimals),
		AmountUnits: u.AmountUnits,
		Symbol:      s.cc.Cfg.Send.Symbol,
		Cached:      u.Cached,
		UpdatedAt:   u.At,
	}
	if a, err := account.Find(s.accounts, u.Account); err == nil {
		row.Address = a.Address
	}
	return row
}

// balanceRows returns a row per account that has a published balance and
// the names of those that have none.
func (s *syncStack) balanceRows(accounts []account.Account) ([]output.BalanceRow, []string) {
	rows := make([]output.BalanceRow, 0, len(accounts))
	var missing []string
	for _, a := range accounts {
		u, ok := s.state.Balance(a.Name)
		if !ok {
			missing = append(missing, a.Name)
			continue
		}
		rows = append(rows, s.balanceRow(u))
	}
	return rows, missing
}
