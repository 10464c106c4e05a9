// Package balance keeps the displayed balance of every tracked account in
// sync with the node.
//
// Each tracked account owns a coalescing trigger. Refresh requests are
// debounced per account; every emission carries a token and only the result
// of the current token is cached and dispatched. A cached balance, when
// present, is dispatched immediately ahead of the network fetch
// (stale-while-revalidate). Fetch failures are logged and swallowed so the
// last known value stays on screen.
package balance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/state"
	"github.com/mrz1836/coinsync/internal/trigger"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultRequestTimeout = 20 * time.Second
	DefaultMaxConcurrent  = 4
)

// staleSource labels discarded balance results in metrics.
const staleSource = "balance"

// Config holds the dependencies of a Controller.
type Config struct {
	Client  BalanceFetcher
	Cache   CacheProvider
	State   Dispatcher
	Metrics MetricsRecorder
	Logger  LogWriter
	Clock   trigger.Clock

	DebounceWindow time.Duration
	RequestTimeout time.Duration
	MaxConcurrent  int
}

// tracked is the per-account handle owned by the controller.
type tracked struct {
	account        account.Account
	trigger        *trigger.Trigger
	lastDispatched uint64
}

// Controller owns the mapping from tracked account name to its trigger and
// runs the fetch, cache, dispatch pipeline. It is safe for concurrent use.
type Controller struct {
	client  BalanceFetcher
	cache   CacheProvider
	state   Dispatcher
	metrics MetricsRecorder
	logger  LogWriter
	clock   trigger.Clock

	window        time.Duration
	timeout       time.Duration
	maxConcurrent int

	baseCtx context.Context //nolint:containedctx // cancelled by Close to stop background refreshes
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	accounts map[string]*tracked
	closed   bool
}

// NewController creates a controller with no tracked accounts.
func NewController(cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:        cfg.Client,
		cache:         cfg.Cache,
		state:         cfg.State,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
		window:        cfg.DebounceWindow,
		timeout:       cfg.RequestTimeout,
		maxConcurrent: cfg.MaxConcurrent,
		baseCtx:       ctx,
		cancel:        cancel,
		accounts:      make(map[string]*tracked),
	}
	if c.clock == nil {
		c.clock = trigger.SystemClock()
	}
	if c.window <= 0 {
		c.window = trigger.DefaultWindow
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRequestTimeout
	}
	if c.maxConcurrent <= 0 {
		c.maxConcurrent = DefaultMaxConcurrent
	}
	return c
}

// SetTrackedAccounts reconciles the tracked set with accounts. Accounts no
// longer present are disposed; new accounts (or accounts whose identity
// changed) get a trigger and an immediate first fetch. Unchanged accounts
// are left alone. It returns once the first fetches have settled; fetch
// failures are not returned. Close cancels the first fetches and waits
// for them.
func (c *Controller) SetTrackedAccounts(ctx context.Context, accounts []account.Account) error {
	initial, err := c.reconcile(accounts)
	if err != nil {
		return err
	}
	if len(initial) == 0 {
		return nil
	}
	defer c.wg.Done()

	fetchCtx, stop := context.WithCancel(ctx)
	defer stop()
	unhook := context.AfterFunc(c.baseCtx, stop)
	defer unhook()

	g, gctx := errgroup.WithContext(fetchCtx)
	g.SetLimit(c.maxConcurrent)
	for _, job := range initial {
		g.Go(func() error {
			c.refresh(gctx, job.tr, job.token)
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

type initialFetch struct {
	tr    *tracked
	token uint64
}

func (c *Controller) reconcile(accounts []account.Account) ([]initialFetch, error) {
	next := make(map[string]account.Account, len(accounts))
	for _, a := range accounts {
		if a.Name == "" {
			return nil, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"field": "account name"})
		}
		if _, dup := next[a.Name]; dup {
			return nil, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"duplicate account": a.Name})
		}
		next[a.Name] = a
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"controller": "closed"})
	}

	for name, tr := range c.accounts {
		if a, keep := next[name]; keep && a == tr.account {
			continue
		}
		tr.trigger.Dispose()
		delete(c.accounts, name)
		if _, replaced := next[name]; !replaced && c.state != nil {
			c.state.Forget(name)
		}
		c.debug("balance: stopped tracking %s", name)
	}

	var initial []initialFetch
	for _, a := range accounts {
		if _, exists := c.accounts[a.Name]; exists {
			continue
		}
		tr := &tracked{account: a}
		tr.trigger = trigger.New(c.window, func(token uint64) { c.onEmit(tr, token) }, trigger.WithClock(c.clock))
		c.accounts[a.Name] = tr
		initial = append(initial, initialFetch{tr: tr, token: tr.trigger.FireNow()})
		c.debug("balance: tracking %s", a.Name)
	}
	if len(initial) > 0 {
		// Released by SetTrackedAccounts once the first fetches settle.
		c.wg.Add(1)
	}
	return initial, nil
}

// RequestRefresh schedules a debounced refresh. It reports false, doing
// nothing, when the account is not tracked.
func (c *Controller) RequestRefresh(name string) bool {
	tr := c.lookup(name)
	if tr == nil {
		return false
	}
	tr.trigger.Trigger()
	return true
}

// RefreshAll schedules a debounced refresh of every tracked account.
func (c *Controller) RefreshAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tr := range c.accounts {
		tr.trigger.Trigger()
	}
}

// Invalidate drops the cached balance, supersedes any in-flight fetch and
// schedules a refresh. Used after a send changes the balance.
func (c *Controller) Invalidate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := c.accounts[name]
	if tr != nil {
		tr.trigger.Cancel()
	}
	if c.cache != nil {
		c.cache.Invalidate(name)
	}
	if tr == nil {
		return false
	}
	tr.trigger.Trigger()
	return true
}

// FreshBalance fetches the balance directly from the node without touching
// the cache or application state.
func (c *Controller) FreshBalance(ctx context.Context, acct account.Account) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.GetBalance(ctx, acct)
}

// Tracked returns the tracked account names, sorted.
func (c *Controller) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.accounts))
	for name := range c.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accounts returns the tracked accounts ordered by name.
func (c *Controller) Accounts() []account.Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]account.Account, 0, len(c.accounts))
	for _, tr := range c.accounts {
		out = append(out, tr.account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Account returns a tracked account by name.
func (c *Controller) Account(name string) (account.Account, bool) {
	tr := c.lookup(name)
	if tr == nil {
		return account.Account{}, false
	}
	return tr.account, true
}

// Wait blocks until background refreshes started so far have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close disposes every trigger, cancels in-flight fetches and waits for
// them to return. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		for _, tr := range c.accounts {
			tr.trigger.Dispose()
		}
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) lookup(name string) *tracked {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[name]
}

// onEmit runs on the trigger's timer goroutine.
func (c *Controller) onEmit(tr *tracked, token uint64) {
	c.mu.Lock()
	if c.closed || c.accounts[tr.account.Name] != tr {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.refresh(c.baseCtx, tr, token)
	}()
}

// refresh serves the cached value, if any, then fetches and applies the
// fresh one. Both carry the same token.
func (c *Controller) refresh(ctx context.Context, tr *tracked, token uint64) {
	name := tr.account.Name

	if c.cache != nil {
		if entry, ok, age := c.cache.Get(name); ok {
			c.recordCacheHit()
			c.debug("balance: serving cached %s (age %s, token %d)", name, age, token)
			c.apply(tr, token, entry.AmountUnits, true)
		} else {
			c.recordCacheMiss()
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	amount, err := c.client.GetBalance(fetchCtx, tr.account)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.debug("balance: fetch for %s cancelled (token %d)", name, token)
			return
		}
		if c.logger != nil {
			c.logger.Error("balance: fetch for %s failed, keeping last value: %v", name, err)
		}
		return
	}

	c.apply(tr, token, amount, false)
}

// apply writes and dispatches a result if its token is still current.
// Token check, cache write and dispatch happen under one lock so a newer
// result can never be overwritten by an older one.
func (c *Controller) apply(tr *tracked, token, amount uint64, cached bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := tr.account.Name
	if c.closed || c.accounts[name] != tr || !tr.trigger.IsCurrent(token) || token < tr.lastDispatched {
		if c.metrics != nil {
			c.metrics.RecordStaleDiscard(staleSource)
		}
		c.debug("balance: %v (account %s, token %d)", coinerr.ErrStaleToken, name, token)
		return
	}

	if !cached && c.cache != nil {
		c.cache.Put(name, amount)
	}
	tr.lastDispatched = token
	if c.state != nil {
		c.state.Dispatch(state.BalanceUpdate{
			Account:     name,
			AmountUnits: amount,
			Cached:      cached,
			Token:       token,
			At:          c.clock.Now(),
		})
	}
}

func (c *Controller) recordCacheHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *Controller) recordCacheMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}

func (c *Controller) debug(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}
