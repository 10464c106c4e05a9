package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/cache"
	"github.com/mrz1836/coinsync/internal/state"
	"github.com/mrz1836/coinsync/internal/trigger"
	"github.com/mrz1836/coinsync/internal/trigger/triggertest"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

var (
	alice = account.Account{Name: "alice", Address: "addr-alice", Key: "key-alice"} //nolint:gochecknoglobals // test fixture
	bob   = account.Account{Name: "bob", Address: "addr-bob", Key: "key-bob"}       //nolint:gochecknoglobals // test fixture
	carol = account.Account{Name: "carol", Address: "addr-carol", Key: "key-carol"} //nolint:gochecknoglobals // test fixture

	errNodeDown = errors.New("node down")
)

// staticFetcher answers immediately from a script of replies per account.
// The last reply repeats.
type staticFetcher struct {
	mu      sync.Mutex
	replies map[string][]fetchReply
	calls   map[string]int
}

type fetchReply struct {
	amount uint64
	err    error
}

func newStaticFetcher() *staticFetcher {
	return &staticFetcher{
		replies: make(map[string][]fetchReply),
		calls:   make(map[string]int),
	}
}

func (f *staticFetcher) set(name string, replies ...fetchReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[name] = replies
}

func (f *staticFetcher) GetBalance(_ context.Context, acct account.Account) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[acct.Name]
	f.calls[acct.Name]++
	script := f.replies[acct.Name]
	if len(script) == 0 {
		return 0, fmt.Errorf("no balance scripted for %s: %w", acct.Name, coinerr.ErrNetwork)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].amount, script[n].err
}

func (f *staticFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// blockingFetcher hands every call to the test, which answers it.
type blockingFetcher struct {
	calls chan *pendingFetch
}

type pendingFetch struct {
	account string
	reply   chan fetchReply
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{calls: make(chan *pendingFetch, 8)}
}

func (f *blockingFetcher) GetBalance(ctx context.Context, acct account.Account) (uint64, error) {
	p := &pendingFetch{account: acct.Name, reply: make(chan fetchReply, 1)}
	f.calls <- p
	select {
	case r := <-p.reply:
		return r.amount, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *blockingFetcher) next(t *testing.T) *pendingFetch {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a balance fetch")
		return nil
	}
}

// recordingDispatcher keeps every dispatched update.
type recordingDispatcher struct {
	mu        sync.Mutex
	updates   []state.BalanceUpdate
	forgotten []string
}

func (d *recordingDispatcher) Dispatch(u state.BalanceUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, u)
}

func (d *recordingDispatcher) Forget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgotten = append(d.forgotten, name)
}

func (d *recordingDispatcher) all() []state.BalanceUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]state.BalanceUpdate(nil), d.updates...)
}

// dispatched is a compact view of an update for assertions.
type dispatched struct {
	account string
	amount  uint64
	cached  bool
	token   uint64
}

func (d *recordingDispatcher) compact() []dispatched {
	out := make([]dispatched, 0)
	for _, u := range d.all() {
		out = append(out, dispatched{u.Account, u.AmountUnits, u.Cached, u.Token})
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	hits   int
	misses int
	stale  int
}

func (m *countingMetrics) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *countingMetrics) RecordStaleDiscard(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale++
}

type captureLog struct {
	mu     sync.Mutex
	debug  []string
	errors []string
}

func (l *captureLog) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, fmt.Sprintf(format, args...))
}

func (l *captureLog) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type harness struct {
	ctrl     *Controller
	clock    *triggertest.FakeClock
	cache    *cache.BalanceCache
	dispatch *recordingDispatcher
	metrics  *countingMetrics
	log      *captureLog
}

func newHarness(t *testing.T, client BalanceFetcher) *harness {
	t.Helper()
	h := &harness{
		clock:    triggertest.NewFakeClock(time.Unix(1700000000, 0)),
		cache:    cache.NewBalanceCache(),
		dispatch: &recordingDispatcher{},
		metrics:  &countingMetrics{},
		log:      &captureLog{},
	}
	h.ctrl = NewController(Config{
		Client:         client,
		Cache:          h.cache,
		State:          h.dispatch,
		Metrics:        h.metrics,
		Logger:         h.log,
		Clock:          h.clock,
		DebounceWindow: trigger.DefaultWindow,
		RequestTimeout: time.Second,
		MaxConcurrent:  2,
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

// settle advances past the debounce window and waits for the refresh.
func (h *harness) settle() {
	h.clock.Advance(trigger.DefaultWindow)
	h.ctrl.Wait()
}

func cachedAmount(t *testing.T, c *cache.BalanceCache, name string) uint64 {
	t.Helper()
	entry, ok, _ := c.Get(name)
	require.True(t, ok, "expected a cache entry for %s", name)
	return entry.AmountUnits
}

func TestController_InitialFetchCachesAndDispatches(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000})
	h := newHarness(t, client)

	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	assert.Equal(t, 1, client.count("alice"))
	assert.Equal(t, uint64(1000), cachedAmount(t, h.cache, "alice"))
	assert.Equal(t, []dispatched{{"alice", 1000, false, 1}}, h.dispatch.compact())
	assert.Equal(t, []string{"alice"}, h.ctrl.Tracked())
}

func TestController_StaleWhileRevalidateSequence(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000})
	h := newHarness(t, client)
	h.cache.Put("alice", 900)

	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	// Cached value first, then the fresh value, both under the same token.
	assert.Equal(t, []dispatched{
		{"alice", 900, true, 1},
		{"alice", 1000, false, 1},
	}, h.dispatch.compact())
	assert.Equal(t, 1, h.metrics.hits)
}

func TestController_BurstOfRequestsFetchesOnce(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000}, fetchReply{amount: 1200})
	h := newHarness(t, client)
	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	for range 5 {
		assert.True(t, h.ctrl.RequestRefresh("alice"))
		h.clock.Advance(100 * time.Millisecond)
	}
	h.settle()

	assert.Equal(t, 2, client.count("alice"))
	assert.Equal(t, []dispatched{
		{"alice", 1000, false, 1},
		{"alice", 1000, true, 2},
		{"alice", 1200, false, 2},
	}, h.dispatch.compact())
	assert.Equal(t, uint64(1200), cachedAmount(t, h.cache, "alice"))
}

func TestController_OutOfOrderResultIsDiscarded(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	client.next(t).reply <- fetchReply{amount: 1000}
	require.NoError(t, <-done)

	h.ctrl.RequestRefresh("alice")
	h.clock.Advance(trigger.DefaultWindow)
	older := client.next(t) // token 2

	h.ctrl.RequestRefresh("alice")
	h.clock.Advance(trigger.DefaultWindow)
	newer := client.next(t) // token 3

	newer.reply <- fetchReply{amount: 3000}
	older.reply <- fetchReply{amount: 2000}
	h.ctrl.Wait()

	assert.Equal(t, []dispatched{
		{"alice", 1000, false, 1},
		{"alice", 1000, true, 2},
		{"alice", 1000, true, 3},
		{"alice", 3000, false, 3},
	}, h.dispatch.compact())
	assert.Equal(t, uint64(3000), cachedAmount(t, h.cache, "alice"))
	assert.Equal(t, 1, h.metrics.stale)
}

func TestController_DispatchesAreTokenOrdered(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	client.next(t).reply <- fetchReply{amount: 1}
	require.NoError(t, <-done)

	var pending []*pendingFetch
	for range 4 {
		h.ctrl.RequestRefresh("alice")
		h.clock.Advance(trigger.DefaultWindow)
		pending = append(pending, client.next(t))
	}
	// Answer newest first.
	for i := len(pending) - 1; i >= 0; i-- {
		pending[i].reply <- fetchReply{amount: uint64(100 + i)} //nolint:gosec // small test values
	}
	h.ctrl.Wait()

	var last uint64
	for _, u := range h.dispatch.all() {
		assert.GreaterOrEqual(t, u.Token, last)
		last = u.Token
	}
	assert.Equal(t, uint64(103), cachedAmount(t, h.cache, "alice"))
	assert.Equal(t, 3, h.metrics.stale)
}

func TestController_FailureKeepsLastValue(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000}, fetchReply{err: coinerr.WithCause(coinerr.ErrNetwork, errNodeDown)})
	h := newHarness(t, client)
	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	h.ctrl.RequestRefresh("alice")
	h.settle()

	assert.Equal(t, uint64(1000), cachedAmount(t, h.cache, "alice"))
	assert.Equal(t, []dispatched{
		{"alice", 1000, false, 1},
		{"alice", 1000, true, 2},
	}, h.dispatch.compact())
	require.Len(t, h.log.errors, 1)
	assert.Contains(t, h.log.errors[0], "alice")
}

func TestController_InitialFailureDispatchesNothing(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{err: coinerr.ErrRPC})
	h := newHarness(t, client)

	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	assert.Empty(t, h.dispatch.all())
	_, ok, _ := h.cache.Get("alice")
	assert.False(t, ok)
}

func TestController_ReconcilesByDiff(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1})
	client.set("bob", fetchReply{amount: 2})
	client.set("carol", fetchReply{amount: 3})
	h := newHarness(t, client)
	ctx := context.Background()

	require.NoError(t, h.ctrl.SetTrackedAccounts(ctx, []account.Account{alice, bob}))
	require.NoError(t, h.ctrl.SetTrackedAccounts(ctx, []account.Account{bob, carol}))

	assert.Equal(t, []string{"bob", "carol"}, h.ctrl.Tracked())
	assert.Equal(t, []account.Account{bob, carol}, h.ctrl.Accounts())
	assert.Equal(t, 1, client.count("alice"))
	assert.Equal(t, 1, client.count("bob"), "unchanged account is not refetched")
	assert.Equal(t, 1, client.count("carol"))
	assert.Equal(t, []string{"alice"}, h.dispatch.forgotten)
	assert.False(t, h.ctrl.RequestRefresh("alice"))

	// Same name, different identity: rebuilt and fetched again.
	rekeyed := bob
	rekeyed.Key = "key-bob-2"
	require.NoError(t, h.ctrl.SetTrackedAccounts(ctx, []account.Account{rekeyed, carol}))
	assert.Equal(t, 2, client.count("bob"))
	assert.Equal(t, 1, client.count("carol"))

	got, ok := h.ctrl.Account("bob")
	require.True(t, ok)
	assert.Equal(t, account.KeyHandle("key-bob-2"), got.Key)
}

func TestController_DisposedAccountResultIsDiscarded(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	client.next(t).reply <- fetchReply{amount: 10}
	require.NoError(t, <-done)

	h.ctrl.RequestRefresh("alice")
	h.clock.Advance(trigger.DefaultWindow)
	inflight := client.next(t)

	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), nil))
	inflight.reply <- fetchReply{amount: 99}
	h.ctrl.Wait()

	assert.Equal(t, uint64(10), cachedAmount(t, h.cache, "alice"))
	for _, u := range h.dispatch.all() {
		assert.NotEqual(t, uint64(99), u.AmountUnits)
	}
}

func TestController_RequestRefreshUntracked(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	h := newHarness(t, client)

	assert.False(t, h.ctrl.RequestRefresh("nobody"))
	h.settle()
	assert.Zero(t, client.count("nobody"))
	assert.Empty(t, h.dispatch.all())
}

func TestController_RefreshAll(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1})
	client.set("bob", fetchReply{amount: 2})
	h := newHarness(t, client)
	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice, bob}))

	h.ctrl.RefreshAll()
	h.ctrl.RefreshAll()
	h.settle()

	assert.Equal(t, 2, client.count("alice"))
	assert.Equal(t, 2, client.count("bob"))
}

func TestController_Invalidate(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000}, fetchReply{amount: 949})
	h := newHarness(t, client)
	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	assert.True(t, h.ctrl.Invalidate("alice"))
	_, ok, _ := h.cache.Get("alice")
	assert.False(t, ok)

	h.settle()

	assert.Equal(t, uint64(949), cachedAmount(t, h.cache, "alice"))
	updates := h.dispatch.compact()
	require.Len(t, updates, 2)
	assert.Equal(t, dispatched{"alice", 949, false, 3}, updates[1], "no cached dispatch after invalidation")
}

func TestController_InvalidateSupersedesInflight(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	client.next(t).reply <- fetchReply{amount: 1000}
	require.NoError(t, <-done)

	h.ctrl.RequestRefresh("alice")
	h.clock.Advance(trigger.DefaultWindow)
	before := client.next(t)

	h.ctrl.Invalidate("alice")
	before.reply <- fetchReply{amount: 1000}
	h.ctrl.Wait()

	_, ok, _ := h.cache.Get("alice")
	assert.False(t, ok, "pre-send balance must not refill the cache")

	h.clock.Advance(trigger.DefaultWindow)
	client.next(t).reply <- fetchReply{amount: 949}
	h.ctrl.Wait()
	assert.Equal(t, uint64(949), cachedAmount(t, h.cache, "alice"))
}

func TestController_FreshBalanceBypassesCache(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 700})
	h := newHarness(t, client)
	h.cache.Put("alice", 1000)

	amount, err := h.ctrl.FreshBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), amount)
	assert.Equal(t, uint64(1000), cachedAmount(t, h.cache, "alice"))
	assert.Empty(t, h.dispatch.all())
}

func TestController_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newStaticFetcher())

	err := h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice, alice})
	require.ErrorIs(t, err, coinerr.ErrInvalidInput)
	assert.Empty(t, h.ctrl.Tracked())
}

func TestController_Close(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1})
	h := newHarness(t, client)
	require.NoError(t, h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	h.ctrl.Close()
	h.ctrl.Close()

	h.ctrl.RequestRefresh("alice")
	h.settle()
	assert.Equal(t, 1, client.count("alice"))

	err := h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{bob})
	require.ErrorIs(t, err, coinerr.ErrInvalidState)
}

func TestController_CloseCancelsInflight(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	client.next(t).reply <- fetchReply{amount: 1}
	require.NoError(t, <-done)

	h.ctrl.RequestRefresh("alice")
	h.clock.Advance(trigger.DefaultWindow)
	_ = client.next(t) // never answered

	closed := make(chan struct{})
	go func() {
		h.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight fetch")
	}
	assert.Len(t, h.dispatch.all(), 2)
}

func TestController_CloseCancelsFirstFetch(t *testing.T) {
	t.Parallel()
	client := newBlockingFetcher()
	h := newHarness(t, client)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}) }()
	_ = client.next(t) // never answered

	closed := make(chan struct{})
	go func() {
		h.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the first fetch")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SetTrackedAccounts did not return after Close")
	}
}

func TestController_WithRealState(t *testing.T) {
	t.Parallel()
	client := newStaticFetcher()
	client.set("alice", fetchReply{amount: 1000})
	st := state.New()
	updates, cancel := st.Subscribe(4)
	defer cancel()

	ctrl := NewController(Config{Client: client, Cache: cache.NewBalanceCache(), State: st})
	defer ctrl.Close()

	require.NoError(t, ctrl.SetTrackedAccounts(context.Background(), []account.Account{alice}))

	u := <-updates
	assert.Equal(t, "alice", u.Account)
	assert.Equal(t, uint64(1000), u.AmountUnits)
	got, ok := st.Balance("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(1000), got.AmountUnits)
}
