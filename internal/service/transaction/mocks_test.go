package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/trigger"
	"github.com/mrz1836/coinsync/internal/trigger/triggertest"
)

var (
	alice = account.Account{Name: "alice", Address: "addr-alice", Key: "key-alice"} //nolint:gochecknoglobals // test fixture
	start = time.Unix(1700000000, 0)                                               //nolint:gochecknoglobals // test fixture
)

// mockEstimator answers fee requests. When gate is set every call waits
// for a release before answering.
type mockEstimator struct {
	mu       sync.Mutex
	quote    node.FeeQuote
	err      error
	requests []node.FeeRequest
	gate     chan struct{}
	started  chan node.FeeRequest
}

func (m *mockEstimator) EstimateFee(ctx context.Context, req node.FeeRequest) (*node.FeeQuote, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	q, err, gate, started := m.quote, m.err, m.gate, m.started
	m.mu.Unlock()

	if started != nil {
		started <- req
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	q.ToAddress = req.ToAddress
	q.AmountUnits = req.AmountUnits
	q.ValidForAmount = true
	return &q, nil
}

func (m *mockEstimator) setQuote(q node.FeeQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quote = q
}

func (m *mockEstimator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockBalances struct {
	mu      sync.Mutex
	balance uint64
	err     error
	calls   int
}

func (m *mockBalances) FreshBalance(context.Context, account.Account) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.balance, m.err
}

func (m *mockBalances) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSender struct {
	mu     sync.Mutex
	txID   string
	err    error
	params []node.SendParams
}

func (m *mockSender) SendTransaction(_ context.Context, params node.SendParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = append(m.params, params)
	return m.txID, m.err
}

func (m *mockSender) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.params)
}

type mockInvalidator struct {
	mu    sync.Mutex
	names []string
}

func (m *mockInvalidator) Invalidate(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return true
}

type mockMetrics struct {
	mu    sync.Mutex
	stale int
	sends []error
}

func (m *mockMetrics) RecordStaleDiscard(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale++
}

func (m *mockMetrics) RecordSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, err)
}

func (m *mockMetrics) staleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

type mockLog struct {
	mu     sync.Mutex
	errors []string
}

func (*mockLog) Debug(string, ...any) {}

func (l *mockLog) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func newFakeClock() *triggertest.FakeClock {
	return triggertest.NewFakeClock(start)
}

// feeWindow is the debounce window used by the tests.
const feeWindow = trigger.DefaultWindow
