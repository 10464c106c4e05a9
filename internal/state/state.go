// Package state holds the balances shown to the user and fans balance
// updates out to subscribers.
package state

import (
	"sort"
	"sync"
	"time"
)

// DefaultSubscriberBuffer is the channel capacity used when Subscribe is
// given a non-positive buffer.
const DefaultSubscriberBuffer = 16

// BalanceUpdate is a balance published for one account.
type BalanceUpdate struct {
	Account     string    `json:"account"`
	AmountUnits uint64    `json:"amount_units"`
	Cached      bool      `json:"cached"` // served from the balance cache ahead of a refresh
	Token       uint64    `json:"token"`
	At          time.Time `json:"at"`
}

// Recorder receives dispatch counts. Satisfied by *metrics.Metrics.
type Recorder interface {
	RecordDispatch()
	RecordDroppedDispatch()
}

// LogWriter is the subset of the application logger used here.
type LogWriter interface {
	Debug(format string, args ...any)
}

// Option configures a State.
type Option func(*State)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *State) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l LogWriter) Option {
	return func(s *State) { s.logger = l }
}

// State is the shared application state for balances.
// It is safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	balances map[string]BalanceUpdate
	subs     map[uint64]chan BalanceUpdate
	nextSub  uint64
	dropped  uint64
	closed   bool
	recorder Recorder
	logger   LogWriter
}

// New creates an empty State.
func New(opts ...Option) *State {
	s := &State{
		balances: make(map[string]BalanceUpdate),
		subs:     make(map[uint64]chan BalanceUpdate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch records the update as the account's current balance and
// delivers it to every subscriber. Delivery never blocks: a subscriber whose
// buffer is full misses the event, but Balance always reflects the newest
// dispatched value.
func (s *State) Dispatch(u BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.balances[u.Account] = u
	if s.recorder != nil {
		s.recorder.RecordDispatch()
	}

	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.dropped++
			if s.recorder != nil {
				s.recorder.RecordDroppedDispatch()
			}
			if s.logger != nil {
				s.logger.Debug("state: subscriber %d full, dropped update for %s (token %d)", id, u.Account, u.Token)
			}
		}
	}
}

// Subscribe returns a channel of future updates and a function that ends the
// subscription. The cancel function closes the channel and is safe to call
// more than once.
func (s *State) Subscribe(buffer int) (<-chan BalanceUpdate, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan BalanceUpdate, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Balance returns the latest update for an account.
func (s *State) Balance(account string) (BalanceUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.balances[account]
	return u, ok
}

// Balances returns the latest update of every account, sorted by name.
func (s *State) Balances() []BalanceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BalanceUpdate, 0, len(s.balances))
	for _, u := range s.balances {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// Forget removes an account's balance, for accounts no longer tracked.
func (s *State) Forget(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.balances, account)
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (s *State) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dropped
}

// Close ends every subscription. Later dispatches are ignored.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
