package history

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/ticker"
)

// Poller re-syncs history on every tick. Start and Stop may each be called
// once; Stop waits for an in-progress sync to return.
type Poller struct {
	syncer   *Syncer
	ticker   ticker.Ticker
	accounts AccountSource
	onSync   func([]SyncResult)

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSyncHook registers fn to receive the results of every tick.
func WithSyncHook(fn func([]SyncResult)) PollerOption {
	return func(p *Poller) {
		p.onSync = fn
	}
}

// NewPoller creates a poller that syncs the accounts returned by accounts
// whenever t ticks. Production code passes ticker.New(interval); tests pass
// ticker.NewForce and drive ticks by hand.
func NewPoller(syncer *Syncer, t ticker.Ticker, accounts AccountSource, opts ...PollerOption) *Poller {
	p := &Poller{
		syncer:   syncer,
		ticker:   t,
		accounts: accounts,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start resumes the ticker and launches the polling goroutine.
func (p *Poller) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel

		p.ticker.Resume()
		p.wg.Add(1)
		go p.run(ctx)
	})
}

// Stop halts polling, cancels an in-progress sync and waits for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.ticker.Stop()
	})
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ticker.Ticks():
			results := p.syncer.SyncAll(ctx, p.accounts())
			if p.onSync != nil {
				p.onSync(results)
			}

		case <-p.quit:
			return
		}
	}
}
