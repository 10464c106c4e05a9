package transaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/trigger"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// DefaultRequestTimeout bounds a single fee estimate.
const DefaultRequestTimeout = 20 * time.Second

// feeStaleSource labels discarded fee estimates in metrics.
const feeStaleSource = "fee"

// FeeConfig holds the dependencies of a FeePipeline.
type FeeConfig struct {
	Estimator      FeeEstimator
	Clock          trigger.Clock
	Window         time.Duration
	RequestTimeout time.Duration
	Metrics        MetricsRecorder
	Logger         LogWriter

	// OnQuote receives every applied quote.
	OnQuote func(node.FeeQuote)

	// OnError receives estimate failures of the current input.
	OnError func(error)
}

// FeePipeline keeps a fee quote in step with one send form. Input changes
// are debounced on the pipeline's own trigger; a reply for input that has
// since changed is discarded. Each form owns its own pipeline.
type FeePipeline struct {
	estimator FeeEstimator
	timeout   time.Duration
	metrics   MetricsRecorder
	logger    LogWriter
	onQuote   func(node.FeeQuote)
	onError   func(error)

	trigger *trigger.Trigger

	baseCtx context.Context //nolint:containedctx // cancelled by Close to stop background estimates
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	request node.FeeRequest
	quote   fn.Option[node.FeeQuote]
	lastErr error
	closed  bool
}

// NewFeePipeline creates a pipeline with no input.
func NewFeePipeline(cfg FeeConfig) *FeePipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &FeePipeline{
		estimator: cfg.Estimator,
		timeout:   cfg.RequestTimeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		onQuote:   cfg.OnQuote,
		onError:   cfg.OnError,
		baseCtx:   ctx,
		cancel:    cancel,
		quote:     fn.None[node.FeeQuote](),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultRequestTimeout
	}
	p.trigger = trigger.New(cfg.Window, p.onEmit, trigger.WithClock(cfg.Clock))
	return p
}

// Update records new form input and schedules an estimate. The held quote
// stops being valid as soon as it no longer matches the input. Input
// without a destination or a positive amount cancels pending estimates.
func (p *FeePipeline) Update(req node.FeeRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if req != p.request {
		// An estimate in flight for the old input must not land.
		p.trigger.Cancel()
	}
	p.request = req
	p.lastErr = nil
	p.quote = fn.MapOption(func(q node.FeeQuote) node.FeeQuote {
		q.ValidForAmount = q.ValidForAmount && q.ToAddress == req.ToAddress && q.AmountUnits == req.AmountUnits
		return q
	})(p.quote)

	if !estimable(req) {
		p.trigger.Cancel()
		return
	}
	p.trigger.Trigger()
}

// EstimateNow skips the debounce window and estimates the current input
// synchronously.
func (p *FeePipeline) EstimateNow(ctx context.Context) (node.FeeQuote, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return node.FeeQuote{}, coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"fee pipeline": "closed"})
	}
	req := p.request
	if !estimable(req) {
		p.mu.Unlock()
		return node.FeeQuote{}, coinerr.ErrFeeNotEstimated
	}
	token := p.trigger.FireNow()
	p.mu.Unlock()

	return p.estimate(ctx, req, token)
}

// Quote returns the latest applied quote, if any. Check ValidForAmount or
// Matches before relying on it.
func (p *FeePipeline) Quote() fn.Option[node.FeeQuote] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote
}

// Err returns the estimate failure for the current input, if any.
func (p *FeePipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Wait blocks until background estimates started so far have finished.
func (p *FeePipeline) Wait() {
	p.wg.Wait()
}

// Close stops the pipeline and waits for background estimates.
func (p *FeePipeline) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.trigger.Dispose()
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *FeePipeline) onEmit(token uint64) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	req := p.request
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		_, _ = p.estimate(p.baseCtx, req, token)
	}()
}

func (p *FeePipeline) estimate(ctx context.Context, req node.FeeRequest, token uint64) (node.FeeQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q, err := p.estimator.EstimateFee(ctx, req)
	if err == nil && q == nil {
		err = coinerr.WithCause(coinerr.ErrRPC, errors.New("empty fee estimate"))
	}

	p.mu.Lock()
	if !p.trigger.IsCurrent(token) {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordStaleDiscard(feeStaleSource)
		}
		p.debug("fee: %v (to %s, amount %d, token %d)", coinerr.ErrStaleToken, req.ToAddress, req.AmountUnits, token)
		if err != nil {
			return node.FeeQuote{}, err
		}
		return node.FeeQuote{}, coinerr.ErrStaleToken
	}

	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		if !errors.Is(err, context.Canceled) && p.logger != nil {
			p.logger.Error("fee: estimate for %s failed: %v", req.ToAddress, err)
		}
		if p.onError != nil {
			p.onError(err)
		}
		return node.FeeQuote{}, err
	}

	quote := *q
	quote.ToAddress = req.ToAddress
	quote.AmountUnits = req.AmountUnits
	quote.ValidForAmount = true
	p.quote = fn.Some(quote)
	p.lastErr = nil
	p.mu.Unlock()

	p.debug("fee: quote %d units for %d to %s (token %d)", quote.ComputedFeeUnits, quote.AmountUnits, quote.ToAddress, token)
	if p.onQuote != nil {
		p.onQuote(quote)
	}
	return quote, nil
}

func estimable(req node.FeeRequest) bool {
	return req.ToAddress != "" && req.AmountUnits > 0
}

func (p *FeePipeline) debug(format string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(format, args...)
	}
}
