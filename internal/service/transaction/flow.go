// Package transaction implements sending from an account: fee estimation
// for the form, validation, and the confirm-then-submit state machine.
//
// A send moves Editing → Validating → AwaitingConfirmation → Submitting and
// ends Completed or Failed. Passing validation issues a single-use,
// expiring confirmation token bound to the validated from, to, amount and
// fee. Confirm is the only way to submit, and a submission is never
// retried. A failed submission returns the form to Editing with its input
// intact.
package transaction

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/trigger"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// DefaultConfirmationTTL is how long a confirmation token stays valid.
const DefaultConfirmationTTL = 2 * time.Minute

// FlowConfig holds the dependencies of a SendFlow.
type FlowConfig struct {
	Validator *Validator
	Fees      *FeePipeline
	Sender    Sender
	Balances  BalanceInvalidator
	History   HistoryRecorder
	Metrics   MetricsRecorder
	Logger    LogWriter
	Clock     trigger.Clock

	ConfirmationTTL time.Duration

	// OnTransition observes every state change, in order.
	OnTransition func(from, to State)
}

type transition struct {
	from, to State
}

// SendFlow is the state machine of one send form. It owns the confirmation
// token; nothing outside the flow can submit. Safe for concurrent use.
type SendFlow struct {
	validator    *Validator
	fees         *FeePipeline
	sender       Sender
	balances     BalanceInvalidator
	history      HistoryRecorder
	metrics      MetricsRecorder
	logger       LogWriter
	clock        trigger.Clock
	ttl          time.Duration
	onTransition func(from, to State)

	mu           sync.Mutex
	state        State
	input        Input
	rev          uint64
	confirmation *Confirmation
	spent        map[string]struct{}
	lastErr      error
	result       *SendResult
	transitions  []transition
}

// NewSendFlow creates a flow in the Editing state with empty input.
func NewSendFlow(cfg FlowConfig) *SendFlow {
	f := &SendFlow{
		validator:    cfg.Validator,
		fees:         cfg.Fees,
		sender:       cfg.Sender,
		balances:     cfg.Balances,
		history:      cfg.History,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		ttl:          cfg.ConfirmationTTL,
		onTransition: cfg.OnTransition,
		state:        StateEditing,
		spent:        make(map[string]struct{}),
	}
	if f.clock == nil {
		f.clock = trigger.SystemClock()
	}
	if f.ttl <= 0 {
		f.ttl = DefaultConfirmationTTL
	}
	if f.validator == nil {
		f.validator = NewValidator(nil)
	}
	return f
}

// State returns the current state.
func (f *SendFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Input returns the current form input.
func (f *SendFlow) Input() Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// LastError returns the most recent validation or submission error. It is
// cleared by Edit and by a successful submission.
func (f *SendFlow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Confirmation returns the confirmation awaiting the user, if any.
func (f *SendFlow) Confirmation() fn.Option[Confirmation] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmation == nil {
		return fn.None[Confirmation]()
	}
	return fn.Some(*f.confirmation)
}

// Result returns the last completed submission, if any.
func (f *SendFlow) Result() fn.Option[SendResult] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return fn.None[SendResult]()
	}
	return fn.Some(*f.result)
}

// Edit replaces the form input and returns to Editing. Any held
// confirmation is dropped. Not allowed while submitting.
func (f *SendFlow) Edit(in Input) error {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.unlock()
		return coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"state": StateSubmitting.String()})
	}
	f.input = in
	f.rev++
	f.confirmation = nil
	f.lastErr = nil
	f.setLocked(StateEditing)
	f.unlock()

	if f.fees != nil {
		f.fees.Update(f.feeRequest(in))
	}
	return nil
}

// PrefillFromRecord fills the form from a past transaction so it can be
// sent again: first receiver, amount and privacy flag. The from account is
// kept.
func (f *SendFlow) PrefillFromRecord(rec node.TransactionRecord) error {
	if len(rec.Receivers) == 0 {
		return coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"tx": rec.TxID, "reason": "no receivers"})
	}

	in := Input{
		From:       f.Input().From,
		ToAddress:  rec.Receivers[0],
		AmountText: node.FormatUnits(rec.AmountUnits, f.validator.Decimals()),
		Privacy:    rec.IsPrivacy,
	}
	return f.Edit(in)
}

// RefreshFee estimates the fee for the current input immediately.
func (f *SendFlow) RefreshFee(ctx context.Context) (node.FeeQuote, error) {
	if f.fees == nil {
		return node.FeeQuote{}, coinerr.ErrFeeNotEstimated
	}
	return f.fees.EstimateNow(ctx)
}

// Validate checks the current input. On success the flow awaits
// confirmation and the returned Confirmation carries the token to pass to
// Confirm. On failure the flow returns to Editing and the error is kept in
// LastError.
func (f *SendFlow) Validate(ctx context.Context) (*Confirmation, error) {
	f.mu.Lock()
	if f.state != StateEditing {
		state := f.state
		f.unlock()
		return nil, coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"state": state.String()})
	}
	in, rev := f.input, f.rev
	f.setLocked(StateValidating)
	f.unlock()

	quote := fn.None[node.FeeQuote]()
	if f.fees != nil {
		quote = f.fees.Quote()
	}
	v, err := f.validator.Validate(ctx, in, quote)

	var token string
	if err == nil {
		token, err = newConfirmationToken()
	}

	f.mu.Lock()
	defer f.unlock()

	if f.rev != rev || f.state != StateValidating {
		return nil, coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"reason": "input changed during validation"})
	}
	if err != nil {
		f.lastErr = err
		f.setLocked(StateEditing)
		return nil, err
	}

	now := f.clock.Now()
	conf := &Confirmation{
		Token:     token,
		Request:   v.Request,
		Quote:     v.Quote,
		Balance:   v.Balance,
		Warnings:  v.Warnings,
		IssuedAt:  now,
		ExpiresAt: now.Add(f.ttl),
	}
	f.confirmation = conf
	f.lastErr = nil
	f.setLocked(StateAwaitingConfirmation)

	out := *conf
	return &out, nil
}

// Dismiss drops a pending confirmation and returns to Editing.
func (f *SendFlow) Dismiss() {
	f.mu.Lock()
	defer f.unlock()

	if f.state != StateAwaitingConfirmation {
		return
	}
	f.confirmation = nil
	f.setLocked(StateEditing)
}

// Confirm consumes the confirmation token and submits the transaction
// exactly once. On success the sender's cached balance is invalidated and
// a pending record is added to history.
func (f *SendFlow) Confirm(ctx context.Context, token string) (*SendResult, error) {
	req, err := f.consume(token)
	if err != nil {
		return nil, err
	}

	txID, err := f.sender.SendTransaction(ctx, node.SendParams{
		Key:      req.From.Key,
		Outputs:  map[string]uint64{req.ToAddress: req.AmountUnits},
		FeeUnits: req.FeeUnits,
		Privacy:  req.Privacy,
	})
	if f.metrics != nil {
		f.metrics.RecordSend(err)
	}

	if err != nil {
		if f.logger != nil {
			f.logger.Error("send: submission from %s failed: %v", req.From.Name, err)
		}
		f.mu.Lock()
		f.lastErr = err
		f.setLocked(StateFailed)
		f.setLocked(StateEditing)
		f.unlock()
		return nil, err
	}

	record := node.TransactionRecord{
		TxID:        txID,
		Time:        f.clock.Now(),
		AmountUnits: req.AmountUnits,
		FeeUnits:    req.FeeUnits,
		Receivers:   []string{req.ToAddress},
		Direction:   node.DirectionOut,
		IsPrivacy:   req.Privacy,
		Status:      node.StatusPending,
	}
	f.afterSend(req, record)

	result := &SendResult{TxID: txID, Request: req, Record: record}

	f.mu.Lock()
	f.result = result
	f.lastErr = nil
	f.setLocked(StateCompleted)
	f.unlock()

	f.debug("send: %s submitted %d units to %s as %s", req.From.Name, req.AmountUnits, req.ToAddress, txID)
	out := *result
	return &out, nil
}

// consume checks the token against the held confirmation and moves to
// Submitting.
func (f *SendFlow) consume(token string) (SendRequest, error) {
	f.mu.Lock()
	defer f.unlock()

	if token == "" {
		return SendRequest{}, coinerr.ErrConfirmationRequired
	}
	if _, used := f.spent[token]; used {
		return SendRequest{}, coinerr.ErrTokenUsed
	}
	if f.state != StateAwaitingConfirmation || f.confirmation == nil {
		return SendRequest{}, coinerr.WithDetails(coinerr.ErrConfirmationRequired, map[string]string{"state": f.state.String()})
	}

	conf := f.confirmation
	if token != conf.Token {
		return SendRequest{}, coinerr.ErrTokenMismatch
	}
	if f.clock.Now().After(conf.ExpiresAt) {
		f.confirmation = nil
		f.lastErr = coinerr.ErrTokenExpired
		f.setLocked(StateEditing)
		return SendRequest{}, coinerr.ErrTokenExpired
	}
	if !f.boundToInputLocked(conf) {
		f.confirmation = nil
		f.lastErr = coinerr.ErrTokenMismatch
		f.setLocked(StateEditing)
		return SendRequest{}, coinerr.ErrTokenMismatch
	}

	f.spent[token] = struct{}{}
	f.confirmation = nil
	f.setLocked(StateSubmitting)
	return conf.Request, nil
}

// boundToInputLocked reports whether the confirmation still describes the
// form as it is now.
func (f *SendFlow) boundToInputLocked(conf *Confirmation) bool {
	in := f.input
	amount, err := node.ParseUnits(in.AmountText, f.validator.Decimals())
	if err != nil {
		return false
	}
	fee := conf.Quote.ComputedFeeUnits
	if feeText := strings.TrimSpace(in.FeeText); feeText != "" {
		if fee, err = node.ParseUnits(feeText, f.validator.Decimals()); err != nil {
			return false
		}
	}
	current := binding{from: in.From.Name, to: strings.TrimSpace(in.ToAddress), amount: amount, fee: fee}
	return current == conf.Request.binding()
}

func (f *SendFlow) afterSend(req SendRequest, record node.TransactionRecord) {
	if f.balances != nil {
		f.balances.Invalidate(req.From.Name)
	}
	if f.history != nil {
		if _, err := f.history.Upsert(req.From.Name, record); err != nil && f.logger != nil {
			f.logger.Error("send: recording %s in history failed: %v", record.TxID, err)
		}
	}
}

func (f *SendFlow) feeRequest(in Input) node.FeeRequest {
	amount, err := node.ParseUnits(in.AmountText, f.validator.Decimals())
	if err != nil {
		amount = 0
	}
	return node.FeeRequest{
		From:        in.From,
		ToAddress:   strings.TrimSpace(in.ToAddress),
		AmountUnits: amount,
		Privacy:     in.Privacy,
	}
}

func (f *SendFlow) setLocked(next State) {
	if f.state == next {
		return
	}
	f.transitions = append(f.transitions, transition{from: f.state, to: next})
	f.state = next
}

// unlock releases the lock and then reports queued transitions.
func (f *SendFlow) unlock() {
	pending := f.transitions
	f.transitions = nil
	f.mu.Unlock()

	if f.onTransition == nil {
		return
	}
	for _, t := range pending {
		f.onTransition(t.from, t.to)
	}
}

func (f *SendFlow) debug(format string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(format, args...)
	}
}
