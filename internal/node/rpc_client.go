package node

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node/rpc"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Methods names the node RPC methods used by RPCClient.
type Methods struct {
	Balance       string
	History       string
	Estimate      string
	Send          string
	CustomTokens  string
	PrivacyTokens string
}

// DefaultMethods returns the method names served by the wallet node.
func DefaultMethods() Methods {
	return Methods{
		Balance:       "getbalancebyprivatekey",
		History:       "gettransactionhistorybyprivatekey",
		Estimate:      "estimatefee",
		Send:          "createandsendtransaction",
		CustomTokens:  "getlistcustomtokenbalance",
		PrivacyTokens: "getlistprivacycustomtokenbalance",
	}
}

// autoFee asks the node to pick the fee itself.
const autoFee = -1

// Caller performs a single JSON-RPC call. Satisfied by *rpc.Client.
type Caller interface {
	Call(ctx context.Context, out any, method string, params ...any) error
}

// CallRecorder receives per-call timing. Satisfied by *metrics.Metrics.
type CallRecorder interface {
	RecordRPCCall(method string, duration time.Duration, err error)
}

// RPCClientConfig holds the dependencies of an RPCClient.
type RPCClientConfig struct {
	Caller   Caller
	Methods  Methods
	Backoff  Backoff
	Throttle *Throttle
	Recorder CallRecorder
}

// RPCClient implements Client over a node's JSON-RPC interface.
type RPCClient struct {
	caller   Caller
	methods  Methods
	backoff  Backoff
	throttle *Throttle
	recorder CallRecorder
}

// Compile-time interface check
var _ Client = (*RPCClient)(nil)

// NewRPCClient creates a node client. Zero-valued fields fall back to the
// defaults; a nil Throttle leaves calls unthrottled.
func NewRPCClient(cfg RPCClientConfig) *RPCClient {
	c := &RPCClient{
		caller:   cfg.Caller,
		methods:  cfg.Methods,
		backoff:  cfg.Backoff,
		throttle: cfg.Throttle,
		recorder: cfg.Recorder,
	}
	if c.methods == (Methods{}) {
		c.methods = DefaultMethods()
	}
	if c.backoff.Attempts == 0 {
		c.backoff = DefaultBackoff()
	}
	return c
}

// GetBalance returns the account balance in units.
func (c *RPCClient) GetBalance(ctx context.Context, acct account.Account) (uint64, error) {
	return Retry(ctx, c.backoff, func(ctx context.Context) (uint64, error) {
		var balance uint64
		err := c.call(ctx, &balance, c.methods.Balance, string(acct.Key))
		return balance, err
	})
}

// wireRecord is a history entry as returned by the node.
type wireRecord struct {
	TxID      string   `json:"txID"`
	Time      int64    `json:"time"`
	Amount    uint64   `json:"amount"`
	Fee       uint64   `json:"fee"`
	Receivers []string `json:"receivers"`
	IsIn      bool     `json:"isIn"`
	IsPrivacy int      `json:"isPrivacy"`
	Status    int      `json:"status"`
}

// Node status codes for history entries.
const (
	wireStatusFailed    = 0
	wireStatusSuccess   = 1
	wireStatusConfirmed = 2
)

func (w wireRecord) record() TransactionRecord {
	rec := TransactionRecord{
		TxID:        w.TxID,
		Time:        time.Unix(w.Time, 0).UTC(),
		AmountUnits: w.Amount,
		FeeUnits:    w.Fee,
		Receivers:   append([]string(nil), w.Receivers...),
		Direction:   DirectionOut,
		IsPrivacy:   w.IsPrivacy == 1,
		Status:      StatusPending,
	}
	if w.IsIn {
		rec.Direction = DirectionIn
	}
	switch w.Status {
	case wireStatusFailed:
		rec.Status = StatusFailed
	case wireStatusConfirmed:
		rec.Status = StatusConfirmed
	case wireStatusSuccess:
		rec.Status = StatusPending
	}
	return rec
}

// GetHistory returns the account's transaction history.
func (c *RPCClient) GetHistory(ctx context.Context, acct account.Account) ([]TransactionRecord, error) {
	return Retry(ctx, c.backoff, func(ctx context.Context) ([]TransactionRecord, error) {
		var wire []wireRecord
		if err := c.call(ctx, &wire, c.methods.History, string(acct.Key)); err != nil {
			return nil, err
		}
		records := make([]TransactionRecord, 0, len(wire))
		for _, w := range wire {
			if w.TxID == "" {
				continue
			}
			records = append(records, w.record())
		}
		return records, nil
	})
}

// wireFee is the node's fee estimation reply.
type wireFee struct {
	EstimateFeeCoinPerKb uint64  `json:"EstimateFeeCoinPerKb"`
	EstimateTxSizeInKb   float64 `json:"EstimateTxSizeInKb"`
	GOVFeePerKbTx        uint64  `json:"GOVFeePerKbTx"`
}

// EstimateFee returns a fee quote for the request.
func (c *RPCClient) EstimateFee(ctx context.Context, req FeeRequest) (*FeeQuote, error) {
	wire, err := Retry(ctx, c.backoff, func(ctx context.Context) (wireFee, error) {
		var w wireFee
		err := c.call(ctx, &w, c.methods.Estimate,
			string(req.From.Key),
			map[string]uint64{req.ToAddress: req.AmountUnits},
			autoFee,
			privacyFlag(req.Privacy),
		)
		return w, err
	})
	if err != nil {
		return nil, err
	}

	return &FeeQuote{
		ToAddress:         req.ToAddress,
		AmountUnits:       req.AmountUnits,
		EstimatedTxSizeKb: wire.EstimateTxSizeInKb,
		MinFeePerKb:       wire.GOVFeePerKbTx,
		ComputedFeeUnits:  uint64(math.Ceil(float64(wire.EstimateFeeCoinPerKb) * wire.EstimateTxSizeInKb)),
		ValidForAmount:    true,
	}, nil
}

// wireSend is the node's reply to a submitted transaction.
type wireSend struct {
	TxID string `json:"TxID"`
}

// SendTransaction submits a transaction exactly once.
func (c *RPCClient) SendTransaction(ctx context.Context, params SendParams) (string, error) {
	var w wireSend
	err := c.call(ctx, &w, c.methods.Send,
		string(params.Key),
		params.Outputs,
		int64(params.FeeUnits), //nolint:gosec // fee units are far below MaxInt64
		privacyFlag(params.Privacy),
	)
	if err != nil {
		return "", classifySendError(err)
	}
	if w.TxID == "" {
		return "", coinerr.WithCause(coinerr.ErrTxRejected, errors.New("node returned no transaction id"))
	}
	return w.TxID, nil
}

// wireTokens is the node's token balance reply. Custom tokens are looked up
// by payment address, privacy tokens by key.
type wireTokens struct {
	ListCustomTokenBalance []struct {
		Name    string `json:"Name"`
		Symbol  string `json:"Symbol"`
		Amount  uint64 `json:"Amount"`
		TokenID string `json:"TokenID"`
	} `json:"ListCustomTokenBalance"`
}

func (w wireTokens) balances(privacy bool) []TokenBalance {
	out := make([]TokenBalance, 0, len(w.ListCustomTokenBalance))
	for _, t := range w.ListCustomTokenBalance {
		if t.TokenID == "" {
			continue
		}
		out = append(out, TokenBalance{
			ID:          t.TokenID,
			Name:        t.Name,
			Symbol:      t.Symbol,
			AmountUnits: t.Amount,
			Privacy:     privacy,
		})
	}
	return out
}

// ListTokens returns privacy token balances followed by custom ones, each
// group sorted by symbol.
func (c *RPCClient) ListTokens(ctx context.Context, acct account.Account) ([]TokenBalance, error) {
	fetch := func(method string, privacy bool, param string) ([]TokenBalance, error) {
		return Retry(ctx, c.backoff, func(ctx context.Context) ([]TokenBalance, error) {
			var w wireTokens
			if err := c.call(ctx, &w, method, param); err != nil {
				return nil, err
			}
			return w.balances(privacy), nil
		})
	}

	private, err := fetch(c.methods.PrivacyTokens, true, string(acct.Key))
	if err != nil {
		return nil, err
	}
	custom, err := fetch(c.methods.CustomTokens, false, acct.Address)
	if err != nil {
		return nil, err
	}

	bySymbol := func(a, b TokenBalance) int { return cmp.Compare(a.Symbol, b.Symbol) }
	slices.SortStableFunc(private, bySymbol)
	slices.SortStableFunc(custom, bySymbol)
	return append(private, custom...), nil
}

// call applies throttling and metrics around one RPC round trip.
func (c *RPCClient) call(ctx context.Context, out any, method string, params ...any) error {
	if err := c.throttle.Wait(ctx, method); err != nil {
		return coinerr.WithCause(coinerr.ErrNetwork, err)
	}

	start := time.Now()
	err := c.caller.Call(ctx, out, method, params...)
	if c.recorder != nil {
		c.recorder.RecordRPCCall(method, time.Since(start), err)
	}
	return err
}

// classifySendError maps a node rejection for lack of funds to
// ErrInsufficientFunds; other failures keep their transport class.
func classifySendError(err error) error {
	var obj *rpc.ErrorObject
	if errors.As(err, &obj) && strings.Contains(strings.ToLower(obj.Message), "insufficient") {
		return coinerr.WithCause(coinerr.ErrInsufficientFunds, obj)
	}
	return fmt.Errorf("sending transaction: %w", err)
}

func privacyFlag(p bool) int {
	if p {
		return 1
	}
	return 0
}
