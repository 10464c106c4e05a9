// Package node defines the boundary with the remote wallet node and provides
// the JSON-RPC implementation, retry policy, and rate limiting used to talk
// to it.
package node

import (
	"context"
	"time"

	"github.com/mrz1836/coinsync/internal/account"
)

// Direction is the direction of a transaction relative to an account.
type Direction string

// Transaction directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Status is the confirmation status of a transaction.
type Status string

// Transaction statuses. A record may only move from pending to one of the
// terminal states.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition reports whether a record in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusPending && next.IsTerminal()
}

// IsKnown reports whether s is one of the defined statuses.
func (s Status) IsKnown() bool {
	return s == StatusPending || s.IsTerminal()
}

// TransactionRecord is one entry of an account's transaction history.
type TransactionRecord struct {
	TxID        string    `json:"tx_id"`
	Time        time.Time `json:"time"`
	AmountUnits uint64    `json:"amount_units"`
	FeeUnits    uint64    `json:"fee_units"`
	Receivers   []string  `json:"receivers"`
	Direction   Direction `json:"direction"`
	IsPrivacy   bool      `json:"is_privacy"`
	Status      Status    `json:"status"`
}

// Clone returns a deep copy of the record.
func (r TransactionRecord) Clone() TransactionRecord {
	c := r
	if r.Receivers != nil {
		c.Receivers = append([]string(nil), r.Receivers...)
	}
	return c
}

// FeeQuote is a fee estimate for a specific amount and destination.
// Quotes are ephemeral and replaced wholesale on every estimation.
type FeeQuote struct {
	ToAddress         string  `json:"to_address"`
	AmountUnits       uint64  `json:"amount_units"`
	EstimatedTxSizeKb float64 `json:"estimated_tx_size_kb"`
	MinFeePerKb       uint64  `json:"min_fee_per_kb"`
	ComputedFeeUnits  uint64  `json:"computed_fee_units"`

	// ValidForAmount is true while the quote matches the form input it was
	// computed for. It is cleared when the input changes after estimation.
	ValidForAmount bool `json:"valid_for_amount"`
}

// Matches reports whether the quote was computed for the given destination
// and amount and is still valid.
func (q FeeQuote) Matches(to string, amount uint64) bool {
	return q.ValidForAmount && q.ToAddress == to && q.AmountUnits == amount
}

// FeeRequest describes a fee estimation.
type FeeRequest struct {
	From        account.Account
	ToAddress   string
	AmountUnits uint64
	Privacy     bool
}

// SendParams describes a transaction submission.
type SendParams struct {
	Key      account.KeyHandle
	Outputs  map[string]uint64
	FeeUnits uint64
	Privacy  bool
}

// TokenBalance is an account's holding of one custom or privacy token.
// Amounts are in the token's own base units.
type TokenBalance struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	AmountUnits uint64 `json:"amount_units"`
	Privacy     bool   `json:"privacy"`
}

// Client is the node boundary used by the sync layer.
// Read methods may be retried by the implementation; SendTransaction must
// never be retried automatically.
type Client interface {
	// GetBalance returns the spendable balance of the account in units.
	GetBalance(ctx context.Context, acct account.Account) (uint64, error)

	// GetHistory returns the account's transaction records.
	GetHistory(ctx context.Context, acct account.Account) ([]TransactionRecord, error)

	// EstimateFee returns a fee quote for sending amount to the destination.
	EstimateFee(ctx context.Context, req FeeRequest) (*FeeQuote, error)

	// SendTransaction signs and broadcasts a transaction and returns its id.
	SendTransaction(ctx context.Context, params SendParams) (string, error)

	// ListTokens returns the account's token balances, privacy tokens first.
	ListTokens(ctx context.Context, acct account.Account) ([]TokenBalance, error)
}
