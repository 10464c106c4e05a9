package transaction

import (
	"time"

	"github.com/mrz1836/coinsync/internal/account"
	"github.com/mrz1836/coinsync/internal/node"
)

// Input is the raw content of the send form.
type Input struct {
	From       account.Account
	ToAddress  string
	AmountText string

	// FeeText overrides the estimated fee when set.
	FeeText string
	Privacy bool
}

// SendRequest is a validated send. A confirmation token is bound to it.
type SendRequest struct {
	From        account.Account
	ToAddress   string
	AmountUnits uint64
	FeeUnits    uint64
	Privacy     bool
}

// binding is the part of a request a confirmation token is tied to.
type binding struct {
	from   string
	to     string
	amount uint64
	fee    uint64
}

func (r SendRequest) binding() binding {
	return binding{from: r.From.Name, to: r.ToAddress, amount: r.AmountUnits, fee: r.FeeUnits}
}

// Confirmation is issued by a passing validation. Its token is single-use
// and expires.
type Confirmation struct {
	Token     string
	Request   SendRequest
	Quote     node.FeeQuote
	Balance   uint64
	Warnings  []error
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SendResult describes a completed submission.
type SendResult struct {
	TxID    string
	Request SendRequest
	Record  node.TransactionRecord
}

// State is a send flow state.
type State int

// Send flow states.
const (
	StateEditing State = iota
	StateValidating
	StateAwaitingConfirmation
	StateSubmitting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
