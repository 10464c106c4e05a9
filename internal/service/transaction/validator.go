package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/mrz1836/coinsync/internal/node"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Validation is the outcome of a passing validation.
type Validation struct {
	Request  SendRequest
	Quote    node.FeeQuote
	Balance  uint64
	Warnings []error
}

// Validator checks a send form before a confirmation is issued.
type Validator struct {
	balances      BalanceChecker
	decimals      int
	enforceMinFee bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithDecimals sets the number of decimal places of entered amounts.
func WithDecimals(d int) ValidatorOption {
	return func(v *Validator) {
		v.decimals = d
	}
}

// WithEnforcedMinFee makes a fee below the network minimum per kb a
// blocking error instead of a warning.
func WithEnforcedMinFee(enforce bool) ValidatorOption {
	return func(v *Validator) {
		v.enforceMinFee = enforce
	}
}

// NewValidator creates a validator that re-checks balances with balances.
func NewValidator(balances BalanceChecker, opts ...ValidatorOption) *Validator {
	v := &Validator{balances: balances, decimals: node.DefaultDecimals}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Decimals returns the number of decimal places of entered amounts.
func (v *Validator) Decimals() int {
	return v.decimals
}

// parseAmount accepts a leading minus sign on an otherwise well-formed
// amount so that a negative number fails the positivity step rather than
// the numeric one.
func (v *Validator) parseAmount(text string) (uint64, bool, error) {
	amount, err := node.ParseUnits(text, v.decimals)
	if err == nil {
		return amount, false, nil
	}
	trimmed := strings.TrimSpace(text)
	magnitude, ok := strings.CutPrefix(trimmed, "-")
	if !ok {
		return 0, false, err
	}
	if amount, err = node.ParseUnits(magnitude, v.decimals); err != nil {
		return 0, false, coinerr.WithDetails(coinerr.ErrInvalidAmount, map[string]string{"amount": trimmed})
	}
	return amount, true, nil
}

// Validate runs the send checks in order and returns the first failure:
//
//  1. destination present
//  2. amount present and numeric
//  3. fee numeric
//  4. amount greater than zero
//  5. amount within a freshly fetched balance
//  6. a quote for this exact input, with fee per kb at or above the minimum
//
// Balance is only fetched once steps 1 to 4 pass. A fee below the minimum
// is returned as a warning unless the validator enforces it.
//
//nolint:gocyclo // sequential validation steps
func (v *Validator) Validate(ctx context.Context, in Input, quote fn.Option[node.FeeQuote]) (*Validation, error) {
	if in.From.Name == "" {
		return nil, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"field": "from account"})
	}

	to := strings.TrimSpace(in.ToAddress)
	if to == "" {
		return nil, coinerr.ErrToAddressRequired
	}

	amount, negative, err := v.parseAmount(in.AmountText)
	if err != nil {
		return nil, err
	}

	var (
		fee         uint64
		feeOverride bool
	)
	if feeText := strings.TrimSpace(in.FeeText); feeText != "" {
		fee, err = node.ParseUnits(feeText, v.decimals)
		if err != nil {
			return nil, coinerr.WithDetails(coinerr.ErrInvalidFee, map[string]string{"fee": feeText})
		}
		feeOverride = true
	}

	if negative || amount == 0 {
		return nil, coinerr.WithDetails(coinerr.ErrAmountNotPositive, map[string]string{
			"amount": strings.TrimSpace(in.AmountText),
		})
	}

	if v.balances == nil {
		return nil, coinerr.WithDetails(coinerr.ErrInvalidState, map[string]string{"reason": "no balance source"})
	}
	balance, err := v.balances.FreshBalance(ctx, in.From)
	if err != nil {
		return nil, coinerr.Wrap(err, "checking balance of %s", in.From.Name)
	}
	if amount > balance {
		return nil, coinerr.WithDetails(coinerr.ErrInsufficientFunds, map[string]string{
			"required":  node.FormatUnits(amount, v.decimals),
			"available": node.FormatUnits(balance, v.decimals),
		})
	}

	q, ok := matchingQuote(quote, to, amount)
	if !ok {
		return nil, coinerr.ErrFeeNotEstimated
	}
	if !feeOverride {
		fee = q.ComputedFeeUnits
	}

	result := &Validation{
		Request: SendRequest{
			From:        in.From,
			ToAddress:   to,
			AmountUnits: amount,
			FeeUnits:    fee,
			Privacy:     in.Privacy,
		},
		Quote:   q,
		Balance: balance,
	}

	if belowMinimum(fee, q) {
		feeErr := coinerr.WithDetails(coinerr.ErrFeeBelowMinimum, map[string]string{
			"fee per kb": fmt.Sprintf("%.2f", float64(fee)/q.EstimatedTxSizeKb),
			"minimum":    fmt.Sprintf("%d", q.MinFeePerKb),
		})
		if v.enforceMinFee {
			return nil, feeErr
		}
		result.Warnings = append(result.Warnings, feeErr)
	}

	return result, nil
}

func matchingQuote(quote fn.Option[node.FeeQuote], to string, amount uint64) (node.FeeQuote, bool) {
	q := quote.UnwrapOr(node.FeeQuote{})
	return q, quote.IsSome() && q.Matches(to, amount)
}

// belowMinimum reports whether fee / size < minimum per kb. A quote without
// a size cannot be checked.
func belowMinimum(fee uint64, q node.FeeQuote) bool {
	if q.EstimatedTxSizeKb <= 0 {
		return false
	}
	return float64(fee)/q.EstimatedTxSizeKb < float64(q.MinFeePerKb)
}
