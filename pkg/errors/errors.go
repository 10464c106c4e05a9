// Package errors defines the coinsync error taxonomy. Every failure a user
// can see maps to a CoinError with a stable code, a process exit code and a
// class that tells the sync and send layers how to react.
//
//nolint:revive // package name intentionally shadows stdlib
package errors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitInput      = 2
	ExitAuth       = 3
	ExitNotFound   = 4
	ExitPermission = 5 // also insufficient funds
	ExitNetwork    = 6
)

// Class groups codes by how callers react to them.
type Class int

// Error classes.
const (
	// ClassGeneral errors end the command.
	ClassGeneral Class = iota
	// ClassValidation errors are user-correctable send input problems,
	// shown inline and never retried.
	ClassValidation
	// ClassFlow errors come from the send state machine.
	ClassFlow
	// ClassTransport errors happened at the node boundary and may be
	// retried for reads.
	ClassTransport
)

// CoinError is a classified error. Sentinels are compared by Code, so a
// copy carrying a cause or details still matches its sentinel.
type CoinError struct {
	Code       string
	Message    string
	Details    map[string]string
	Suggestion string
	Cause      error
	ExitCode   int
	Class      Class
}

func (e *CoinError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		_, _ = fmt.Fprintf(&sb, " (%s: %s)", k, e.Details[k])
	}
	if e.Cause != nil {
		_, _ = fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *CoinError) Unwrap() error {
	return e.Cause
}

// Is matches any CoinError with the same code.
func (e *CoinError) Is(target error) bool {
	var t *CoinError
	return errors.As(target, &t) && e.Code == t.Code
}

func sentinel(class Class, exit int, code, message string) *CoinError {
	return &CoinError{Code: code, Message: message, ExitCode: exit, Class: class}
}

// General errors.
var (
	ErrGeneral         = sentinel(ClassGeneral, ExitGeneral, "GENERAL_ERROR", "an error occurred")
	ErrInvalidInput    = sentinel(ClassGeneral, ExitInput, "INVALID_INPUT", "invalid input")
	ErrNotFound        = sentinel(ClassGeneral, ExitNotFound, "NOT_FOUND", "resource not found")
	ErrAccountNotFound = sentinel(ClassGeneral, ExitNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	ErrConfigNotFound  = sentinel(ClassGeneral, ExitNotFound, "CONFIG_NOT_FOUND", "configuration file not found")
	ErrConfigInvalid   = sentinel(ClassGeneral, ExitInput, "CONFIG_INVALID", "configuration file is invalid")
)

// Send validation errors.
var (
	ErrToAddressRequired = sentinel(ClassValidation, ExitInput, "TO_ADDRESS_REQUIRED", "destination address is required")
	ErrAmountRequired    = sentinel(ClassValidation, ExitInput, "AMOUNT_REQUIRED", "amount is required")
	ErrInvalidAmount     = sentinel(ClassValidation, ExitInput, "INVALID_AMOUNT", "amount is invalid")
	ErrInvalidFee        = sentinel(ClassValidation, ExitInput, "INVALID_FEE", "fee is invalid")
	ErrAmountNotPositive = sentinel(ClassValidation, ExitInput, "AMOUNT_NOT_POSITIVE", "amount must be greater than zero")
	ErrInsufficientFunds = sentinel(ClassValidation, ExitPermission, "INSUFFICIENT_FUNDS", "insufficient account balance")
	ErrFeeBelowMinimum   = sentinel(ClassValidation, ExitInput, "FEE_BELOW_MINIMUM",
		"fee per kb is lower than the network minimum")
	ErrFeeNotEstimated = sentinel(ClassValidation, ExitInput, "FEE_NOT_ESTIMATED",
		"no fee estimate for the current amount and destination")
)

// Send flow errors.
var (
	ErrInvalidState = sentinel(ClassFlow, ExitInput, "INVALID_STATE",
		"operation not allowed in the current send state")
	ErrConfirmationRequired = sentinel(ClassFlow, ExitInput, "CONFIRMATION_REQUIRED",
		"a valid confirmation token is required")
	ErrTokenMismatch = sentinel(ClassFlow, ExitInput, "CONFIRMATION_MISMATCH",
		"confirmation does not match the current send request")
	ErrTokenExpired = sentinel(ClassFlow, ExitInput, "CONFIRMATION_EXPIRED", "confirmation has expired")
	ErrTokenUsed    = sentinel(ClassFlow, ExitInput, "CONFIRMATION_USED", "confirmation has already been used")
)

// Node boundary errors.
var (
	ErrNetwork    = sentinel(ClassTransport, ExitNetwork, "NETWORK_ERROR", "network communication failed")
	ErrRPC        = sentinel(ClassTransport, ExitNetwork, "RPC_ERROR", "node rejected the request")
	ErrTxRejected = sentinel(ClassGeneral, ExitGeneral, "TX_REJECTED", "transaction rejected by node")

	// ErrStaleToken marks a fetch result that arrived after its token was
	// superseded. It is logged, never shown to the user.
	ErrStaleToken = sentinel(ClassGeneral, ExitGeneral, "STALE_TOKEN", "result discarded: fetch token superseded")
)

// New creates a general error with its own code.
func New(code, message string) *CoinError {
	return sentinel(ClassGeneral, ExitGeneral, code, message)
}

// derive copies the CoinError inside err, or wraps a plain err as
// GENERAL_ERROR, and applies edit to the copy.
func derive(err error, edit func(c *CoinError)) error {
	if err == nil {
		return nil
	}
	var c CoinError
	var ce *CoinError
	if errors.As(err, &ce) {
		c = *ce
	} else {
		c = CoinError{Code: ErrGeneral.Code, Message: err.Error(), Cause: err, ExitCode: ExitGeneral}
	}
	edit(&c)
	return &c
}

// Wrap prefixes err's message with context and keeps its code.
func Wrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return derive(err, func(c *CoinError) {
		if c.Cause == err {
			c.Message = msg
			return
		}
		c.Message = msg + ": " + c.Message
	})
}

// WithCause returns a copy of a sentinel carrying cause.
func WithCause(s *CoinError, cause error) error {
	c := *s
	c.Cause = cause
	return &c
}

// WithDetails returns err with details attached.
func WithDetails(err error, details map[string]string) error {
	return derive(err, func(c *CoinError) { c.Details = details })
}

// WithSuggestion returns err with a hint on how to fix it.
func WithSuggestion(err error, suggestion string) error {
	return derive(err, func(c *CoinError) { c.Suggestion = suggestion })
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *CoinError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return ExitGeneral
}

// Code returns err's code, GENERAL_ERROR for plain errors.
func Code(err error) string {
	var ce *CoinError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrGeneral.Code
}

// ClassOf returns err's class, ClassGeneral for plain errors.
func ClassOf(err error) Class {
	var ce *CoinError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassGeneral
}

// IsValidation reports whether err is a user-correctable send input error.
func IsValidation(err error) bool {
	return err != nil && ClassOf(err) == ClassValidation
}

// IsTransport reports whether err originated at the node boundary.
func IsTransport(err error) bool {
	return err != nil && ClassOf(err) == ClassTransport
}

// Is wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
