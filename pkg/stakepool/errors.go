package stakepool

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode identifies a stake pool failure independently of its message.
// Codes are stable and are surfaced by the RPC layer.
type ErrorCode uint32

// Error codes.
const (
	CodeStaleLedger ErrorCode = iota + 1
	CodeTransientAlreadyInFlight
	CodeInsufficientReserve
	CodeInsufficientValidatorStake
	CodeBelowMinimumFloor
	CodeRegistryFull
	CodeValidatorNotEmpty
	CodeFundingAuthorityRequired
	CodeNoEligibleSource
	CodePreferredValidatorMismatch
	CodeValidatorNotFound
	CodeValidatorAlreadyAdded
	CodeStakeNotActive
	CodeExceededSlippage
	CodeFeeTooHigh
	CodeFeeIncreaseTooHigh
	CodeInvalidFee
	CodeWrongManager
	CodeWrongStaker
	CodeZeroAmount
	CodeInsufficientPoolTokens
	CodeDepositTooSmall
	CodeWithdrawalTooSmall
	CodeConcurrentModification
	CodeOracleInconsistent
	CodeCalculationFailure
	CodeInvalidFundingChannel
	CodeInvalidStakeAccount
)

var codeMessages = map[ErrorCode]string{
	CodeStaleLedger:                "ledger is stale: epoch update required",
	CodeTransientAlreadyInFlight:   "validator already has a transient stake operation in flight",
	CodeInsufficientReserve:        "insufficient reserve lamports",
	CodeInsufficientValidatorStake: "insufficient validator stake above the minimum floor",
	CodeBelowMinimumFloor:          "amount below the minimum floor",
	CodeRegistryFull:               "validator registry is full",
	CodeValidatorNotEmpty:          "validator still holds stake above the minimum floor",
	CodeFundingAuthorityRequired:   "funding authority co-signature required",
	CodeNoEligibleSource:           "no eligible withdrawal source",
	CodePreferredValidatorMismatch: "deposit does not match the preferred deposit validator",
	CodeValidatorNotFound:          "validator not found in registry",
	CodeValidatorAlreadyAdded:      "validator already in registry",
	CodeStakeNotActive:             "stake account is not fully active",
	CodeExceededSlippage:           "operation output below the requested minimum",
	CodeFeeTooHigh:                 "fee exceeds 100%",
	CodeFeeIncreaseTooHigh:         "fee increase exceeds the allowed maximum",
	CodeInvalidFee:                 "invalid fee",
	CodeWrongManager:               "signer is not the pool manager",
	CodeWrongStaker:                "signer is not the pool staker",
	CodeZeroAmount:                 "amount must be greater than zero",
	CodeInsufficientPoolTokens:     "insufficient pool tokens",
	CodeDepositTooSmall:            "deposit too small to mint pool tokens",
	CodeWithdrawalTooSmall:         "withdrawal too small to release lamports",
	CodeConcurrentModification:     "pool state changed since the operation began",
	CodeOracleInconsistent:         "oracle report is inconsistent with the registry",
	CodeCalculationFailure:         "arithmetic overflow or division by zero",
	CodeInvalidFundingChannel:      "invalid funding channel",
	CodeInvalidStakeAccount:        "invalid stake account",
}

// String returns the human-readable description of the code.
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("unknown stake pool error %d", uint32(c))
}

// PoolError is the typed failure returned by every engine operation.
// Errors are usually wrapped with context; use errors.Is against the
// sentinels below or CodeOf to recover the code.
type PoolError struct {
	Code ErrorCode
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Code.String()
}

// Sentinel errors, one per code.
var (
	ErrStaleLedger                = &PoolError{CodeStaleLedger}
	ErrTransientAlreadyInFlight   = &PoolError{CodeTransientAlreadyInFlight}
	ErrInsufficientReserve        = &PoolError{CodeInsufficientReserve}
	ErrInsufficientValidatorStake = &PoolError{CodeInsufficientValidatorStake}
	ErrBelowMinimumFloor          = &PoolError{CodeBelowMinimumFloor}
	ErrRegistryFull               = &PoolError{CodeRegistryFull}
	ErrValidatorNotEmpty          = &PoolError{CodeValidatorNotEmpty}
	ErrFundingAuthorityRequired   = &PoolError{CodeFundingAuthorityRequired}
	ErrNoEligibleSource           = &PoolError{CodeNoEligibleSource}
	ErrPreferredValidatorMismatch = &PoolError{CodePreferredValidatorMismatch}
	ErrValidatorNotFound          = &PoolError{CodeValidatorNotFound}
	ErrValidatorAlreadyAdded      = &PoolError{CodeValidatorAlreadyAdded}
	ErrStakeNotActive             = &PoolError{CodeStakeNotActive}
	ErrExceededSlippage           = &PoolError{CodeExceededSlippage}
	ErrFeeTooHigh                 = &PoolError{CodeFeeTooHigh}
	ErrFeeIncreaseTooHigh         = &PoolError{CodeFeeIncreaseTooHigh}
	ErrInvalidFee                 = &PoolError{CodeInvalidFee}
	ErrWrongManager               = &PoolError{CodeWrongManager}
	ErrWrongStaker                = &PoolError{CodeWrongStaker}
	ErrZeroAmount                 = &PoolError{CodeZeroAmount}
	ErrInsufficientPoolTokens     = &PoolError{CodeInsufficientPoolTokens}
	ErrDepositTooSmall            = &PoolError{CodeDepositTooSmall}
	ErrWithdrawalTooSmall         = &PoolError{CodeWithdrawalTooSmall}
	ErrConcurrentModification     = &PoolError{CodeConcurrentModification}
	ErrOracleInconsistent         = &PoolError{CodeOracleInconsistent}
	ErrCalculationFailure         = &PoolError{CodeCalculationFailure}
	ErrInvalidFundingChannel      = &PoolError{CodeInvalidFundingChannel}
	ErrInvalidStakeAccount        = &PoolError{CodeInvalidStakeAccount}
)

// CodeOf extracts the ErrorCode from err, or 0 if err is not a pool error.
func CodeOf(err error) ErrorCode {
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}
