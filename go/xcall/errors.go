// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package xcall

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ConstError is an error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// authorization
	ErrUnauthorized    = ConstError("unauthorized caller")
	ErrChainNotAllowed = ConstError("chain not allowlisted")
	ErrTokenNotAllowed = ConstError("token not allowlisted")
	ErrZeroAddress     = ConstError("zero address")
	ErrUntrustedSender = ConstError("untrusted source sender")

	// validation
	ErrLengthMismatch   = ConstError("token and amount counts differ")
	ErrGasLimitTooLow   = ConstError("gas limit below minimum")
	ErrGasLimitTooHigh  = ConstError("gas limit above maximum")
	ErrNotEnoughBalance = ConstError("not enough balance")
	ErrMalformedPayload = ConstError("malformed payload")

	// dispatch
	ErrReplay           = ConstError("replay detected")
	ErrMessageNotFailed = ConstError("message is not in failed state")

	// liquidity
	ErrInsufficientLiquidity = ConstError("insufficient unreserved liquidity")

	// executor
	ErrExecutorBusy       = ConstError("executor busy")
	ErrAlreadyInitialized = ConstError("executor already initialized")
	ErrInactive           = ConstError("executor not active")
	ErrDeadlineExceeded   = ConstError("execution deadline exceeded")
	ErrExecutionFailed    = ConstError("execution failed")

	// host
	ErrNotContract           = ConstError("target is not a contract")
	ErrOutOfGas              = ConstError("out of gas")
	ErrDepthExceeded         = ConstError("max call depth exceeded")
	ErrInsufficientBalance   = ConstError("insufficient balance")
	ErrInsufficientAllowance = ConstError("insufficient allowance")
	ErrReverted              = ConstError("execution reverted")
)

type UnauthorizedError struct {
	Caller common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized caller %v", e.Caller)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

type ChainNotAllowedError struct {
	Chain ChainID
}

func (e *ChainNotAllowedError) Error() string {
	return fmt.Sprintf("chain %d not allowlisted", e.Chain)
}

func (e *ChainNotAllowedError) Unwrap() error { return ErrChainNotAllowed }

// UntrustedSenderError reports a message from a source chain account other
// than the relay trusted on that chain.
type UntrustedSenderError struct {
	Chain   ChainID
	Sender  common.Address
	Trusted common.Address
}

func (e *UntrustedSenderError) Error() string {
	return fmt.Sprintf("sender %v on chain %d is not the trusted relay %v", e.Sender, e.Chain, e.Trusted)
}

func (e *UntrustedSenderError) Unwrap() error { return ErrUntrustedSender }

type TokenNotAllowedError struct {
	Token common.Address
}

func (e *TokenNotAllowedError) Error() string {
	return fmt.Sprintf("token %v not allowlisted", e.Token)
}

func (e *TokenNotAllowedError) Unwrap() error { return ErrTokenNotAllowed }

type LengthMismatchError struct {
	Tokens  int
	Amounts int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%d tokens but %d amounts", e.Tokens, e.Amounts)
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

type GasLimitTooLowError struct {
	Provided uint64
	Min      uint64
}

func (e *GasLimitTooLowError) Error() string {
	return fmt.Sprintf("gas limit %d below minimum %d", e.Provided, e.Min)
}

func (e *GasLimitTooLowError) Unwrap() error { return ErrGasLimitTooLow }

type GasLimitTooHighError struct {
	Provided uint64
	Max      uint64
}

func (e *GasLimitTooHighError) Error() string {
	return fmt.Sprintf("gas limit %d above maximum %d", e.Provided, e.Max)
}

func (e *GasLimitTooHighError) Unwrap() error { return ErrGasLimitTooHigh }

type NotEnoughBalanceError struct {
	Provided *uint256.Int
	Required *uint256.Int
}

func (e *NotEnoughBalanceError) Error() string {
	return fmt.Sprintf("not enough balance: provided %v, required %v", e.Provided, e.Required)
}

func (e *NotEnoughBalanceError) Unwrap() error { return ErrNotEnoughBalance }

// InsufficientLiquidityError reports that the funds of the relay not owed to
// any account do not cover an amount to be paid out.
type InsufficientLiquidityError struct {
	Token     common.Address
	Available *uint256.Int
	Required  *uint256.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity of token %v: available %v, required %v", e.Token, e.Available, e.Required)
}

func (e *InsufficientLiquidityError) Unwrap() error { return ErrInsufficientLiquidity }

type ReplayError struct {
	Key common.Hash
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay detected for %v", e.Key)
}

func (e *ReplayError) Unwrap() error { return ErrReplay }

type ExecutorBusyError struct {
	Executor common.Address
	Deadline uint64
}

func (e *ExecutorBusyError) Error() string {
	return fmt.Sprintf("executor %v busy until %d", e.Executor, e.Deadline)
}

func (e *ExecutorBusyError) Unwrap() error { return ErrExecutorBusy }

type DeadlineExceededError struct {
	Deadline uint64
	Now      uint64
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("execution deadline %d exceeded at %d", e.Deadline, e.Now)
}

func (e *DeadlineExceededError) Unwrap() error { return ErrDeadlineExceeded }

// ExecutionFailedError reports an unsuccessful target call. It matches both
// ErrExecutionFailed and the underlying cause.
type ExecutionFailedError struct {
	Target common.Address
	Cause  error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("execution of %v failed: %v", e.Target, e.Cause)
}

func (e *ExecutionFailedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Cause}
}
