// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import "fmt"

// ErrorCode identifies a kind of rule error.
type ErrorCode int

// Rule error codes. Callers receive the symbolic name, never a number.
const (
	// ErrUnavailable indicates the chain is not in a state to serve the
	// request.
	ErrUnavailable ErrorCode = iota

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound

	// ErrAlreadyHave indicates the submitted entity is already known.
	// Ingest pipelines treat it as success.
	ErrAlreadyHave

	// ErrMissingPrev indicates the predecessor of the submitted block is
	// unknown; the caller should request it.
	ErrMissingPrev

	// ErrStorage indicates an I/O or corruption failure. The operation
	// may be retried after restart.
	ErrStorage

	// ErrOutOfMemory indicates an allocation failure in the store.
	ErrOutOfMemory

	// ErrBlockInvalidFork indicates a block whose type does not match
	// the fork it extends.
	ErrBlockInvalidFork

	// ErrBlockProofOfWorkInvalid indicates a work proof below target or
	// with malformed bits.
	ErrBlockProofOfWorkInvalid

	// ErrBlockProofOfStakeInvalid indicates a stake proof that does not
	// reproduce the delegate agreement.
	ErrBlockProofOfStakeInvalid

	// ErrBlockTimestampOutOfRange indicates a block time outside the
	// allowed window.
	ErrBlockTimestampOutOfRange

	// ErrBlockCoinbaseInvalid indicates an invalid mint transaction.
	ErrBlockCoinbaseInvalid

	// ErrBlockTransactionsInvalid indicates an invalid packed
	// transaction set.
	ErrBlockTransactionsInvalid

	// ErrBlockSignatureInvalid indicates a bad block signature.
	ErrBlockSignatureInvalid

	// ErrBlockCertTxOutOfBound indicates a CERT count above the
	// per-destination allowance.
	ErrBlockCertTxOutOfBound

	// ErrTransactionInvalid indicates a structurally invalid
	// transaction.
	ErrTransactionInvalid

	// ErrTransactionInputInvalid indicates an unresolvable or malformed
	// input.
	ErrTransactionInputInvalid

	// ErrTransactionNotEnoughFee indicates a fee below the minimum for
	// the carried data size.
	ErrTransactionNotEnoughFee

	// ErrTransactionSignatureInvalid indicates a bad transaction
	// signature.
	ErrTransactionSignatureInvalid

	// ErrTransactionConflictingInput indicates two transactions of one
	// block spending the same output.
	ErrTransactionConflictingInput
)

var errorCodeStrings = map[ErrorCode]string{
	ErrUnavailable:                 "UNAVAILABLE",
	ErrNotFound:                    "NOT_FOUND",
	ErrAlreadyHave:                 "ALREADY_HAVE",
	ErrMissingPrev:                 "MISSING_PREV",
	ErrStorage:                     "SYS_STORAGE_ERROR",
	ErrOutOfMemory:                 "SYS_OUT_OF_MEMORY",
	ErrBlockInvalidFork:            "BLOCK_INVALID_FORK",
	ErrBlockProofOfWorkInvalid:     "BLOCK_PROOF_OF_WORK_INVALID",
	ErrBlockProofOfStakeInvalid:    "BLOCK_PROOF_OF_STAKE_INVALID",
	ErrBlockTimestampOutOfRange:    "BLOCK_TIMESTAMP_OUT_OF_RANGE",
	ErrBlockCoinbaseInvalid:        "BLOCK_COINBASE_INVALID",
	ErrBlockTransactionsInvalid:    "BLOCK_TRANSACTIONS_INVALID",
	ErrBlockSignatureInvalid:       "BLOCK_SIGNATURE_INVALID",
	ErrBlockCertTxOutOfBound:       "BLOCK_CERTTX_OUT_OF_BOUND",
	ErrTransactionInvalid:          "TRANSACTION_INVALID",
	ErrTransactionInputInvalid:     "TRANSACTION_INPUT_INVALID",
	ErrTransactionNotEnoughFee:     "TRANSACTION_NOT_ENOUGH_FEE",
	ErrTransactionSignatureInvalid: "TRANSACTION_SIGNATURE_INVALID",
	ErrTransactionConflictingInput: "TRANSACTION_CONFLICTING_INPUT",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use type assertions to access the
// ErrorCode field to ascertain the specific reason for the failure.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// ErrorIs reports whether err is a RuleError with the given code.
func ErrorIs(err error, code ErrorCode) bool {
	ruleErr, ok := err.(RuleError)
	return ok && ruleErr.ErrorCode == code
}

// IsDuplicate reports whether err means the entity was already known.
func IsDuplicate(err error) bool {
	return ErrorIs(err, ErrAlreadyHave)
}
