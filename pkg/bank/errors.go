package bank

import (
	"errors"

	"github.com/solana-playground/playnet/pkg/sealevel"
)

var (
	TxErrAccountLoadedTwice                = errors.New("TxErrAccountLoadedTwice")
	TxErrAccountNotFound                   = errors.New("TxErrAccountNotFound")
	TxErrProgramAccountNotFound            = errors.New("TxErrProgramAccountNotFound")
	TxErrInsufficientFundsForFee           = errors.New("TxErrInsufficientFundsForFee")
	TxErrInvalidAccountForFee              = errors.New("TxErrInvalidAccountForFee")
	TxErrAlreadyProcessed                  = errors.New("TxErrAlreadyProcessed")
	TxErrCallChainTooDeep                  = errors.New("TxErrCallChainTooDeep")
	TxErrMissingSignatureForFee            = errors.New("TxErrMissingSignatureForFee")
	TxErrSignatureFailure                  = errors.New("TxErrSignatureFailure")
	TxErrInvalidProgramForExecution        = errors.New("TxErrInvalidProgramForExecution")
	TxErrSanitizeFailure                   = errors.New("TxErrSanitizeFailure")
	TxErrInvalidWritableAccount            = errors.New("TxErrInvalidWritableAccount")
	TxErrAddressLookupTablesDisabled       = errors.New("TxErrAddressLookupTablesDisabled")
	TxErrMaxLoadedAccountsDataSizeExceeded = errors.New("TxErrMaxLoadedAccountsDataSizeExceeded")
)

// InstructionError is a transaction failure raised by one of its
// instructions.
type InstructionError = sealevel.InstructionError

// txErrReason labels err for the error counters.
func txErrReason(err error) string {
	var instrErr *InstructionError
	switch {
	case errors.As(err, &instrErr):
		return "instruction_error"
	case errors.Is(err, TxErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, TxErrProgramAccountNotFound):
		return "program_account_not_found"
	case errors.Is(err, TxErrInvalidAccountForFee):
		return "invalid_account_for_fee"
	case errors.Is(err, TxErrInsufficientFundsForFee):
		return "insufficient_funds"
	case errors.Is(err, TxErrInvalidProgramForExecution):
		return "invalid_program_for_execution"
	case errors.Is(err, TxErrInvalidWritableAccount):
		return "invalid_writable_account"
	case errors.Is(err, TxErrCallChainTooDeep):
		return "call_chain_too_deep"
	case errors.Is(err, TxErrMaxLoadedAccountsDataSizeExceeded):
		return "max_loaded_accounts_data_size_exceeded"
	case errors.Is(err, TxErrAlreadyProcessed):
		return "already_processed"
	default:
		return "sanitize_failure"
	}
}
