package sealevel

import (
	"errors"
	"fmt"
)

// instruction errors
var (
	InstrErrGenericError                       = errors.New("InstrErrGenericError")
	InstrErrInvalidArgument                    = errors.New("InstrErrInvalidArgument")
	InstrErrInvalidInstructionData             = errors.New("InstrErrInvalidInstructionData")
	InstrErrInvalidAccountData                 = errors.New("InstrErrInvalidAccountData")
	InstrErrAccountDataTooSmall                = errors.New("InstrErrAccountDataTooSmall")
	InstrErrInsufficientFunds                  = errors.New("InstrErrInsufficientFunds")
	InstrErrIncorrectProgramId                 = errors.New("InstrErrIncorrectProgramId")
	InstrErrMissingRequiredSignature           = errors.New("InstrErrMissingRequiredSignature")
	InstrErrAccountAlreadyInitialized          = errors.New("InstrErrAccountAlreadyInitialized")
	InstrErrUninitializedAccount               = errors.New("InstrErrUninitializedAccount")
	InstrErrUnbalancedInstruction              = errors.New("InstrErrUnbalancedInstruction")
	InstrErrModifiedProgramId                  = errors.New("InstrErrModifiedProgramId")
	InstrErrExternalAccountLamportSpend        = errors.New("InstrErrExternalAccountLamportSpend")
	InstrErrExternalAccountDataModified        = errors.New("InstrErrExternalAccountDataModified")
	InstrErrReadonlyLamportChange              = errors.New("InstrErrReadonlyLamportChange")
	InstrErrReadonlyDataModified               = errors.New("InstrErrReadonlyDataModified")
	InstrErrExecutableModified                 = errors.New("InstrErrExecutableModified")
	InstrErrNotEnoughAccountKeys               = errors.New("InstrErrNotEnoughAccountKeys")
	InstrErrAccountDataSizeChanged             = errors.New("InstrErrAccountDataSizeChanged")
	InstrErrAccountNotExecutable               = errors.New("InstrErrAccountNotExecutable")
	InstrErrAccountBorrowFailed                = errors.New("InstrErrAccountBorrowFailed")
	InstrErrAccountBorrowOutstanding           = errors.New("InstrErrAccountBorrowOutstanding")
	InstrErrExecutableDataModified             = errors.New("InstrErrExecutableDataModified")
	InstrErrExecutableLamportChange            = errors.New("InstrErrExecutableLamportChange")
	InstrErrExecutableAccountNotRentExempt     = errors.New("InstrErrExecutableAccountNotRentExempt")
	InstrErrUnsupportedProgramId               = errors.New("InstrErrUnsupportedProgramId")
	InstrErrCallDepth                          = errors.New("InstrErrCallDepth")
	InstrErrMissingAccount                     = errors.New("InstrErrMissingAccount")
	InstrErrReentrancyNotAllowed               = errors.New("InstrErrReentrancyNotAllowed")
	InstrErrMaxSeedLengthExceeded              = errors.New("InstrErrMaxSeedLengthExceeded")
	InstrErrInvalidSeeds                       = errors.New("InstrErrInvalidSeeds")
	InstrErrInvalidRealloc                     = errors.New("InstrErrInvalidRealloc")
	InstrErrComputationalBudgetExceeded        = errors.New("InstrErrComputationalBudgetExceeded")
	InstrErrPrivilegeEscalation                = errors.New("InstrErrPrivilegeEscalation")
	InstrErrProgramFailedToComplete            = errors.New("InstrErrProgramFailedToComplete")
	InstrErrImmutable                          = errors.New("InstrErrImmutable")
	InstrErrIncorrectAuthority                 = errors.New("InstrErrIncorrectAuthority")
	InstrErrInvalidAccountOwner                = errors.New("InstrErrInvalidAccountOwner")
	InstrErrArithmeticOverflow                 = errors.New("InstrErrArithmeticOverflow")
	InstrErrUnsupportedSysvar                  = errors.New("InstrErrUnsupportedSysvar")
	InstrErrIllegalOwner                       = errors.New("InstrErrIllegalOwner")
	InstrErrMaxAccountsDataAllocationsExceeded = errors.New("InstrErrMaxAccountsDataAllocationsExceeded")
	InstrErrMaxInstructionTraceLengthExceeded  = errors.New("InstrErrMaxInstructionTraceLengthExceeded")
)

// system program errors, surfaced as InstructionError::Custom
var (
	SystemProgErrAccountAlreadyInUse           = errors.New("SystemProgErrAccountAlreadyInUse")
	SystemProgErrResultWithNegativeLamports    = errors.New("SystemProgErrResultWithNegativeLamports")
	SystemProgErrInvalidProgramId              = errors.New("SystemProgErrInvalidProgramId")
	SystemProgErrInvalidAccountDataLength      = errors.New("SystemProgErrInvalidAccountDataLength")
	SystemProgErrMaxSeedLengthExceeded         = errors.New("SystemProgErrMaxSeedLengthExceeded")
	SystemProgErrAddressWithSeedMismatch       = errors.New("SystemProgErrAddressWithSeedMismatch")
	SystemProgErrNonceNoRecentBlockhashes      = errors.New("SystemProgErrNonceNoRecentBlockhashes")
	SystemProgErrNonceBlockhashNotExpired      = errors.New("SystemProgErrNonceBlockhashNotExpired")
	SystemProgErrNonceUnexpectedBlockhashValue = errors.New("SystemProgErrNonceUnexpectedBlockhashValue")
)

// legacy nonce errors, used until nonce errors are merged into system errors
var (
	NonceErrNoRecentBlockhashes = errors.New("NonceErrNoRecentBlockhashes")
	NonceErrNotExpired          = errors.New("NonceErrNotExpired")
	NonceErrUnexpectedValue     = errors.New("NonceErrUnexpectedValue")
	NonceErrBadAccountState     = errors.New("NonceErrBadAccountState")
)

// Solana numerical codes for instruction errors
const (
	InstrErrCodeGenericError                       = 0
	InstrErrCodeInvalidArgument                    = 1
	InstrErrCodeInvalidInstructionData             = 2
	InstrErrCodeInvalidAccountData                 = 3
	InstrErrCodeAccountDataTooSmall                = 4
	InstrErrCodeInsufficientFunds                  = 5
	InstrErrCodeIncorrectProgramId                 = 6
	InstrErrCodeMissingRequiredSignature           = 7
	InstrErrCodeAccountAlreadyInitialized          = 8
	InstrErrCodeUninitializedAccount               = 9
	InstrErrCodeUnbalancedInstruction              = 10
	InstrErrCodeModifiedProgramId                  = 11
	InstrErrCodeExternalAccountLamportSpend        = 12
	InstrErrCodeExternalAccountDataModified        = 13
	InstrErrCodeReadonlyLamportChange              = 14
	InstrErrCodeReadonlyDataModified               = 15
	InstrErrCodeExecutableModified                 = 17
	InstrErrCodeNotEnoughAccountKeys               = 19
	InstrErrCodeAccountDataSizeChanged             = 20
	InstrErrCodeAccountNotExecutable               = 21
	InstrErrCodeAccountBorrowFailed                = 22
	InstrErrCodeAccountBorrowOutstanding           = 23
	InstrErrCodeCustom                             = 25
	InstrErrCodeExecutableDataModified             = 27
	InstrErrCodeExecutableLamportChange            = 28
	InstrErrCodeExecutableAccountNotRentExempt     = 29
	InstrErrCodeUnsupportedProgramId               = 30
	InstrErrCodeCallDepth                          = 31
	InstrErrCodeMissingAccount                     = 32
	InstrErrCodeReentrancyNotAllowed               = 33
	InstrErrCodeMaxSeedLengthExceeded              = 34
	InstrErrCodeInvalidSeeds                       = 35
	InstrErrCodeInvalidRealloc                     = 36
	InstrErrCodeComputationalBudgetExceeded        = 37
	InstrErrCodePrivilegeEscalation                = 38
	InstrErrCodeProgramFailedToComplete            = 40
	InstrErrCodeImmutable                          = 42
	InstrErrCodeIncorrectAuthority                 = 43
	InstrErrCodeInvalidAccountOwner                = 46
	InstrErrCodeArithmeticOverflow                 = 47
	InstrErrCodeUnsupportedSysvar                  = 48
	InstrErrCodeIllegalOwner                       = 49
	InstrErrCodeMaxAccountsDataAllocationsExceeded = 50
	InstrErrCodeMaxInstructionTraceLengthExceeded  = 52
)

type instrErrInfo struct {
	code int
	msg  string
}

var instrErrTable = map[error]instrErrInfo{
	InstrErrGenericError:                       {InstrErrCodeGenericError, "generic instruction error"},
	InstrErrInvalidArgument:                    {InstrErrCodeInvalidArgument, "invalid program argument"},
	InstrErrInvalidInstructionData:             {InstrErrCodeInvalidInstructionData, "invalid instruction data"},
	InstrErrInvalidAccountData:                 {InstrErrCodeInvalidAccountData, "invalid account data for instruction"},
	InstrErrAccountDataTooSmall:                {InstrErrCodeAccountDataTooSmall, "account data too small for instruction"},
	InstrErrInsufficientFunds:                  {InstrErrCodeInsufficientFunds, "insufficient funds for instruction"},
	InstrErrIncorrectProgramId:                 {InstrErrCodeIncorrectProgramId, "incorrect program id for instruction"},
	InstrErrMissingRequiredSignature:           {InstrErrCodeMissingRequiredSignature, "missing required signature for instruction"},
	InstrErrAccountAlreadyInitialized:          {InstrErrCodeAccountAlreadyInitialized, "instruction requires an uninitialized account"},
	InstrErrUninitializedAccount:               {InstrErrCodeUninitializedAccount, "instruction requires an initialized account"},
	InstrErrUnbalancedInstruction:              {InstrErrCodeUnbalancedInstruction, "sum of account balances before and after instruction do not match"},
	InstrErrModifiedProgramId:                  {InstrErrCodeModifiedProgramId, "instruction illegally modified the program id of an account"},
	InstrErrExternalAccountLamportSpend:        {InstrErrCodeExternalAccountLamportSpend, "instruction spent from the balance of an account it does not own"},
	InstrErrExternalAccountDataModified:        {InstrErrCodeExternalAccountDataModified, "instruction modified data of an account it does not own"},
	InstrErrReadonlyLamportChange:              {InstrErrCodeReadonlyLamportChange, "instruction changed the balance of a read-only account"},
	InstrErrReadonlyDataModified:               {InstrErrCodeReadonlyDataModified, "instruction modified data of a read-only account"},
	InstrErrExecutableModified:                 {InstrErrCodeExecutableModified, "instruction changed executable bit of an account"},
	InstrErrNotEnoughAccountKeys:               {InstrErrCodeNotEnoughAccountKeys, "insufficient account keys for instruction"},
	InstrErrAccountDataSizeChanged:             {InstrErrCodeAccountDataSizeChanged, "program other than the account's owner changed the size of the account data"},
	InstrErrAccountNotExecutable:               {InstrErrCodeAccountNotExecutable, "instruction expected an executable account"},
	InstrErrAccountBorrowFailed:                {InstrErrCodeAccountBorrowFailed, "instruction tries to borrow reference for an account which is already borrowed"},
	InstrErrAccountBorrowOutstanding:           {InstrErrCodeAccountBorrowOutstanding, "instruction left account with an outstanding borrowed reference"},
	InstrErrExecutableDataModified:             {InstrErrCodeExecutableDataModified, "instruction changed executable accounts data"},
	InstrErrExecutableLamportChange:            {InstrErrCodeExecutableLamportChange, "instruction changed the balance of a executable account"},
	InstrErrExecutableAccountNotRentExempt:     {InstrErrCodeExecutableAccountNotRentExempt, "executable accounts must be rent exempt"},
	InstrErrUnsupportedProgramId:               {InstrErrCodeUnsupportedProgramId, "Unsupported program id"},
	InstrErrCallDepth:                          {InstrErrCodeCallDepth, "Cross-program invocation call depth too deep"},
	InstrErrMissingAccount:                     {InstrErrCodeMissingAccount, "An account required by the instruction is missing"},
	InstrErrReentrancyNotAllowed:               {InstrErrCodeReentrancyNotAllowed, "Cross-program invocation reentrancy not allowed for this instruction"},
	InstrErrMaxSeedLengthExceeded:              {InstrErrCodeMaxSeedLengthExceeded, "Length of the seed is too long for address generation"},
	InstrErrInvalidSeeds:                       {InstrErrCodeInvalidSeeds, "Provided seeds do not result in a valid address"},
	InstrErrInvalidRealloc:                     {InstrErrCodeInvalidRealloc, "Failed to reallocate account data"},
	InstrErrComputationalBudgetExceeded:        {InstrErrCodeComputationalBudgetExceeded, "Computational budget exceeded"},
	InstrErrPrivilegeEscalation:                {InstrErrCodePrivilegeEscalation, "Cross-program invocation with unauthorized signer or writable account"},
	InstrErrProgramFailedToComplete:            {InstrErrCodeProgramFailedToComplete, "Program failed to complete"},
	InstrErrImmutable:                          {InstrErrCodeImmutable, "Account is immutable"},
	InstrErrIncorrectAuthority:                 {InstrErrCodeIncorrectAuthority, "Incorrect authority provided"},
	InstrErrInvalidAccountOwner:                {InstrErrCodeInvalidAccountOwner, "Invalid account owner"},
	InstrErrArithmeticOverflow:                 {InstrErrCodeArithmeticOverflow, "Program arithmetic overflowed"},
	InstrErrUnsupportedSysvar:                  {InstrErrCodeUnsupportedSysvar, "Unsupported sysvar"},
	InstrErrIllegalOwner:                       {InstrErrCodeIllegalOwner, "Provided owner is not allowed"},
	InstrErrMaxAccountsDataAllocationsExceeded: {InstrErrCodeMaxAccountsDataAllocationsExceeded, "Accounts data allocations exceeded the maximum allowed per transaction"},
	InstrErrMaxInstructionTraceLengthExceeded:  {InstrErrCodeMaxInstructionTraceLengthExceeded, "Max instruction trace length exceeded"},
}

var customErrTable = map[error]uint32{
	SystemProgErrAccountAlreadyInUse:           0,
	SystemProgErrResultWithNegativeLamports:    1,
	SystemProgErrInvalidProgramId:              2,
	SystemProgErrInvalidAccountDataLength:      3,
	SystemProgErrMaxSeedLengthExceeded:         4,
	SystemProgErrAddressWithSeedMismatch:       5,
	SystemProgErrNonceNoRecentBlockhashes:      6,
	SystemProgErrNonceBlockhashNotExpired:      7,
	SystemProgErrNonceUnexpectedBlockhashValue: 8,

	NonceErrNoRecentBlockhashes: 0,
	NonceErrNotExpired:          1,
	NonceErrUnexpectedValue:     2,
	NonceErrBadAccountState:     3,
}

// CustomError is a program-defined error code, as returned by programs run
// through the interpreter.
type CustomError uint32

func (e CustomError) Error() string {
	return fmt.Sprintf("custom program error: %#x", uint32(e))
}

// CustomErrorCode returns the InstructionError::Custom payload for err.
func CustomErrorCode(err error) (uint32, bool) {
	var custom CustomError
	if errors.As(err, &custom) {
		return uint32(custom), true
	}
	for target, code := range customErrTable {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return 0, false
}

// InstructionErrorCode translates err to the discriminant of Solana's
// InstructionError enum. Unknown errors map to GenericError.
func InstructionErrorCode(err error) int {
	if _, ok := CustomErrorCode(err); ok {
		return InstrErrCodeCustom
	}
	for target, info := range instrErrTable {
		if errors.Is(err, target) {
			return info.code
		}
	}
	return InstrErrCodeGenericError
}

// DescribeInstructionError renders err the way program logs print it.
func DescribeInstructionError(err error) string {
	if code, ok := CustomErrorCode(err); ok {
		return CustomError(code).Error()
	}
	for target, info := range instrErrTable {
		if errors.Is(err, target) {
			return info.msg
		}
	}
	return err.Error()
}
