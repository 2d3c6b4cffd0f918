package sealevel

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/ryanavella/wide"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/rent"
	"github.com/solana-playground/playnet/pkg/safemath"
)

// MaxPermittedAccountsDataAllocationsPerTransaction bounds the growth of
// account data within one transaction.
const MaxPermittedAccountsDataAllocationsPerTransaction = 2 * SystemProgMaxPermittedDataLen

const borrowedExclusive = -1

// TransactionAccounts is the arena of working accounts for one transaction.
// Each slot carries a borrow counter: 0 when free, n > 0 while shared by n
// readers, borrowedExclusive while held by a BorrowedAccount.
type TransactionAccounts struct {
	Accounts []*accounts.Account
	borrows  []int
	touched  []bool
}

func NewTransactionAccounts(accts []*accounts.Account) *TransactionAccounts {
	return &TransactionAccounts{
		Accounts: accts,
		borrows:  make([]int, len(accts)),
		touched:  make([]bool, len(accts)),
	}
}

func (txAccounts *TransactionAccounts) Len() uint64 {
	return uint64(len(txAccounts.Accounts))
}

func (txAccounts *TransactionAccounts) GetAccount(idx uint64) (*accounts.Account, error) {
	if idx >= txAccounts.Len() {
		return nil, InstrErrNotEnoughAccountKeys
	}
	return txAccounts.Accounts[idx], nil
}

func (txAccounts *TransactionAccounts) TryBorrowMut(idx uint64) (*accounts.Account, error) {
	if idx >= txAccounts.Len() {
		return nil, InstrErrMissingAccount
	}
	if txAccounts.borrows[idx] != 0 {
		return nil, InstrErrAccountBorrowFailed
	}
	txAccounts.borrows[idx] = borrowedExclusive
	return txAccounts.Accounts[idx], nil
}

// TryBorrow takes a shared borrow. Release it with Unborrow.
func (txAccounts *TransactionAccounts) TryBorrow(idx uint64) (*accounts.Account, error) {
	if idx >= txAccounts.Len() {
		return nil, InstrErrMissingAccount
	}
	if txAccounts.borrows[idx] == borrowedExclusive {
		return nil, InstrErrAccountBorrowFailed
	}
	txAccounts.borrows[idx]++
	return txAccounts.Accounts[idx], nil
}

func (txAccounts *TransactionAccounts) Unborrow(idx uint64) {
	if txAccounts.borrows[idx] > 0 {
		txAccounts.borrows[idx]--
	}
}

func (txAccounts *TransactionAccounts) UnborrowMut(idx uint64) {
	txAccounts.borrows[idx] = 0
}

func (txAccounts *TransactionAccounts) IsBorrowedExclusive(idx uint64) bool {
	return idx < txAccounts.Len() && txAccounts.borrows[idx] == borrowedExclusive
}

func (txAccounts *TransactionAccounts) Touch(idx uint64) error {
	if idx >= txAccounts.Len() {
		return InstrErrNotEnoughAccountKeys
	}
	txAccounts.touched[idx] = true
	return nil
}

func (txAccounts *TransactionAccounts) TouchedCount() uint64 {
	var count uint64
	for _, touched := range txAccounts.touched {
		if touched {
			count++
		}
	}
	return count
}

type TxReturnData struct {
	ProgramId solana.PublicKey
	Data      []byte
}

// TransactionCtx holds the working accounts of one transaction together with
// the instruction trace and the stack of active frames. The last entry of
// the trace is always the next frame to be configured.
type TransactionCtx struct {
	AccountKeys              []solana.PublicKey
	Accounts                 *TransactionAccounts
	Rent                     *rent.Rent
	instructionStackCapacity uint64
	instructionTraceCapacity uint64
	instructionStack         []uint64
	instructionTrace         []*InstructionCtx
	returnData               TxReturnData
	accountsResizeDelta      int64
}

func NewTransactionCtx(keys []solana.PublicKey, accts []*accounts.Account, instructionStackCapacity uint64, instructionTraceCapacity uint64) *TransactionCtx {
	return &TransactionCtx{
		AccountKeys:              keys,
		Accounts:                 NewTransactionAccounts(accts),
		instructionStackCapacity: instructionStackCapacity,
		instructionTraceCapacity: instructionTraceCapacity,
		instructionTrace:         []*InstructionCtx{{}},
	}
}

func (txCtx *TransactionCtx) KeyOfAccountAtIndex(index uint64) (solana.PublicKey, error) {
	if index >= uint64(len(txCtx.AccountKeys)) {
		return solana.PublicKey{}, InstrErrNotEnoughAccountKeys
	}
	return txCtx.AccountKeys[index], nil
}

func (txCtx *TransactionCtx) IndexOfAccount(pubkey solana.PublicKey) (uint64, error) {
	for index, key := range txCtx.AccountKeys {
		if key == pubkey {
			return uint64(index), nil
		}
	}
	return 0, InstrErrMissingAccount
}

// IndexOfProgramAccount searches from the back, where the loader appends
// program dependencies.
func (txCtx *TransactionCtx) IndexOfProgramAccount(pubkey solana.PublicKey) (uint64, error) {
	for index := len(txCtx.AccountKeys) - 1; index >= 0; index-- {
		if txCtx.AccountKeys[index] == pubkey {
			return uint64(index), nil
		}
	}
	return 0, InstrErrMissingAccount
}

func (txCtx *TransactionCtx) InstructionTraceCapacity() uint64 {
	return txCtx.instructionTraceCapacity
}

func (txCtx *TransactionCtx) InstructionTraceLength() uint64 {
	return uint64(len(txCtx.instructionTrace) - 1)
}

func (txCtx *TransactionCtx) InstructionCtxAtIndexInTrace(idx uint64) (*InstructionCtx, error) {
	if idx >= uint64(len(txCtx.instructionTrace)) {
		return nil, InstrErrCallDepth
	}
	return txCtx.instructionTrace[idx], nil
}

func (txCtx *TransactionCtx) InstructionCtxAtNestingLevel(nestingLevel uint64) (*InstructionCtx, error) {
	if nestingLevel >= uint64(len(txCtx.instructionStack)) {
		return nil, InstrErrCallDepth
	}
	idx := txCtx.instructionStack[nestingLevel]
	return txCtx.InstructionCtxAtIndexInTrace(idx)
}

func (txCtx *TransactionCtx) InstructionCtxStackHeight() uint64 {
	return uint64(len(txCtx.instructionStack))
}

func (txCtx *TransactionCtx) CurrentInstructionCtx() (*InstructionCtx, error) {
	level := safemath.SaturatingSubU64(txCtx.InstructionCtxStackHeight(), 1)
	return txCtx.InstructionCtxAtNestingLevel(level)
}

func (txCtx *TransactionCtx) NextInstructionCtx() (*InstructionCtx, error) {
	if len(txCtx.instructionTrace) == 0 {
		return nil, InstrErrCallDepth
	}
	return txCtx.instructionTrace[len(txCtx.instructionTrace)-1], nil
}

func (txCtx *TransactionCtx) Push() error {
	nestingLevel := txCtx.InstructionCtxStackHeight()

	callee, err := txCtx.NextInstructionCtx()
	if err != nil {
		return err
	}
	calleeLamportSum, err := txCtx.instructionAccountsLamportSum(callee)
	if err != nil {
		return err
	}

	if len(txCtx.instructionStack) != 0 {
		caller, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}
		currentCallerLamportSum, err := txCtx.instructionAccountsLamportSum(caller)
		if err != nil {
			return err
		}
		if caller.instructionAccountsLamportSum != currentCallerLamportSum {
			return InstrErrUnbalancedInstruction
		}
	}

	callee.NestingLevel = nestingLevel
	callee.instructionAccountsLamportSum = calleeLamportSum

	indexInTrace := txCtx.InstructionTraceLength()
	if indexInTrace >= txCtx.instructionTraceCapacity {
		return InstrErrMaxInstructionTraceLengthExceeded
	}
	txCtx.instructionTrace = append(txCtx.instructionTrace, &InstructionCtx{})

	if nestingLevel >= txCtx.instructionStackCapacity {
		return InstrErrCallDepth
	}
	txCtx.instructionStack = append(txCtx.instructionStack, indexInTrace)

	return nil
}

func (txCtx *TransactionCtx) Pop() error {
	if len(txCtx.instructionStack) == 0 {
		return InstrErrCallDepth
	}

	unbalanced, err := txCtx.currentInstructionUnbalanced()
	txCtx.instructionStack = txCtx.instructionStack[:len(txCtx.instructionStack)-1]

	if err != nil {
		return err
	}
	if unbalanced {
		return InstrErrUnbalancedInstruction
	}
	return nil
}

func (txCtx *TransactionCtx) currentInstructionUnbalanced() (bool, error) {
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return false, err
	}

	for _, programAcctIdx := range instrCtx.ProgramAccounts {
		if txCtx.Accounts.IsBorrowedExclusive(programAcctIdx) {
			return false, InstrErrAccountBorrowOutstanding
		}
	}

	sum, err := txCtx.instructionAccountsLamportSum(instrCtx)
	if err != nil {
		return false, err
	}
	return instrCtx.instructionAccountsLamportSum != sum, nil
}

func (txCtx *TransactionCtx) instructionAccountsLamportSum(instrCtx *InstructionCtx) (wide.Uint128, error) {
	var sum wide.Uint128
	for idx := uint64(0); idx < instrCtx.NumberOfInstructionAccounts(); idx++ {
		isDup, _, err := instrCtx.IsInstructionAccountDuplicate(idx)
		if err != nil {
			return sum, err
		}
		if isDup {
			continue
		}

		idxInTx, err := instrCtx.IndexOfInstructionAccountInTransaction(idx)
		if err != nil {
			return sum, err
		}

		acct, err := txCtx.Accounts.TryBorrow(idxInTx)
		if err != nil {
			return sum, InstrErrAccountBorrowOutstanding
		}
		lamports := acct.Lamports
		txCtx.Accounts.Unborrow(idxInTx)

		sum, err = safemath.CheckedAddU128(sum, wide.Uint128FromUint64(lamports))
		if err != nil {
			return sum, InstrErrArithmeticOverflow
		}
	}
	return sum, nil
}

func (txCtx *TransactionCtx) ReturnData() (solana.PublicKey, []byte) {
	return txCtx.returnData.ProgramId, txCtx.returnData.Data
}

// SetReturnData replaces whatever an earlier frame left behind.
func (txCtx *TransactionCtx) SetReturnData(programId solana.PublicKey, data []byte) {
	txCtx.returnData = TxReturnData{ProgramId: programId, Data: data}
}

// TrimmedReturnData strips trailing zero bytes; empty data yields nil.
func (txCtx *TransactionCtx) TrimmedReturnData() *TxReturnData {
	data := bytes.TrimRight(txCtx.returnData.Data, "\x00")
	if len(data) == 0 {
		return nil
	}
	return &TxReturnData{ProgramId: txCtx.returnData.ProgramId, Data: bytes.Clone(data)}
}

func (txCtx *TransactionCtx) AccountsResizeDelta() int64 {
	return txCtx.accountsResizeDelta
}

// InstructionTrace returns every configured frame in execution order.
func (txCtx *TransactionCtx) InstructionTrace() []*InstructionCtx {
	return txCtx.instructionTrace[:txCtx.InstructionTraceLength()]
}
