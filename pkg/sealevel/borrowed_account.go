package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/safemath"
)

// BorrowedAccount is an exclusive handle on one transaction account, checked
// against the privileges of the frame that borrowed it. Release with Drop.
type BorrowedAccount struct {
	TxCtx              *TransactionCtx
	InstrCtx           *InstructionCtx
	IndexInTransaction uint64
	IndexInInstruction uint64
	Account            *accounts.Account
	released           bool
}

// Drop releases the borrow. Calling it more than once is a no-op.
func (acct *BorrowedAccount) Drop() {
	if acct.released {
		return
	}
	acct.released = true
	acct.TxCtx.Accounts.UnborrowMut(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) Key() solana.PublicKey {
	key, err := acct.TxCtx.KeyOfAccountAtIndex(acct.IndexInTransaction)
	if err != nil {
		panic("borrowed account outside of transaction accounts - programming error")
	}
	return key
}

func (acct *BorrowedAccount) Owner() solana.PublicKey {
	return acct.Account.Owner
}

func (acct *BorrowedAccount) Lamports() uint64 {
	return acct.Account.Lamports
}

func (acct *BorrowedAccount) Data() []byte {
	return acct.Account.Data
}

func (acct *BorrowedAccount) IsExecutable() bool {
	return acct.Account.Executable
}

func (acct *BorrowedAccount) Touch() error {
	return acct.TxCtx.Accounts.Touch(acct.IndexInTransaction)
}

func (acct *BorrowedAccount) IsSigner() bool {
	instrCtx := acct.InstrCtx
	if acct.IndexInInstruction < instrCtx.NumberOfProgramAccounts() {
		return false
	}

	instrAcctIdx := safemath.SaturatingSubU64(acct.IndexInInstruction, instrCtx.NumberOfProgramAccounts())
	isSigner, err := instrCtx.IsInstructionAccountSigner(instrAcctIdx)
	if err != nil {
		return false
	}
	return isSigner
}

func (acct *BorrowedAccount) IsWritable() bool {
	instrCtx := acct.InstrCtx
	if acct.IndexInInstruction < instrCtx.NumberOfProgramAccounts() {
		return false
	}

	instrAcctIdx := safemath.SaturatingSubU64(acct.IndexInInstruction, instrCtx.NumberOfProgramAccounts())
	writable, err := instrCtx.IsInstructionAccountWritable(instrAcctIdx)
	if err != nil {
		return false
	}
	return writable
}

func (acct *BorrowedAccount) IsOwnedByCurrentProgram() bool {
	lastProgramKey, err := acct.InstrCtx.LastProgramKey(acct.TxCtx)
	if err != nil {
		return false
	}
	return lastProgramKey == acct.Owner()
}

func (acct *BorrowedAccount) SetOwner(owner solana.PublicKey) error {
	if !acct.IsOwnedByCurrentProgram() {
		return InstrErrModifiedProgramId
	}
	if !acct.IsWritable() {
		return InstrErrModifiedProgramId
	}
	if acct.IsExecutable() {
		return InstrErrModifiedProgramId
	}
	if !isZeroed(acct.Data()) {
		return InstrErrModifiedProgramId
	}
	if acct.Owner() == owner {
		return nil
	}

	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Owner = owner
	return nil
}

func (acct *BorrowedAccount) SetLamports(lamports uint64) error {
	if !acct.IsOwnedByCurrentProgram() && lamports < acct.Lamports() {
		return InstrErrExternalAccountLamportSpend
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyLamportChange
	}
	if acct.IsExecutable() {
		return InstrErrExecutableLamportChange
	}
	if acct.Lamports() == lamports {
		return nil
	}

	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Lamports = lamports
	return nil
}

func (acct *BorrowedAccount) CheckedAddLamports(lamports uint64) error {
	balance, err := safemath.CheckedAddU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(balance)
}

func (acct *BorrowedAccount) CheckedSubLamports(lamports uint64) error {
	balance, err := safemath.CheckedSubU64(acct.Lamports(), lamports)
	if err != nil {
		return InstrErrArithmeticOverflow
	}
	return acct.SetLamports(balance)
}

func (acct *BorrowedAccount) DataCanBeChanged() error {
	if acct.IsExecutable() {
		return InstrErrExecutableDataModified
	}
	if !acct.IsWritable() {
		return InstrErrReadonlyDataModified
	}
	if !acct.IsOwnedByCurrentProgram() {
		return InstrErrExternalAccountDataModified
	}
	return nil
}

func (acct *BorrowedAccount) DataCanBeResized(newLength uint64) error {
	oldLength := uint64(len(acct.Data()))
	if newLength != oldLength && !acct.IsOwnedByCurrentProgram() {
		return InstrErrAccountDataSizeChanged
	}
	if newLength > SystemProgMaxPermittedDataLen {
		return InstrErrInvalidRealloc
	}
	delta := acct.TxCtx.accountsResizeDelta + int64(newLength) - int64(oldLength)
	if delta > MaxPermittedAccountsDataAllocationsPerTransaction {
		return InstrErrMaxAccountsDataAllocationsExceeded
	}
	return nil
}

// DataMutable hands out the backing buffer after the write checks pass.
func (acct *BorrowedAccount) DataMutable() ([]byte, error) {
	err := acct.DataCanBeChanged()
	if err != nil {
		return nil, err
	}
	err = acct.Touch()
	if err != nil {
		return nil, err
	}
	return acct.Account.Data, nil
}

func (acct *BorrowedAccount) SetData(data []byte) error {
	err := acct.DataCanBeResized(uint64(len(data)))
	if err != nil {
		return err
	}
	err = acct.DataCanBeChanged()
	if err != nil {
		return err
	}
	err = acct.Touch()
	if err != nil {
		return err
	}

	acct.updateAccountsResizeDelta(uint64(len(data)))
	acct.Account.SetData(data)
	return nil
}

// SetDataLength resizes the data, zero-filling any growth.
func (acct *BorrowedAccount) SetDataLength(newLength uint64) error {
	err := acct.DataCanBeResized(newLength)
	if err != nil {
		return err
	}
	err = acct.DataCanBeChanged()
	if err != nil {
		return err
	}

	oldLength := uint64(len(acct.Data()))
	if oldLength == newLength {
		return nil
	}

	err = acct.Touch()
	if err != nil {
		return err
	}

	acct.updateAccountsResizeDelta(newLength)
	if newLength < oldLength {
		acct.Account.Data = acct.Account.Data[:newLength]
	} else {
		acct.Account.Data = append(acct.Account.Data, make([]byte, newLength-oldLength)...)
	}
	return nil
}

// SetState overwrites the leading bytes of the data with a serialized state.
func (acct *BorrowedAccount) SetState(state []byte) error {
	data, err := acct.DataMutable()
	if err != nil {
		return err
	}
	if len(state) > len(data) {
		return InstrErrAccountDataTooSmall
	}
	copy(data, state)
	return nil
}

func (acct *BorrowedAccount) SetExecutable(executable bool) error {
	if acct.TxCtx.Rent != nil && !acct.TxCtx.Rent.IsExempt(acct.Lamports(), uint64(len(acct.Data()))) {
		return InstrErrExecutableAccountNotRentExempt
	}
	if !acct.IsOwnedByCurrentProgram() || !acct.IsWritable() {
		return InstrErrExecutableModified
	}
	if acct.IsExecutable() && !executable {
		return InstrErrExecutableModified
	}
	if acct.IsExecutable() == executable {
		return nil
	}

	err := acct.Touch()
	if err != nil {
		return err
	}
	acct.Account.Executable = executable
	return nil
}

func (acct *BorrowedAccount) IsRentExemptAtDataLength(dataLen uint64) bool {
	if acct.TxCtx.Rent == nil {
		return true
	}
	return acct.TxCtx.Rent.IsExempt(acct.Lamports(), dataLen)
}

func (acct *BorrowedAccount) updateAccountsResizeDelta(newLength uint64) {
	acct.TxCtx.accountsResizeDelta += int64(newLength) - int64(len(acct.Data()))
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
