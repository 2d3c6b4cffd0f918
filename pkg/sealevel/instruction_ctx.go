package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"github.com/ryanavella/wide"
	"github.com/solana-playground/playnet/pkg/safemath"
)

// InstructionCtx is one frame of the instruction trace.
type InstructionCtx struct {
	NestingLevel                  uint64
	ProgramAccounts               []uint64
	InstructionAccounts           []InstructionAccount
	Data                          []byte
	instructionAccountsLamportSum wide.Uint128
}

func (instrCtx *InstructionCtx) Configure(programAccounts []uint64, instructionAccounts []InstructionAccount, instrData []byte) {
	instrCtx.ProgramAccounts = programAccounts
	instrCtx.InstructionAccounts = instructionAccounts
	instrCtx.Data = instrData
}

// StackHeight is the 1-based invocation depth of the frame.
func (instrCtx *InstructionCtx) StackHeight() uint64 {
	return instrCtx.NestingLevel + 1
}

func (instrCtx *InstructionCtx) NumberOfProgramAccounts() uint64 {
	return uint64(len(instrCtx.ProgramAccounts))
}

func (instrCtx *InstructionCtx) NumberOfInstructionAccounts() uint64 {
	return uint64(len(instrCtx.InstructionAccounts))
}

func (instrCtx *InstructionCtx) CheckNumOfInstructionAccounts(expectedAtLeast uint64) error {
	if instrCtx.NumberOfInstructionAccounts() < expectedAtLeast {
		return InstrErrNotEnoughAccountKeys
	}
	return nil
}

func (instrCtx *InstructionCtx) IndexOfProgramAccountInTransaction(programAcctIdx uint64) (uint64, error) {
	if programAcctIdx >= instrCtx.NumberOfProgramAccounts() {
		return 0, InstrErrNotEnoughAccountKeys
	}
	return instrCtx.ProgramAccounts[programAcctIdx], nil
}

func (instrCtx *InstructionCtx) IndexOfInstructionAccountInTransaction(instrAcctIdx uint64) (uint64, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return 0, InstrErrNotEnoughAccountKeys
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IndexInTransaction, nil
}

// IsInstructionAccountDuplicate reports whether the account at instrAcctIdx
// repeats an earlier one, and if so the index of its first occurrence.
func (instrCtx *InstructionCtx) IsInstructionAccountDuplicate(instrAcctIdx uint64) (bool, uint64, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return false, 0, InstrErrNotEnoughAccountKeys
	}
	indexInCallee := instrCtx.InstructionAccounts[instrAcctIdx].IndexInCallee
	if indexInCallee == instrAcctIdx {
		return false, 0, nil
	}
	return true, indexInCallee, nil
}

func (instrCtx *InstructionCtx) IndexOfInstructionAccount(txCtx *TransactionCtx, pubkey solana.PublicKey) (uint64, error) {
	for idx, instrAcct := range instrCtx.InstructionAccounts {
		key, err := txCtx.KeyOfAccountAtIndex(instrAcct.IndexInTransaction)
		if err == nil && key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

func (instrCtx *InstructionCtx) IndexOfProgramAccount(txCtx *TransactionCtx, pubkey solana.PublicKey) (uint64, error) {
	for idx, idxInTx := range instrCtx.ProgramAccounts {
		key, err := txCtx.KeyOfAccountAtIndex(idxInTx)
		if err == nil && key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

func (instrCtx *InstructionCtx) LastProgramKey(txCtx *TransactionCtx) (solana.PublicKey, error) {
	programAcctIdx := safemath.SaturatingSubU64(instrCtx.NumberOfProgramAccounts(), 1)

	idxInTx, err := instrCtx.IndexOfProgramAccountInTransaction(programAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return txCtx.KeyOfAccountAtIndex(idxInTx)
}

func (instrCtx *InstructionCtx) IsInstructionAccountSigner(instrAcctIdx uint64) (bool, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return false, InstrErrMissingAccount
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IsSigner, nil
}

func (instrCtx *InstructionCtx) IsInstructionAccountWritable(instrAcctIdx uint64) (bool, error) {
	if instrAcctIdx >= instrCtx.NumberOfInstructionAccounts() {
		return false, InstrErrMissingAccount
	}
	return instrCtx.InstructionAccounts[instrAcctIdx].IsWritable, nil
}

// Signers collects the keys of every account signing this frame.
func (instrCtx *InstructionCtx) Signers(txCtx *TransactionCtx) ([]solana.PublicKey, error) {
	var signers []solana.PublicKey
	for _, instrAcct := range instrCtx.InstructionAccounts {
		if !instrAcct.IsSigner {
			continue
		}
		key, err := txCtx.KeyOfAccountAtIndex(instrAcct.IndexInTransaction)
		if err != nil {
			return nil, err
		}
		signers = append(signers, key)
	}
	return signers, nil
}

func (instrCtx *InstructionCtx) BorrowProgramAccount(txCtx *TransactionCtx, programAcctIdx uint64) (*BorrowedAccount, error) {
	idxInTx, err := instrCtx.IndexOfProgramAccountInTransaction(programAcctIdx)
	if err != nil {
		return nil, err
	}
	return instrCtx.borrowAccount(txCtx, idxInTx, programAcctIdx)
}

func (instrCtx *InstructionCtx) BorrowLastProgramAccount(txCtx *TransactionCtx) (*BorrowedAccount, error) {
	programAcctIdx := safemath.SaturatingSubU64(instrCtx.NumberOfProgramAccounts(), 1)
	return instrCtx.BorrowProgramAccount(txCtx, programAcctIdx)
}

func (instrCtx *InstructionCtx) BorrowInstructionAccount(txCtx *TransactionCtx, instrAcctIdx uint64) (*BorrowedAccount, error) {
	idxInTx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return nil, err
	}
	indexInInstruction := safemath.SaturatingAddU64(instrCtx.NumberOfProgramAccounts(), instrAcctIdx)
	return instrCtx.borrowAccount(txCtx, idxInTx, indexInInstruction)
}

func (instrCtx *InstructionCtx) borrowAccount(txCtx *TransactionCtx, idxInTx uint64, indexInInstruction uint64) (*BorrowedAccount, error) {
	acct, err := txCtx.Accounts.TryBorrowMut(idxInTx)
	if err != nil {
		return nil, err
	}

	return &BorrowedAccount{
		TxCtx:              txCtx,
		InstrCtx:           instrCtx,
		IndexInTransaction: idxInTx,
		IndexInInstruction: indexInInstruction,
		Account:            acct,
	}, nil
}
