package sealevel

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

// InstructionError is a failed top-level instruction. It unwraps to the
// handler error so callers can match sentinels with errors.Is.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %s", e.Index, DescribeInstructionError(e.Err))
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

var reservedAccountKeys = map[solana.PublicKey]struct{}{
	SystemProgramAddr:           {},
	NativeLoaderAddr:            {},
	BpfLoaderAddr:               {},
	BpfLoaderUpgradeableAddr:    {},
	SysvarOwnerAddr:             {},
	SysvarClockAddr:             {},
	SysvarRentAddr:              {},
	SysvarInstructionsAddr:      {},
	SysvarRecentBlockHashesAddr: {},
}

func IsMessageSigner(msg *solana.Message, idx int) bool {
	return idx < int(msg.Header.NumRequiredSignatures)
}

// IsMessageWritable applies the header counts, then demotes reserved keys
// and invoked programs. Invoked programs stay writable while the upgradeable
// loader is part of the message.
func IsMessageWritable(msg *solana.Message, idx int) bool {
	numSigned := int(msg.Header.NumRequiredSignatures)
	var writable bool
	if idx < numSigned {
		writable = idx < numSigned-int(msg.Header.NumReadonlySignedAccounts)
	} else {
		writable = idx < len(msg.AccountKeys)-int(msg.Header.NumReadonlyUnsignedAccounts)
	}
	if !writable || idx >= len(msg.AccountKeys) {
		return false
	}
	if _, reserved := reservedAccountKeys[msg.AccountKeys[idx]]; reserved {
		return false
	}
	if IsKeyCalledAsProgram(msg, idx) && !IsUpgradeableLoaderPresent(msg) {
		return false
	}
	return true
}

func IsKeyCalledAsProgram(msg *solana.Message, idx int) bool {
	for _, instr := range msg.Instructions {
		if int(instr.ProgramIDIndex) == idx {
			return true
		}
	}
	return false
}

// IsNonLoaderKey reports whether the key at idx is used as an instruction
// account, or not invoked as a program at all.
func IsNonLoaderKey(msg *solana.Message, idx int) bool {
	if !IsKeyCalledAsProgram(msg, idx) {
		return true
	}
	for _, instr := range msg.Instructions {
		for _, acctIdx := range instr.Accounts {
			if int(acctIdx) == idx {
				return true
			}
		}
	}
	return false
}

func IsUpgradeableLoaderPresent(msg *solana.Message) bool {
	for _, key := range msg.AccountKeys {
		if key == BpfLoaderUpgradeableAddr {
			return true
		}
	}
	return false
}

// DecompileInstructions resolves compiled instructions against the message
// keys and privileges.
func DecompileInstructions(msg *solana.Message) []Instruction {
	instrs := make([]Instruction, 0, len(msg.Instructions))
	for _, compiled := range msg.Instructions {
		instr := Instruction{Data: compiled.Data}
		if int(compiled.ProgramIDIndex) < len(msg.AccountKeys) {
			instr.ProgramId = msg.AccountKeys[compiled.ProgramIDIndex]
		}
		for _, acctIdx := range compiled.Accounts {
			if int(acctIdx) >= len(msg.AccountKeys) {
				continue
			}
			instr.Accounts = append(instr.Accounts, AccountMeta{
				Pubkey:     msg.AccountKeys[acctIdx],
				IsSigner:   IsMessageSigner(msg, int(acctIdx)),
				IsWritable: IsMessageWritable(msg, int(acctIdx)),
			})
		}
		instrs = append(instrs, instr)
	}
	return instrs
}

// ProcessMessage runs every instruction of msg in order. programIndices
// holds the loader chain of each instruction. The first failure stops the
// message and is returned as *InstructionError.
func (execCtx *ExecutionCtx) ProcessMessage(msg *solana.Message, programIndices [][]uint64) error {
	txCtx := execCtx.TransactionContext

	for instrIdx, instr := range msg.Instructions {
		if instrIdx >= len(programIndices) {
			return &InstructionError{Index: instrIdx, Err: InstrErrUnsupportedProgramId}
		}

		if sysvarIdx, err := txCtx.IndexOfAccount(SysvarInstructionsAddr); err == nil {
			acct, err := txCtx.Accounts.TryBorrowMut(sysvarIdx)
			if err != nil {
				return &InstructionError{Index: instrIdx, Err: err}
			}
			StoreCurrentIndex(acct.Data, uint16(instrIdx))
			txCtx.Accounts.UnborrowMut(sysvarIdx)
		}

		instructionAccounts := make([]InstructionAccount, 0, len(instr.Accounts))
		for instrAcctIdx, idxInTx := range instr.Accounts {
			indexInCallee := uint64(instrAcctIdx)
			for firstIdx, other := range instr.Accounts[:instrAcctIdx] {
				if other == idxInTx {
					indexInCallee = uint64(firstIdx)
					break
				}
			}
			instructionAccounts = append(instructionAccounts, InstructionAccount{
				IndexInTransaction: uint64(idxInTx),
				IndexInCaller:      uint64(idxInTx),
				IndexInCallee:      indexInCallee,
				IsSigner:           IsMessageSigner(msg, int(idxInTx)),
				IsWritable:         IsMessageWritable(msg, int(idxInTx)),
			})
		}

		usedBefore := execCtx.ComputeMeter.Used()
		err := execCtx.ProcessInstruction(instr.Data, instructionAccounts, programIndices[instrIdx])
		klog.V(3).Infof("instruction %d consumed %d compute units", instrIdx, execCtx.ComputeMeter.Used()-usedBefore)
		if err != nil {
			return &InstructionError{Index: instrIdx, Err: err}
		}
	}

	return nil
}
