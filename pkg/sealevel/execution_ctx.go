package sealevel

import (
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/cu"
	"github.com/solana-playground/playnet/pkg/features"
	"k8s.io/klog/v2"
)

// ExecutionCtx is the invoke context handed to builtin handlers and to the
// interpreter for the duration of one transaction.
type ExecutionCtx struct {
	Log                  Logger
	TransactionContext   *TransactionCtx
	Features             *features.Features
	SysvarCache          *SysvarCache
	ComputeMeter         cu.ComputeMeter
	Builtins             Builtins
	Interpreter          Interpreter
	Blockhash            [32]byte
	LamportsPerSignature uint64
}

// Consume charges units against the transaction meter.
func (execCtx *ExecutionCtx) Consume(units uint64) error {
	err := execCtx.ComputeMeter.Consume(units)
	if err != nil {
		return InstrErrComputationalBudgetExceeded
	}
	return nil
}

func (execCtx *ExecutionCtx) PrepareInstruction(ix Instruction, signers []solana.PublicKey) ([]InstructionAccount, []uint64, error) {
	txCtx := execCtx.TransactionContext

	ixCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return nil, nil, err
	}

	dedupInstructionAccounts := make([]InstructionAccount, 0)
	duplicateIndices := make([]uint64, 0)

	for instructionAcctIndex, accountMeta := range ix.Accounts {
		indexInTx, err := txCtx.IndexOfAccount(accountMeta.Pubkey)
		if err != nil {
			klog.Errorf("instruction references an unknown account %s", accountMeta.Pubkey)
			return nil, nil, InstrErrMissingAccount
		}

		duplicateIndex := -1
		for index, instrAcct := range dedupInstructionAccounts {
			if instrAcct.IndexInTransaction == indexInTx {
				duplicateIndex = index
				break
			}
		}

		if duplicateIndex != -1 {
			duplicateIndices = append(duplicateIndices, uint64(duplicateIndex))
			dedupInstructionAccounts[duplicateIndex].IsSigner = dedupInstructionAccounts[duplicateIndex].IsSigner || accountMeta.IsSigner
			dedupInstructionAccounts[duplicateIndex].IsWritable = dedupInstructionAccounts[duplicateIndex].IsWritable || accountMeta.IsWritable
		} else {
			indexInCaller, err := ixCtx.IndexOfInstructionAccount(txCtx, accountMeta.Pubkey)
			if err != nil {
				klog.Errorf("instruction references an unknown account %s", accountMeta.Pubkey)
				return nil, nil, InstrErrMissingAccount
			}
			duplicateIndices = append(duplicateIndices, uint64(len(dedupInstructionAccounts)))

			dedupInstructionAccounts = append(dedupInstructionAccounts, InstructionAccount{
				IndexInTransaction: indexInTx,
				IndexInCaller:      indexInCaller,
				IndexInCallee:      uint64(instructionAcctIndex),
				IsSigner:           accountMeta.IsSigner,
				IsWritable:         accountMeta.IsWritable,
			})
		}
	}

	for _, instructionAcct := range dedupInstructionAccounts {
		borrowedAcct, err := ixCtx.BorrowInstructionAccount(txCtx, instructionAcct.IndexInCaller)
		if err != nil {
			return nil, nil, err
		}

		// read-only in the caller cannot become writable in the callee
		if instructionAcct.IsWritable && !borrowedAcct.IsWritable() {
			execCtx.Log.Log(borrowedAcct.Key().String() + "'s writable privilege escalated")
			borrowedAcct.Drop()
			return nil, nil, InstrErrPrivilegeEscalation
		}

		// a callee signer must be signed in the caller or by the calling program
		presentInSigners := false
		for _, addr := range signers {
			if addr == borrowedAcct.Key() {
				presentInSigners = true
				break
			}
		}
		if instructionAcct.IsSigner && !(borrowedAcct.IsSigner() || presentInSigners) {
			execCtx.Log.Log(borrowedAcct.Key().String() + "'s signer privilege escalated")
			borrowedAcct.Drop()
			return nil, nil, InstrErrPrivilegeEscalation
		}
		borrowedAcct.Drop()
	}

	instructionAccounts := make([]InstructionAccount, 0, len(duplicateIndices))
	for _, duplicateIndex := range duplicateIndices {
		if duplicateIndex >= uint64(len(dedupInstructionAccounts)) {
			return nil, nil, InstrErrNotEnoughAccountKeys
		}
		instructionAccounts = append(instructionAccounts, dedupInstructionAccounts[duplicateIndex])
	}

	calleeProgramId := ix.ProgramId
	programAcctIdx, err := ixCtx.IndexOfInstructionAccount(txCtx, calleeProgramId)
	if err != nil {
		execCtx.Log.Log("Unknown program " + calleeProgramId.String())
		return nil, nil, InstrErrMissingAccount
	}

	borrowedProgramAcct, err := ixCtx.BorrowInstructionAccount(txCtx, programAcctIdx)
	if err != nil {
		return nil, nil, err
	}
	defer borrowedProgramAcct.Drop()

	if !borrowedProgramAcct.IsExecutable() {
		execCtx.Log.Log("Account " + calleeProgramId.String() + " is not executable")
		return nil, nil, InstrErrAccountNotExecutable
	}

	return instructionAccounts, []uint64{borrowedProgramAcct.IndexInTransaction}, nil
}

// ProcessInstruction configures the next frame, runs it and pops it. The pop
// runs even when execution failed; the execution error takes precedence.
func (execCtx *ExecutionCtx) ProcessInstruction(instrData []byte, instructionAccts []InstructionAccount, programIndices []uint64) error {
	nextInstrCtx, err := execCtx.TransactionContext.NextInstructionCtx()
	if err != nil {
		return err
	}

	nextInstrCtx.Configure(programIndices, instructionAccts, instrData)

	err = execCtx.Push()
	if err != nil {
		return err
	}

	err1 := execCtx.ExecuteInstruction()
	err2 := execCtx.Pop()

	if err1 != nil {
		return err1
	}
	return err2
}

// ExecuteInstruction dispatches the current frame on its root program: the
// program itself when owned by the native loader, otherwise its loader.
func (execCtx *ExecutionCtx) ExecuteInstruction() error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	borrowedRootAccount, err := instrCtx.BorrowProgramAccount(txCtx, 0)
	if err != nil {
		return InstrErrUnsupportedProgramId
	}
	ownerId := borrowedRootAccount.Owner()
	rootId := borrowedRootAccount.Key()
	borrowedRootAccount.Drop()

	builtinId := ownerId
	if ownerId == NativeLoaderAddr {
		builtinId = rootId
	}

	nativeProgramFn, err := execCtx.Builtins.Resolve(builtinId)
	if err != nil {
		klog.V(3).Infof("no builtin registered for %s", builtinId)
		return err
	}

	programId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return err
	}
	logProgramInvoke(execCtx.Log, programId, execCtx.StackHeight())
	klog.V(3).Infof("dispatching %s through builtin %s", programId, builtinId)

	err = nativeProgramFn(execCtx)
	if err != nil {
		logProgramFailure(execCtx.Log, programId, err)
		return err
	}

	logProgramSuccess(execCtx.Log, programId)
	return nil
}

func (execCtx *ExecutionCtx) Push() error {
	txCtx := execCtx.TransactionContext

	instrCtx, err := txCtx.InstructionCtxAtIndexInTrace(txCtx.InstructionTraceLength())
	if err != nil {
		return err
	}

	programId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return InstrErrUnsupportedProgramId
	}

	if txCtx.InstructionCtxStackHeight() != 0 {
		var contains bool
		for level := uint64(0); level < txCtx.InstructionCtxStackHeight(); level++ {
			ic, err := txCtx.InstructionCtxAtNestingLevel(level)
			if err != nil {
				continue
			}
			key, err := ic.LastProgramKey(txCtx)
			if err == nil && key == programId {
				contains = true
				break
			}
		}

		var isLast bool
		ic, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}
		key, err := ic.LastProgramKey(txCtx)
		if err == nil && key == programId {
			isLast = true
		}

		if contains && !isLast {
			return InstrErrReentrancyNotAllowed
		}
	}

	return txCtx.Push()
}

func (execCtx *ExecutionCtx) Pop() error {
	return execCtx.TransactionContext.Pop()
}

func (execCtx *ExecutionCtx) StackHeight() uint64 {
	return execCtx.TransactionContext.InstructionCtxStackHeight()
}

// NativeInvoke performs a cross-program invocation from the current frame.
// signers are the program-derived addresses the caller signs for.
func (execCtx *ExecutionCtx) NativeInvoke(instruction Instruction, signers []solana.PublicKey) error {
	instrAccts, programIndices, err := execCtx.PrepareInstruction(instruction, signers)
	if err != nil {
		return err
	}

	return execCtx.ProcessInstruction(instruction.Data, instrAccts, programIndices)
}
