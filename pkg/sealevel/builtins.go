package sealevel

import (
	"bytes"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
)

type ProcessInstructionFn func(execCtx *ExecutionCtx) error

// Builtins maps a native program id to its handler.
type Builtins map[solana.PublicKey]ProcessInstructionFn

// DefaultBuiltins registers the System program and both BPF loaders.
func DefaultBuiltins() Builtins {
	return Builtins{
		SystemProgramAddr:        SystemProgramExecute,
		BpfLoaderAddr:            BpfLoaderProgramExecute,
		BpfLoaderUpgradeableAddr: BpfLoaderProgramExecute,
	}
}

func (builtins Builtins) Resolve(programId solana.PublicKey) (ProcessInstructionFn, error) {
	fn, ok := builtins[programId]
	if !ok {
		return nil, InstrErrUnsupportedProgramId
	}
	return fn, nil
}

// ProgramIds lists the registered ids in byte order.
func (builtins Builtins) ProgramIds() []solana.PublicKey {
	ids := lo.Keys(builtins)
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
