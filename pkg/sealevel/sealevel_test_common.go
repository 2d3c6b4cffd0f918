package sealevel

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/cu"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/solana-playground/playnet/pkg/rent"
	"github.com/stretchr/testify/require"
)

// testProgramFn is a user program run by testInterpreter.
type testProgramFn func(execCtx *ExecutionCtx) error

// testInterpreter resolves program code to a Go function. Code is matched
// after trailing zero padding is stripped. Code starting with "invalid" fails
// verification.
type testInterpreter struct {
	programs map[string]testProgramFn
}

func (interp *testInterpreter) Verify(programData []byte) error {
	if bytes.HasPrefix(programData, []byte("invalid")) {
		return InstrErrInvalidAccountData
	}
	return nil
}

func (interp *testInterpreter) Execute(execCtx *ExecutionCtx, programData []byte) error {
	fn, ok := interp.programs[string(bytes.TrimRight(programData, "\x00"))]
	if !ok {
		return InstrErrProgramFailedToComplete
	}
	return fn(execCtx)
}

type testEnv struct {
	t       *testing.T
	keys    []solana.PublicKey
	accts   []*accounts.Account
	execCtx *ExecutionCtx
	logs    *LogCollector
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{t: t}
	env.addAccount(SystemProgramAddr, &accounts.Account{Lamports: 1, Owner: NativeLoaderAddr, Executable: true})
	return env
}

func (env *testEnv) addAccount(key solana.PublicKey, acct *accounts.Account) solana.PublicKey {
	env.keys = append(env.keys, key)
	env.accts = append(env.accts, acct)
	return key
}

func (env *testEnv) newFundedAccount(lamports uint64) solana.PublicKey {
	return env.addAccount(solana.NewWallet().PublicKey(), &accounts.Account{Lamports: lamports, Owner: SystemProgramAddr})
}

func (env *testEnv) addLoaders() {
	env.addAccount(BpfLoaderAddr, &accounts.Account{Lamports: 1, Owner: NativeLoaderAddr, Executable: true})
	env.addAccount(BpfLoaderUpgradeableAddr, &accounts.Account{Lamports: 1, Owner: NativeLoaderAddr, Executable: true})
}

func (env *testEnv) addSysvars(cache *SysvarCache) {
	for key, acct := range cache.Accounts() {
		env.addAccount(key, acct)
	}
}

// build freezes the account list into a transaction context.
func (env *testEnv) build(interp Interpreter) *ExecutionCtx {
	return env.buildWithCache(interp, newTestSysvarCache())
}

func newTestSysvarCache() *SysvarCache {
	cache := NewSysvarCache(rent.Default(), MaxRecentBlockhashes)
	cache.SetClock(SysvarClock{Slot: 10})
	cache.PushRecentBlockhash([32]byte{1}, 5000)
	return cache
}

func (env *testEnv) buildWithCache(interp Interpreter, cache *SysvarCache) *ExecutionCtx {
	txCtx := NewTransactionCtx(env.keys, env.accts, cu.MaxInvokeStackHeight, cu.MaxInstructionTraceLength)
	r := cache.GetRent()
	txCtx.Rent = &r

	env.logs = NewLogCollector()
	env.execCtx = &ExecutionCtx{
		Log:                  env.logs,
		TransactionContext:   txCtx,
		Features:             features.NewFeaturesDefault(),
		SysvarCache:          cache,
		ComputeMeter:         cu.NewComputeMeter(cu.MaxComputeUnitLimit),
		Builtins:             DefaultBuiltins(),
		Interpreter:          interp,
		Blockhash:            [32]byte{1},
		LamportsPerSignature: 5000,
	}
	return env.execCtx
}

func (env *testEnv) index(key solana.PublicKey) uint64 {
	idx, err := env.execCtx.TransactionContext.IndexOfAccount(key)
	require.NoError(env.t, err)
	return idx
}

func (env *testEnv) account(key solana.PublicKey) *accounts.Account {
	acct, err := env.execCtx.TransactionContext.Accounts.GetAccount(env.index(key))
	require.NoError(env.t, err)
	return acct
}

// programChain mirrors the loader walk: a native program runs alone, a user
// program runs behind its loader and, when upgradeable, its program data.
func (env *testEnv) programChain(programId solana.PublicKey) []uint64 {
	programIdx := env.index(programId)
	program := env.account(programId)
	if program.Owner == NativeLoaderAddr {
		return []uint64{programIdx}
	}

	chain := []uint64{env.index(program.Owner)}
	if program.Owner == BpfLoaderUpgradeableAddr {
		state, err := UnmarshalUpgradeableLoaderState(program.Data)
		if err == nil && state.Type == UpgradeableLoaderStateTypeProgram {
			chain = append(chain, env.index(state.Program.ProgramDataAddress))
		}
	}
	return append(chain, programIdx)
}

// process runs instr as a top-level instruction.
func (env *testEnv) process(instr Instruction) error {
	instrAccts := make([]InstructionAccount, 0, len(instr.Accounts))
	for i, meta := range instr.Accounts {
		idxInTx := env.index(meta.Pubkey)
		indexInCallee := uint64(i)
		for j, other := range instr.Accounts[:i] {
			if other.Pubkey == meta.Pubkey {
				indexInCallee = uint64(j)
				break
			}
		}
		instrAccts = append(instrAccts, InstructionAccount{
			IndexInTransaction: idxInTx,
			IndexInCaller:      idxInTx,
			IndexInCallee:      indexInCallee,
			IsSigner:           meta.IsSigner,
			IsWritable:         meta.IsWritable,
		})
	}
	return env.execCtx.ProcessInstruction(instr.Data, instrAccts, env.programChain(instr.ProgramId))
}
