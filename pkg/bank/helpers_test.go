package bank

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/config"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"github.com/stretchr/testify/require"
)

type testProgramFn func(execCtx *sealevel.ExecutionCtx) error

// testInterpreter maps program code, with trailing zeroes stripped, to a Go
// function.
type testInterpreter struct {
	programs map[string]testProgramFn
}

func (interp *testInterpreter) Verify(programData []byte) error {
	return nil
}

func (interp *testInterpreter) Execute(execCtx *sealevel.ExecutionCtx, programData []byte) error {
	fn, ok := interp.programs[string(bytes.TrimRight(programData, "\x00"))]
	if !ok {
		return sealevel.InstrErrProgramFailedToComplete
	}
	return fn(execCtx)
}

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	return New(config.Default(), nil)
}

func fundedKeypair(b *Bank, lamports uint64) solana.PrivateKey {
	kp := solana.NewWallet().PrivateKey
	if lamports > 0 {
		b.SetAccount(kp.PublicKey(), &accounts.Account{Lamports: lamports, Data: []byte{}, Owner: sealevel.SystemProgramAddr})
	}
	return kp
}

func toSolanaInstruction(ix sealevel.Instruction) solana.Instruction {
	metas := lo.Map(ix.Accounts, func(acct sealevel.AccountMeta, _ int) *solana.AccountMeta {
		return &solana.AccountMeta{PublicKey: acct.Pubkey, IsSigner: acct.IsSigner, IsWritable: acct.IsWritable}
	})
	return solana.NewInstruction(ix.ProgramId, metas, ix.Data)
}

// signedTx builds a legacy transaction paid by the first signer.
func signedTx(t *testing.T, blockhash solana.Hash, signers []solana.PrivateKey, ixs ...sealevel.Instruction) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(lo.Map(ixs, func(ix sealevel.Instruction, _ int) solana.Instruction {
		return toSolanaInstruction(ix)
	}), blockhash, solana.TransactionPayer(signers[0].PublicKey()))
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey() == key {
				return &signers[i]
			}
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func (b *Bank) testTx(t *testing.T, signers []solana.PrivateKey, ixs ...sealevel.Instruction) *solana.Transaction {
	t.Helper()
	return signedTx(t, b.LatestBlockhash(), signers, ixs...)
}

// installUpgradeableProgram writes a program and its program-data account
// holding code directly into the store.
func installUpgradeableProgram(t *testing.T, b *Bank, code string) (program solana.PublicKey, programData solana.PublicKey) {
	t.Helper()
	program = solana.NewWallet().PublicKey()
	programData, _, err := solana.FindProgramAddress([][]byte{program[:]}, sealevel.BpfLoaderUpgradeableAddr)
	require.NoError(t, err)

	programState := &sealevel.UpgradeableLoaderState{
		Type:    sealevel.UpgradeableLoaderStateTypeProgram,
		Program: sealevel.UpgradeableLoaderStateProgram{ProgramDataAddress: programData},
	}
	programBytes, err := programState.Marshal()
	require.NoError(t, err)

	authority := solana.NewWallet().PublicKey()
	programDataState := &sealevel.UpgradeableLoaderState{
		Type:        sealevel.UpgradeableLoaderStateTypeProgramData,
		ProgramData: sealevel.UpgradeableLoaderStateProgramData{UpgradeAuthorityAddress: &authority},
	}
	programDataBytes, err := programDataState.Marshal()
	require.NoError(t, err)
	require.Len(t, programDataBytes, sealevel.UpgradeableLoaderSizeOfProgramDataMetaData)

	b.SetAccount(program, &accounts.Account{Lamports: 1, Data: programBytes, Owner: sealevel.BpfLoaderUpgradeableAddr, Executable: true})
	b.SetAccount(programData, &accounts.Account{Lamports: 1, Data: append(programDataBytes, code...), Owner: sealevel.BpfLoaderUpgradeableAddr})
	return program, programData
}

// snapshotState captures every account so a test can compare before/after.
func snapshotState(b *Bank) map[[32]byte]*accounts.Account {
	out := make(map[[32]byte]*accounts.Account)
	b.accounts.Range(func(pubkey [32]byte, acct *accounts.Account) bool {
		out[pubkey] = acct.Clone()
		return true
	})
	return out
}

func totalLamports(b *Bank) uint64 {
	var sum uint64
	b.accounts.Range(func(_ [32]byte, acct *accounts.Account) bool {
		sum += acct.Lamports
		return true
	})
	return sum
}
