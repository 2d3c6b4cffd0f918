package bank

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// installLoaderChain creates a program whose owner chain has hops links
// before reaching the native loader.
func installLoaderChain(b *Bank, hops int) solana.PublicKey {
	owner := sealevel.NativeLoaderAddr
	var key solana.PublicKey
	for i := 0; i < hops; i++ {
		key = solana.NewWallet().PublicKey()
		b.SetAccount(key, &accounts.Account{Lamports: 1, Data: []byte{}, Owner: owner, Executable: true})
		owner = key
	}
	return key
}

func invokeIx(program solana.PublicKey, payer solana.PublicKey) sealevel.Instruction {
	return sealevel.Instruction{
		ProgramId: program,
		Accounts:  []sealevel.AccountMeta{{Pubkey: payer, IsSigner: true, IsWritable: true}},
	}
}

func TestLoad_CallChainTooDeep(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)

	deep := installLoaderChain(b, MaxLoaderChainDepth+1)
	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(deep, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrCallChainTooDeep)
	assert.Equal(t, uint64(0), b.Slot())

	// at the bound the chain loads, and fails only once executed
	bounded := installLoaderChain(b, MaxLoaderChainDepth)
	result := b.Simulate(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(bounded, alice.PublicKey())))
	require.Error(t, result.Err)
	assert.NotErrorIs(t, result.Err, TxErrCallChainTooDeep)
	assert.ErrorIs(t, result.Err, sealevel.InstrErrUnsupportedProgramId)
}

func TestLoad_SelfOwnedProgram(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)

	self := solana.NewWallet().PublicKey()
	b.SetAccount(self, &accounts.Account{Lamports: 1, Data: []byte{}, Owner: self, Executable: true})

	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(self, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrCallChainTooDeep)
}

func TestLoad_ProgramAccountErrors(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)

	missing := solana.NewWallet().PublicKey()
	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(missing, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrProgramAccountNotFound)

	notExecutable := solana.NewWallet().PublicKey()
	b.SetAccount(notExecutable, &accounts.Account{Lamports: 1, Data: []byte{}, Owner: sealevel.BpfLoaderAddr})
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(notExecutable, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrInvalidProgramForExecution)

	badState := solana.NewWallet().PublicKey()
	b.SetAccount(badState, &accounts.Account{Lamports: 1, Data: []byte{9, 9}, Owner: sealevel.BpfLoaderUpgradeableAddr, Executable: true})
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(badState, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrInvalidProgramForExecution)

	program, programData := installUpgradeableProgram(t, b, "noop")
	b.SetAccount(programData, &accounts.Account{Data: []byte{}})
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{alice}, invokeIx(program, alice.PublicKey())))
	assert.ErrorIs(t, err, TxErrProgramAccountNotFound)
}

func TestLoad_UpgradeableChainOrder(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	program, programData := installUpgradeableProgram(t, b, "noop")

	tx := b.testTx(t, []solana.PrivateKey{alice}, invokeIx(program, alice.PublicKey()))
	loaded, err := loadTransaction(b.accounts, b.features, 0, &tx.Message, 0)
	require.NoError(t, err)

	require.Len(t, loaded.ProgramIndices, 1)
	chain := loaded.ProgramIndices[0]
	require.Len(t, chain, 3)
	assert.Equal(t, sealevel.BpfLoaderUpgradeableAddr, loaded.Keys[chain[0]])
	assert.Equal(t, programData, loaded.Keys[chain[1]])
	assert.Equal(t, program, loaded.Keys[chain[2]])

	// program data is appended once after the message keys
	assert.Len(t, loaded.Keys, len(tx.Message.AccountKeys)+2)
}

func TestLoad_MessageKeysPrefixPreserved(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	first, firstData := installUpgradeableProgram(t, b, "noop")
	second, secondData := installUpgradeableProgram(t, b, "noop")

	tx := b.testTx(t, []solana.PrivateKey{alice},
		invokeIx(first, alice.PublicKey()),
		sealevel.NewTransferInstruction(alice.PublicKey(), solana.NewWallet().PublicKey(), 1),
		invokeIx(second, alice.PublicKey()),
	)
	loaded, err := loadTransaction(b.accounts, b.features, 0, &tx.Message, 0)
	require.NoError(t, err)

	n := len(tx.Message.AccountKeys)
	require.Greater(t, len(loaded.Keys), n)
	assert.Equal(t, []solana.PublicKey(tx.Message.AccountKeys), loaded.Keys[:n])
	assert.ElementsMatch(t, []solana.PublicKey{sealevel.BpfLoaderUpgradeableAddr, firstData, secondData}, loaded.Keys[n:])
	assert.Len(t, loaded.Accounts, len(loaded.Keys))
}

func TestLoad_NativeProgramChain(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)

	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), solana.NewWallet().PublicKey(), 1))
	loaded, err := loadTransaction(b.accounts, b.features, 0, &tx.Message, 0)
	require.NoError(t, err)

	require.Len(t, loaded.ProgramIndices, 1)
	require.Len(t, loaded.ProgramIndices[0], 1)
	assert.Equal(t, sealevel.SystemProgramAddr, loaded.Keys[loaded.ProgramIndices[0][0]])
	assert.Len(t, loaded.Keys, len(tx.Message.AccountKeys))
}

func TestLoad_WritableProgramRejected(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	program, _ := installUpgradeableProgram(t, b, "noop")
	native := installLoaderChain(b, 1)

	for _, target := range []solana.PublicKey{program, native} {
		ix := sealevel.NewTransferInstruction(alice.PublicKey(), target, 1)
		_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, ix))
		assert.ErrorIs(t, err, TxErrInvalidWritableAccount, target.String())
	}
}

func TestLoad_DataSizeLimit(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	big := solana.NewWallet().PublicKey()
	b.SetAccount(big, &accounts.Account{Lamports: 1, Data: make([]byte, 1_000), Owner: sealevel.SystemProgramAddr})

	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), big, 1))

	_, err := loadTransaction(b.accounts, b.features, 999, &tx.Message, 0)
	assert.ErrorIs(t, err, TxErrMaxLoadedAccountsDataSizeExceeded)

	_, err = loadTransaction(b.accounts, b.features, 1_000, &tx.Message, 0)
	assert.NoError(t, err)
}

func TestLoad_InstructionsSysvarSynthesized(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)

	ix := sealevel.NewTransferInstruction(alice.PublicKey(), solana.NewWallet().PublicKey(), 1)
	ix.Accounts = append(ix.Accounts, sealevel.AccountMeta{Pubkey: sealevel.SysvarInstructionsAddr})
	tx := b.testTx(t, []solana.PrivateKey{alice}, ix)

	loaded, err := loadTransaction(b.accounts, b.features, 0, &tx.Message, 0)
	require.NoError(t, err)

	idx, ok := loaded.indexOf(sealevel.SysvarInstructionsAddr)
	require.True(t, ok)
	acct := loaded.Accounts[idx]
	assert.NotEmpty(t, acct.Data)
	assert.Equal(t, sealevel.SystemProgramAddr, solana.PublicKey(acct.Owner))
	assert.Nil(t, b.GetAccount(sealevel.SysvarInstructionsAddr))
}

func TestValidateFeePayer(t *testing.T) {
	system := [32]byte(sealevel.SystemProgramAddr)

	assert.ErrorIs(t, validateFeePayer(&accounts.Account{Data: []byte{}, Owner: system}, 0), TxErrAccountNotFound)
	assert.ErrorIs(t, validateFeePayer(&accounts.Account{Lamports: 10, Data: []byte{}, Owner: system}, 11), TxErrInsufficientFundsForFee)
	assert.NoError(t, validateFeePayer(&accounts.Account{Lamports: 10, Data: []byte{}, Owner: system}, 10))

	nonceData, err := sealevel.NewInitializedNonceState(sealevel.SystemProgramAddr, [32]byte{1}, 0).Marshal()
	require.NoError(t, err)
	require.Len(t, nonceData, sealevel.NonceStateSize)
	assert.ErrorIs(t, validateFeePayer(&accounts.Account{Lamports: 10, Data: nonceData, Owner: system}, 0), TxErrInvalidAccountForFee)
}
