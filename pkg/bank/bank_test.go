package bank

import (
	"errors"
	"fmt"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/minio/sha256-simd"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/config"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Genesis(t *testing.T) {
	b := newTestBank(t)

	assert.Equal(t, uint64(0), b.Slot())
	assert.Equal(t, uint64(0), b.BlockHeight())
	assert.Equal(t, solana.Hash(sha256.Sum256([]byte("playnet"))), b.GenesisHash())
	assert.Equal(t, b.GenesisHash(), b.LatestBlockhash())

	for _, programId := range []solana.PublicKey{sealevel.SystemProgramAddr, sealevel.BpfLoaderAddr, sealevel.BpfLoaderUpgradeableAddr} {
		acct := b.GetAccount(programId)
		require.NotNil(t, acct, programId.String())
		assert.True(t, acct.Executable)
		assert.Equal(t, uint64(1), acct.Lamports)
		assert.Equal(t, sealevel.NativeLoaderAddr, solana.PublicKey(acct.Owner))
	}

	for _, sysvar := range []solana.PublicKey{sealevel.SysvarClockAddr, sealevel.SysvarRentAddr, sealevel.SysvarRecentBlockHashesAddr} {
		acct := b.GetAccount(sysvar)
		require.NotNil(t, acct, sysvar.String())
		assert.Equal(t, sealevel.SysvarOwnerAddr, solana.PublicKey(acct.Owner))
	}

	airdrop := b.GetAccount(b.AirdropPubkey())
	require.NotNil(t, airdrop)
	assert.Equal(t, uint64(config.DefaultAirdropLamports), airdrop.Lamports)
	assert.Equal(t, sealevel.SystemProgramAddr, solana.PublicKey(airdrop.Owner))
}

func TestNew_AirdropSignerSurvivesSnapshot(t *testing.T) {
	b := newTestBank(t)
	assert.NotEqual(t, b.AirdropPubkey(), newTestBank(t).AirdropPubkey())

	snap, err := b.Snapshot()
	require.NoError(t, err)
	restored := New(config.Default(), snap)
	assert.Equal(t, b.AirdropPubkey(), restored.AirdropPubkey())

	// the restored signer still controls the funded account
	to := solana.NewWallet().PublicKey()
	_, err = restored.Airdrop(to, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), restored.GetAccount(to).Lamports)

	cfg := config.Default()
	cfg.GenesisSeed = "other"
	assert.NotEqual(t, b.GenesisHash(), New(cfg, nil).GenesisHash())
}

func TestAirdropThenTransfer(t *testing.T) {
	b := newTestBank(t)
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()

	genesisHash := b.LatestBlockhash()
	genesisSupply := totalLamports(b)
	sig, err := b.Airdrop(alice.PublicKey(), 5_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, genesisSupply, totalLamports(b))
	assert.Equal(t, uint64(1), b.Slot())
	assert.Equal(t, uint64(1), b.BlockHeight())
	assert.NotEqual(t, genesisHash, b.LatestBlockhash())
	assert.Equal(t, solana.Hash(sha256.Sum256(genesisHash[:])), b.LatestBlockhash())
	assert.Equal(t, uint64(5_000_000_000), b.GetAccount(alice.PublicKey()).Lamports)
	assert.Equal(t, uint64(config.DefaultAirdropLamports-5_000_000_000), b.GetAccount(b.AirdropPubkey()).Lamports)

	record, ok := b.GetTransaction(sig)
	require.True(t, ok)
	assert.Equal(t, uint64(0), record.Slot)
	assert.NoError(t, record.Meta.Err)
	assert.Equal(t, uint64(0), record.Meta.Fee)

	supply := totalLamports(b)
	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 1_000_000))
	sig, err = b.Process(tx)
	require.NoError(t, err)
	assert.Equal(t, supply, totalLamports(b))
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Equal(t, uint64(2), b.Slot())
	assert.Equal(t, uint64(5_000_000_000-1_000_000), b.GetAccount(alice.PublicKey()).Lamports)
	assert.Equal(t, uint64(1_000_000), b.GetAccount(bob).Lamports)

	record, ok = b.GetTransaction(sig)
	require.True(t, ok)
	assert.Equal(t, uint64(1), record.Slot)
	assert.Equal(t, []uint64{5_000_000_000, 0, 1}, record.Meta.PreBalances)
	assert.Equal(t, []uint64{5_000_000_000 - 1_000_000, 1_000_000, 1}, record.Meta.PostBalances)
	assert.Equal(t, uint64(sealevel.CUSystemProgramDefaultComputeUnits), record.Meta.ComputeUnitsConsumed)
	assert.Contains(t, record.Meta.LogMessages, "Program 11111111111111111111111111111111 invoke [1]")
	assert.Contains(t, record.Meta.LogMessages, "Program 11111111111111111111111111111111 success")
	assert.Equal(t, b.Clock().UnixTimestamp, *record.BlockTime)
}

func TestProcess_FailureLeavesStateUntouched(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 5_000_000_000)
	bob := fundedKeypair(b, 1_000_000)

	cases := []struct {
		name    string
		signers []solana.PrivateKey
		ix      sealevel.Instruction
		err     error
	}{
		{
			name:    "overspend",
			signers: []solana.PrivateKey{alice},
			ix:      sealevel.NewTransferInstruction(alice.PublicKey(), bob.PublicKey(), 10_000_000_000),
			err:     sealevel.SystemProgErrResultWithNegativeLamports,
		},
		{
			name:    "create existing account",
			signers: []solana.PrivateKey{alice, bob},
			ix:      sealevel.NewCreateAccountInstruction(alice.PublicKey(), bob.PublicKey(), 1_000, 0, sealevel.SystemProgramAddr),
			err:     sealevel.SystemProgErrAccountAlreadyInUse,
		},
		{
			name:    "assign without signature",
			signers: []solana.PrivateKey{alice},
			ix: func() sealevel.Instruction {
				ix := sealevel.NewAssignInstruction(bob.PublicKey(), sealevel.BpfLoaderUpgradeableAddr)
				ix.Accounts[0].IsSigner = false
				return ix
			}(),
			err: sealevel.InstrErrMissingRequiredSignature,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := snapshotState(b)
			hashBefore := b.AccountsHash()
			slot := b.Slot()
			blockhash := b.LatestBlockhash()

			_, err := b.Process(b.testTx(t, tc.signers, tc.ix))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)

			var instrErr *InstructionError
			require.True(t, errors.As(err, &instrErr))
			assert.Equal(t, 0, instrErr.Index)

			assert.Equal(t, before, snapshotState(b))
			assert.Equal(t, hashBefore, b.AccountsHash())
			assert.Equal(t, slot, b.Slot())
			assert.Equal(t, blockhash, b.LatestBlockhash())
		})
	}
}

func TestProcess_AlreadyProcessed(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	bob := solana.NewWallet().PublicKey()

	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 1_000))
	_, err := b.Process(tx)
	require.NoError(t, err)

	_, err = b.Process(tx)
	assert.ErrorIs(t, err, TxErrAlreadyProcessed)
	assert.Equal(t, uint64(1_000), b.GetAccount(bob).Lamports)
	assert.Equal(t, uint64(1), b.Slot())
}

func TestProcess_Fees(t *testing.T) {
	cfg := config.Default()
	cfg.LamportsPerSignature = 5_000
	b := New(cfg, nil)

	alice := fundedKeypair(b, 1_000_000)
	bob := solana.NewWallet().PublicKey()

	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 1_000))
	fee, ok := b.FeeForMessage(&tx.Message)
	require.True(t, ok)
	assert.Equal(t, uint64(5_000), fee)

	sig, err := b.Process(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000-5_000-1_000), b.GetAccount(alice.PublicKey()).Lamports)

	record, ok := b.GetTransaction(sig)
	require.True(t, ok)
	assert.Equal(t, uint64(5_000), record.Meta.Fee)
	assert.Equal(t, uint64(1_000_000), record.Meta.PreBalances[0])

	poor := fundedKeypair(b, 4_999)
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{poor}, sealevel.NewTransferInstruction(poor.PublicKey(), bob, 1)))
	assert.ErrorIs(t, err, TxErrInsufficientFundsForFee)
	assert.Equal(t, uint64(4_999), b.GetAccount(poor.PublicKey()).Lamports)
}

func TestProcess_FeePayerValidation(t *testing.T) {
	b := newTestBank(t)
	bob := solana.NewWallet().PublicKey()

	missing := solana.NewWallet().PrivateKey
	_, err := b.Process(b.testTx(t, []solana.PrivateKey{missing}, sealevel.NewTransferInstruction(missing.PublicKey(), bob, 1)))
	assert.ErrorIs(t, err, TxErrAccountNotFound)

	withData := solana.NewWallet().PrivateKey
	b.SetAccount(withData.PublicKey(), &accounts.Account{Lamports: 1_000, Data: []byte{1}, Owner: sealevel.SystemProgramAddr})
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{withData}, sealevel.NewTransferInstruction(withData.PublicKey(), bob, 1)))
	assert.ErrorIs(t, err, TxErrInvalidAccountForFee)

	foreign := solana.NewWallet().PrivateKey
	b.SetAccount(foreign.PublicKey(), &accounts.Account{Lamports: 1_000, Data: []byte{}, Owner: sealevel.BpfLoaderAddr})
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{foreign}, sealevel.NewTransferInstruction(foreign.PublicKey(), bob, 1)))
	assert.ErrorIs(t, err, TxErrInvalidAccountForFee)
}

func TestSimulate_DoesNotMutate(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	bob := solana.NewWallet().PublicKey()

	hashBefore := b.AccountsHash()
	tx := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 1_000))

	result := b.Simulate(tx)
	require.NoError(t, result.Err)
	require.Len(t, result.PostAccounts, 3)
	assert.Equal(t, bob, result.PostAccounts[1].Pubkey)
	assert.Equal(t, uint64(1_000), result.PostAccounts[1].Account.Lamports)
	assert.Equal(t, uint64(0), result.PreAccounts[1].Account.Lamports)
	assert.Equal(t, uint64(sealevel.CUSystemProgramDefaultComputeUnits), result.UnitsConsumed)
	assert.NotEmpty(t, result.Logs)

	assert.Equal(t, hashBefore, b.AccountsHash())
	assert.Nil(t, b.GetAccount(bob))
	assert.Equal(t, uint64(0), b.Slot())
	_, ok := b.GetTransaction(tx.Signatures[0])
	assert.False(t, ok)

	failing := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 2_000_000))
	result = b.Simulate(failing)
	assert.ErrorIs(t, result.Err, sealevel.SystemProgErrResultWithNegativeLamports)
	assert.Nil(t, result.PostAccounts)
	assert.NotEmpty(t, result.Logs)
}

func TestProcess_UpgradeableWriteSkipsHistory(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 10_000_000_000)
	buffer := solana.NewWallet().PrivateKey

	size := sealevel.UpgradeableLoaderSizeOfBuffer(4)
	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice, buffer},
		sealevel.NewCreateAccountInstruction(alice.PublicKey(), buffer.PublicKey(), b.MinimumBalanceForRentExemption(size), size, sealevel.BpfLoaderUpgradeableAddr),
		sealevel.NewInitializeBufferInstruction(buffer.PublicKey(), alice.PublicKey()),
	))
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.Slot())

	blockhash := b.LatestBlockhash()
	write := b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewWriteInstruction(buffer.PublicKey(), alice.PublicKey(), 0, []byte("code")))
	sig, err := b.Process(write)
	require.NoError(t, err)
	assert.Equal(t, write.Signatures[0], sig)

	assert.Equal(t, uint64(1), b.Slot())
	assert.Equal(t, blockhash, b.LatestBlockhash())
	_, ok := b.GetTransaction(sig)
	assert.False(t, ok)
	assert.Equal(t, []byte("code"), b.GetAccount(buffer.PublicKey()).Data[sealevel.UpgradeableLoaderSizeOfBufferMetaData:])

	// invisible to history, so a resend is not a duplicate
	_, err = b.Process(write)
	assert.NoError(t, err)
}

func TestProcess_ProgramWithCrossProgramInvocation(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	bob := solana.NewWallet().PublicKey()
	program, _ := installUpgradeableProgram(t, b, "cpi-transfer")

	ix := sealevel.Instruction{
		ProgramId: program,
		Accounts: []sealevel.AccountMeta{
			{Pubkey: alice.PublicKey(), IsSigner: true, IsWritable: true},
			{Pubkey: bob, IsWritable: true},
			{Pubkey: sealevel.SystemProgramAddr},
		},
	}

	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, ix))
	assert.ErrorIs(t, err, sealevel.InstrErrUnsupportedProgramId)

	b.SetInterpreter(&testInterpreter{programs: map[string]testProgramFn{
		"cpi-transfer": func(execCtx *sealevel.ExecutionCtx) error {
			if err := execCtx.NativeInvoke(sealevel.NewTransferInstruction(alice.PublicKey(), bob, 10), nil); err != nil {
				return err
			}
			execCtx.TransactionContext.SetReturnData(program, []byte{7, 0, 0})
			return nil
		},
	}})

	supply := totalLamports(b)
	tx := b.testTx(t, []solana.PrivateKey{alice}, ix)
	sig, err := b.Process(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), b.GetAccount(bob).Lamports)
	assert.Equal(t, supply, totalLamports(b))

	record, ok := b.GetTransaction(sig)
	require.True(t, ok)
	require.Len(t, record.Meta.InnerInstructions, 1)
	inner := record.Meta.InnerInstructions[0]
	assert.Equal(t, uint8(0), inner.Index)
	require.Len(t, inner.Instructions, 1)
	assert.Equal(t, uint8(2), inner.Instructions[0].StackHeight)
	assert.Equal(t, sealevel.SystemProgramAddr, tx.Message.AccountKeys[inner.Instructions[0].Instruction.ProgramIDIndex])

	require.NotNil(t, record.Meta.ReturnData)
	assert.Equal(t, program, record.Meta.ReturnData.ProgramId)
	assert.Equal(t, []byte{7}, record.Meta.ReturnData.Data)

	assert.Contains(t, record.Meta.LogMessages, fmt.Sprintf("Program %s invoke [1]", program))
	assert.Contains(t, record.Meta.LogMessages, "Program 11111111111111111111111111111111 invoke [2]")
}

func TestProcess_ReturnDataSurvivesLaterBuiltin(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000)
	bob := solana.NewWallet().PublicKey()
	program, _ := installUpgradeableProgram(t, b, "returns-then-pays")

	b.SetInterpreter(&testInterpreter{programs: map[string]testProgramFn{
		"returns-then-pays": func(execCtx *sealevel.ExecutionCtx) error {
			execCtx.TransactionContext.SetReturnData(program, []byte{9})
			return execCtx.NativeInvoke(sealevel.NewTransferInstruction(alice.PublicKey(), bob, 5), nil)
		},
	}})

	ix := sealevel.Instruction{
		ProgramId: program,
		Accounts: []sealevel.AccountMeta{
			{Pubkey: alice.PublicKey(), IsSigner: true, IsWritable: true},
			{Pubkey: bob, IsWritable: true},
			{Pubkey: sealevel.SystemProgramAddr},
		},
	}

	// a system CPI made after the caller sets return data leaves it alone
	result := b.Simulate(b.testTx(t, []solana.PrivateKey{alice}, ix))
	require.NoError(t, result.Err)
	require.NotNil(t, result.ReturnData)
	assert.Equal(t, program, result.ReturnData.ProgramId)
	assert.Equal(t, []byte{9}, result.ReturnData.Data)

	// so does a later top-level system instruction
	result = b.Simulate(b.testTx(t, []solana.PrivateKey{alice}, ix, sealevel.NewTransferInstruction(alice.PublicKey(), bob, 1)))
	require.NoError(t, result.Err)
	require.NotNil(t, result.ReturnData)
	assert.Equal(t, program, result.ReturnData.ProgramId)
	assert.Equal(t, []byte{9}, result.ReturnData.Data)
}

func TestProcess_NonceLifecycle(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000_000_000)
	nonce := solana.NewWallet().PrivateKey

	supply := totalLamports(b)
	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice, nonce},
		sealevel.NewCreateAccountInstruction(alice.PublicKey(), nonce.PublicKey(), b.MinimumBalanceForRentExemption(sealevel.NonceStateSize), sealevel.NonceStateSize, sealevel.SystemProgramAddr),
		sealevel.NewInitializeNonceAccountInstruction(nonce.PublicKey(), alice.PublicKey()),
	))
	require.NoError(t, err)
	assert.Equal(t, supply, totalLamports(b))

	state, err := sealevel.UnmarshalNonceStateVersions(b.GetAccount(nonce.PublicKey()).Data)
	require.NoError(t, err)
	require.True(t, state.State.IsInitialized)
	assert.Equal(t, alice.PublicKey(), state.State.Authority)
	assert.Equal(t, sealevel.DurableNonceFromBlockhash(b.GenesisHash()), state.State.DurableNonce)

	_, err = b.Process(b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewAdvanceNonceAccountInstruction(nonce.PublicKey(), alice.PublicKey())))
	require.NoError(t, err)

	advanced, err := sealevel.UnmarshalNonceStateVersions(b.GetAccount(nonce.PublicKey()).Data)
	require.NoError(t, err)
	assert.NotEqual(t, state.State.DurableNonce, advanced.State.DurableNonce)

	// a nonce account cannot pay fees
	_, err = b.Process(b.testTx(t, []solana.PrivateKey{nonce}, sealevel.NewTransferInstruction(nonce.PublicKey(), alice.PublicKey(), 1)))
	assert.ErrorIs(t, err, TxErrInvalidAccountForFee)
}

func TestGetSignatureStatus(t *testing.T) {
	b := newTestBank(t)

	_, ok := b.GetSignatureStatus(solana.Signature{})
	assert.False(t, ok)

	sig, err := b.Airdrop(solana.NewWallet().PublicKey(), 1)
	require.NoError(t, err)

	status, ok := b.GetSignatureStatus(sig)
	require.True(t, ok)
	assert.Equal(t, uint64(0), status.Slot)
	assert.Equal(t, uint64(1), status.Confirmations)
	assert.Equal(t, ConfirmationConfirmed, status.ConfirmationStatus)

	for i := 0; i < MaxConfirmations; i++ {
		_, err := b.Airdrop(solana.NewWallet().PublicKey(), 1)
		require.NoError(t, err)
	}
	status, ok = b.GetSignatureStatus(sig)
	require.True(t, ok)
	assert.Equal(t, ConfirmationFinalized, status.ConfirmationStatus)
}

func TestSetAccount_ReturnsPrevious(t *testing.T) {
	b := newTestBank(t)
	key := solana.NewWallet().PublicKey()

	assert.Nil(t, b.SetAccount(key, &accounts.Account{Lamports: 5, Data: []byte{}, Owner: sealevel.SystemProgramAddr}))
	prev := b.SetAccount(key, &accounts.Account{Lamports: 7, Data: []byte{}, Owner: sealevel.SystemProgramAddr})
	require.NotNil(t, prev)
	assert.Equal(t, uint64(5), prev.Lamports)
	assert.Equal(t, uint64(7), b.GetAccount(key).Lamports)

	b.SetAccount(key, &accounts.Account{Data: []byte{}})
	assert.Nil(t, b.GetAccount(key))
	assert.NotNil(t, b.GetAccountOrDefault(key))
}

func TestMinimumBalanceForRentExemption(t *testing.T) {
	b := newTestBank(t)
	assert.Equal(t, b.Rent().MinimumBalance(80), b.MinimumBalanceForRentExemption(80))

	cfg := config.Default()
	cfg.Rent = &config.RentConfig{}
	zero := New(cfg, nil)
	assert.Equal(t, uint64(1), zero.MinimumBalanceForRentExemption(0))
}

func TestSetClock(t *testing.T) {
	b := newTestBank(t)
	clock := b.Clock()
	clock.UnixTimestamp = 1_700_000_000
	b.SetClock(clock)

	assert.Equal(t, int64(1_700_000_000), b.Clock().UnixTimestamp)
	var decoded sealevel.SysvarClock
	require.NoError(t, decoded.UnmarshalWithDecoder(bin.NewBinDecoder(b.GetAccount(sealevel.SysvarClockAddr).Data)))
	assert.Equal(t, int64(1_700_000_000), decoded.UnixTimestamp)

	_, err := b.Airdrop(solana.NewWallet().PublicKey(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Clock().Slot)
	assert.Equal(t, int64(1_700_000_000), b.Clock().UnixTimestamp)
}

func TestMetrics_CountOutcomes(t *testing.T) {
	b := newTestBank(t)
	alice := fundedKeypair(b, 1_000)

	_, err := b.Process(b.testTx(t, []solana.PrivateKey{alice}, sealevel.NewTransferInstruction(alice.PublicKey(), solana.NewWallet().PublicKey(), 10_000)))
	require.Error(t, err)
	_, err = b.Airdrop(alice.PublicKey(), 1)
	require.NoError(t, err)

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), values["playnet_transaction_errors_total"])
	assert.Equal(t, float64(1), values["playnet_transactions_processed_total"])
	assert.Equal(t, float64(2), values["playnet_transactions_simulated_total"])
	assert.Equal(t, float64(1), values["playnet_slot"])
}
