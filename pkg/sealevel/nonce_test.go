package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/solana-playground/playnet/pkg/rent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNonceTestEnv(t *testing.T, nonceLamports uint64) (*testEnv, solana.PublicKey, solana.PublicKey) {
	env := newTestEnv(t)
	cache := newTestSysvarCache()
	env.addSysvars(cache)
	nonce := env.addAccount(solana.NewWallet().PublicKey(), accounts.NewAccount(nonceLamports, NonceStateSize, SystemProgramAddr))
	authority := env.newFundedAccount(1000)
	env.buildWithCache(nil, cache)
	return env, nonce, authority
}

func nonceState(t *testing.T, env *testEnv, nonce solana.PublicKey) *NonceStateVersions {
	state, err := UnmarshalNonceStateVersions(env.account(nonce).Data)
	require.NoError(t, err)
	return state
}

func TestDurableNonceFromBlockhash_IsDomainSeparated(t *testing.T) {
	blockhash := [32]byte{7}
	durable := DurableNonceFromBlockhash(blockhash)
	assert.NotEqual(t, blockhash, durable)
	assert.Equal(t, durable, DurableNonceFromBlockhash(blockhash))
}

func TestExecute_Nonce_Lifecycle(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance+500)

	require.NoError(t, env.process(NewInitializeNonceAccountInstruction(nonce, authority)))
	state := nonceState(t, env, nonce)
	assert.Equal(t, uint32(NonceVersionCurrent), state.Type)
	assert.True(t, state.State.IsInitialized)
	assert.Equal(t, authority, state.State.Authority)
	assert.Equal(t, DurableNonceFromBlockhash([32]byte{1}), state.State.DurableNonce)
	assert.Equal(t, uint64(5000), state.State.FeeCalculator.LamportsPerSignature)

	// same blockhash, nonce cannot advance
	err := env.process(NewAdvanceNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, NonceErrNotExpired)

	env.execCtx.Features.EnableFeature(features.MergeNonceErrorIntoSystemError, 0)
	err = env.process(NewAdvanceNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, SystemProgErrNonceBlockhashNotExpired)

	env.execCtx.Blockhash = [32]byte{2}
	require.NoError(t, env.process(NewAdvanceNonceAccountInstruction(nonce, authority)))
	assert.Equal(t, DurableNonceFromBlockhash([32]byte{2}), nonceState(t, env, nonce).State.DurableNonce)

	// partial withdraw must leave the account rent exempt
	to := authority
	err = env.process(NewWithdrawNonceAccountInstruction(nonce, authority, to, 501))
	assert.ErrorIs(t, err, InstrErrInsufficientFunds)
	require.NoError(t, env.process(NewWithdrawNonceAccountInstruction(nonce, authority, to, 500)))
	assert.Equal(t, minBalance, env.account(nonce).Lamports)
	assert.Equal(t, uint64(1500), env.account(authority).Lamports)
}

func TestExecute_Nonce_Initialize_Twice(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)

	require.NoError(t, env.process(NewInitializeNonceAccountInstruction(nonce, authority)))
	err := env.process(NewInitializeNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, NonceErrBadAccountState)

	env.execCtx.Features.EnableFeature(features.MergeNonceErrorIntoSystemError, 0)
	err = env.process(NewInitializeNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestExecute_Nonce_Initialize_NotRentExempt(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance-1)

	err := env.process(NewInitializeNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, InstrErrInsufficientFunds)
}

func TestExecute_Nonce_Initialize_EmptyRecentBlockhashes(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)
	env.execCtx.SysvarCache.SetRecentBlockHashes(nil)

	err := env.process(NewInitializeNonceAccountInstruction(nonce, authority))
	assert.ErrorIs(t, err, NonceErrNoRecentBlockhashes)
}

func TestExecute_Nonce_WrongSysvarAccount(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)

	instr := NewInitializeNonceAccountInstruction(nonce, authority)
	instr.Accounts[1] = NewAccountMeta(SysvarClockAddr, false, false)
	assert.ErrorIs(t, env.process(instr), InstrErrInvalidArgument)
}

func TestExecute_Nonce_Authorize(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)
	require.NoError(t, env.process(NewInitializeNonceAccountInstruction(nonce, authority)))

	newAuthority := solana.NewWallet().PublicKey()
	require.NoError(t, env.process(NewAuthorizeNonceAccountInstruction(nonce, authority, newAuthority)))
	assert.Equal(t, newAuthority, nonceState(t, env, nonce).State.Authority)

	// the old authority no longer controls the account
	err := env.process(NewAuthorizeNonceAccountInstruction(nonce, authority, authority))
	assert.ErrorIs(t, err, InstrErrMissingRequiredSignature)
}

func TestExecute_Nonce_WithdrawAll_RequiresExpiredNonce(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)
	require.NoError(t, env.process(NewInitializeNonceAccountInstruction(nonce, authority)))

	err := env.process(NewWithdrawNonceAccountInstruction(nonce, authority, authority, minBalance))
	assert.ErrorIs(t, err, NonceErrNotExpired)

	env.execCtx.Blockhash = [32]byte{9}
	require.NoError(t, env.process(NewWithdrawNonceAccountInstruction(nonce, authority, authority, minBalance)))
	assert.Equal(t, uint64(0), env.account(nonce).Lamports)
	assert.False(t, nonceState(t, env, nonce).State.IsInitialized)
}

func TestExecute_Nonce_UpgradeLegacy(t *testing.T) {
	minBalance := rent.Default().MinimumBalance(NonceStateSize)
	env, nonce, authority := newNonceTestEnv(t, minBalance)

	legacy := &NonceStateVersions{Type: NonceVersionLegacy, State: NonceData{
		IsInitialized: true,
		Authority:     authority,
		DurableNonce:  [32]byte{3},
	}}
	data, err := legacy.Marshal()
	require.NoError(t, err)
	copy(env.account(nonce).Data, data)

	require.NoError(t, env.process(NewUpgradeNonceAccountInstruction(nonce)))
	state := nonceState(t, env, nonce)
	assert.Equal(t, uint32(NonceVersionCurrent), state.Type)
	assert.Equal(t, DurableNonceFromBlockhash([32]byte{3}), state.State.DurableNonce)

	// already current
	assert.ErrorIs(t, env.process(NewUpgradeNonceAccountInstruction(nonce)), InstrErrInvalidArgument)
}

func TestIsInitializedNonceAccount(t *testing.T) {
	state, err := NewInitializedNonceState(solana.NewWallet().PublicKey(), [32]byte{1}, 5000).Marshal()
	require.NoError(t, err)
	assert.Len(t, state, NonceStateSize)
	assert.True(t, IsInitializedNonceAccount(state))
	assert.False(t, IsInitializedNonceAccount(make([]byte, NonceStateSize)))
	assert.False(t, IsInitializedNonceAccount(state[:40]))
}
