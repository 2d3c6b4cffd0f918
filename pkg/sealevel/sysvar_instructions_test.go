package sealevel

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysvar_Instructions_RoundTrip(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	nonce := solana.NewWallet().PublicKey()

	instrs := []Instruction{
		NewAdvanceNonceAccountInstruction(nonce, from),
		NewTransferInstruction(from, to, 42),
	}
	data := MarshalInstructions(instrs)
	assert.Len(t, data, int(instructionsMarshaledSize(instrs)))

	idx, err := LoadCurrentIndex(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)

	for i, want := range instrs {
		got, err := LoadInstructionAt(data, uint16(i))
		require.NoError(t, err)
		assert.Equal(t, want.ProgramId, got.ProgramId)
		assert.Equal(t, want.Data, got.Data)
		assert.Equal(t, want.Accounts, got.Accounts)
	}

	_, err = LoadInstructionAt(data, 2)
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
}

func TestSysvar_Instructions_CurrentIndex(t *testing.T) {
	data := MarshalInstructions([]Instruction{
		NewTransferInstruction(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1),
	})

	StoreCurrentIndex(data, 7)
	idx, err := LoadCurrentIndex(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), idx)

	// the index lives after the last instruction and does not disturb it
	instr, err := LoadInstructionAt(data, 0)
	require.NoError(t, err)
	assert.Equal(t, SystemProgramAddr, instr.ProgramId)

	_, err = LoadCurrentIndex([]byte{1})
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestSysvar_Instructions_Truncated(t *testing.T) {
	data := MarshalInstructions([]Instruction{
		NewTransferInstruction(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1),
	})

	_, err := LoadInstructionAt(data[:40], 0)
	assert.ErrorIs(t, err, InstrErrInvalidAccountData)
}

func TestSysvar_Instructions_AccountOwner(t *testing.T) {
	f := features.NewFeaturesDefault()
	acct := NewInstructionsSysvarAccount(nil, f)
	assert.Equal(t, SystemProgramAddr, solana.PublicKeyFromBytes(acct.Owner[:]))
	assert.Equal(t, uint64(0), acct.Lamports)
	assert.Len(t, acct.Data, 4)

	f.EnableFeature(features.InstructionsSysvarOwnedBySysvar, 0)
	acct = NewInstructionsSysvarAccount(nil, f)
	assert.Equal(t, SysvarOwnerAddr, solana.PublicKeyFromBytes(acct.Owner[:]))
}
