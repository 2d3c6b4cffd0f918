package bank

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSanitizeTx(t *testing.T) (*solana.Transaction, solana.PrivateKey) {
	t.Helper()
	payer := solana.NewWallet().PrivateKey
	tx := signedTx(t, solana.Hash{}, []solana.PrivateKey{payer}, sealevel.NewTransferInstruction(payer.PublicKey(), solana.NewWallet().PublicKey(), 1))
	return tx, payer
}

func TestSanitizeTransaction_Valid(t *testing.T) {
	tx, _ := newSanitizeTx(t)
	assert.NoError(t, SanitizeTransaction(tx))
}

func TestSanitizeTransaction_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(tx *solana.Transaction)
		err    error
	}{
		{
			name: "missing signature",
			mutate: func(tx *solana.Transaction) {
				tx.Signatures = nil
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "tampered signature",
			mutate: func(tx *solana.Transaction) {
				tx.Signatures[0][0] ^= 0xff
			},
			err: TxErrSignatureFailure,
		},
		{
			name: "duplicate key",
			mutate: func(tx *solana.Transaction) {
				tx.Message.AccountKeys[1] = tx.Message.AccountKeys[0]
			},
			err: TxErrAccountLoadedTwice,
		},
		{
			name: "fee payer as program",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Instructions[0].ProgramIDIndex = 0
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "program index out of range",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Instructions[0].ProgramIDIndex = 9
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "writable program",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Header.NumReadonlyUnsignedAccounts = 0
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "account index out of range",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Instructions[0].Accounts[1] = 3
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "no writable signer",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Header.NumReadonlySignedAccounts = 1
			},
			err: TxErrSanitizeFailure,
		},
		{
			name: "header exceeds keys",
			mutate: func(tx *solana.Transaction) {
				tx.Message.Header.NumReadonlyUnsignedAccounts = 3
			},
			err: TxErrSanitizeFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, _ := newSanitizeTx(t)
			tc.mutate(tx)
			assert.ErrorIs(t, SanitizeTransaction(tx), tc.err)
		})
	}
}

func TestSanitizeTransaction_LookupTablesDisabled(t *testing.T) {
	tx, _ := newSanitizeTx(t)
	tx.Message.AddAddressTableLookup(solana.MessageAddressTableLookup{
		AccountKey:      solana.NewWallet().PublicKey(),
		WritableIndexes: []uint8{0},
	})
	assert.ErrorIs(t, SanitizeTransaction(tx), TxErrAddressLookupTablesDisabled)
}

func TestSanitizeTransaction_RejectedByBank(t *testing.T) {
	b := newTestBank(t)
	tx, payer := newSanitizeTx(t)
	b.SetAccount(payer.PublicKey(), &accounts.Account{Lamports: 1_000, Data: []byte{}, Owner: sealevel.SystemProgramAddr})

	tx.Signatures[0][0] ^= 0xff
	_, err := b.Process(tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, TxErrSignatureFailure)
	assert.ErrorIs(t, b.Simulate(tx).Err, TxErrSignatureFailure)
}
