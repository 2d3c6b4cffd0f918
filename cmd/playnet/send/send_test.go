package send

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/solana-playground/playnet/pkg/bank"
	"github.com/solana-playground/playnet/pkg/snapstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedTransfer(t *testing.T, from solana.PrivateKey, blockhash solana.Hash) string {
	t.Helper()
	tx, err := solana.NewTransaction([]solana.Instruction{
		system.NewTransferInstruction(1, from.PublicKey(), solana.NewWallet().PublicKey()).Build(),
	}, blockhash, solana.TransactionPayer(from.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key == from.PublicKey() {
			return &from
		}
		return nil
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestRun_FailedTransactionReleasesStore(t *testing.T) {
	session.DbPath = filepath.Join(t.TempDir(), "playnet.db")
	session.Name = "default"
	encoding = "base64"
	simulate = false

	err := run(&Cmd, []string{encodedTransfer(t, solana.NewWallet().PrivateKey, solana.Hash{})})
	require.Error(t, err)
	assert.ErrorIs(t, err, bank.TxErrAccountNotFound)

	// a second open times out if the failed command left the file locked
	store, err := snapstore.Open(session.DbPath)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestRun_UndecodableTransaction(t *testing.T) {
	session.DbPath = filepath.Join(t.TempDir(), "playnet.db")
	encoding = "base58"

	assert.Error(t, run(&Cmd, []string{"0OIl"}))
}
