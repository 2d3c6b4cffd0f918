package accounts

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemAccounts_ZeroLamportsReadsAsAbsent(t *testing.T) {
	accts := NewMemAccounts()
	key := [32]byte(solana.NewWallet().PublicKey())

	prev := accts.Replace(&key, &Account{Lamports: 10, Data: []byte{1, 2, 3}, Owner: solana.SystemProgramID})
	assert.Nil(t, prev)

	acct, err := accts.GetAccount(&key)
	assert.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, uint64(10), acct.Lamports)

	prev = accts.Replace(&key, &Account{Lamports: 0, Data: []byte{}})
	require.NotNil(t, prev)
	assert.Equal(t, uint64(10), prev.Lamports)

	acct, err = accts.GetAccount(&key)
	assert.NoError(t, err)
	assert.Nil(t, acct)

	def := accts.GetAccountOrDefault(&key)
	assert.Equal(t, uint64(0), def.Lamports)
	assert.Empty(t, def.Data)
}

func TestMemAccounts_GetReturnsCopy(t *testing.T) {
	accts := NewMemAccounts()
	key := [32]byte{1}
	assert.NoError(t, accts.SetAccount(&key, &Account{Lamports: 5, Data: []byte{7}}))

	acct, _ := accts.GetAccount(&key)
	acct.Lamports = 1000
	acct.Data[0] = 9

	again, _ := accts.GetAccount(&key)
	assert.Equal(t, uint64(5), again.Lamports)
	assert.Equal(t, []byte{7}, again.Data)
}

func TestMemAccounts_RangeIsOrdered(t *testing.T) {
	accts := NewMemAccounts()
	for _, b := range []byte{9, 3, 7, 1} {
		key := [32]byte{b}
		accts.Replace(&key, &Account{Lamports: uint64(b)})
	}

	var seen []byte
	accts.Range(func(pubkey [32]byte, acct *Account) bool {
		seen = append(seen, pubkey[0])
		return true
	})
	assert.Equal(t, []byte{1, 3, 7, 9}, seen)
	assert.Equal(t, 4, accts.Len())
}

func TestMemAccounts_HashIgnoresDeadAccounts(t *testing.T) {
	a := NewMemAccounts()
	b := NewMemAccounts()

	live := [32]byte{1}
	dead := [32]byte{2}
	a.Replace(&live, &Account{Lamports: 1, Data: []byte{1}})
	b.Replace(&live, &Account{Lamports: 1, Data: []byte{1}})
	b.Replace(&dead, &Account{Lamports: 0})
	assert.Equal(t, a.Hash(), b.Hash())

	b.Replace(&live, &Account{Lamports: 2, Data: []byte{1}})
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestAccount_EncodeDecode(t *testing.T) {
	acct := Account{Lamports: 42, Data: []byte{1, 2, 3, 4}, Owner: solana.SystemProgramID, Executable: true, RentEpoch: 7}

	buf := new(bytes.Buffer)
	assert.NoError(t, acct.MarshalWithEncoder(bin.NewBinEncoder(buf)))

	var decoded Account
	assert.NoError(t, decoded.UnmarshalWithDecoder(bin.NewBinDecoder(buf.Bytes())))
	assert.True(t, acct.Equal(&decoded))
}
