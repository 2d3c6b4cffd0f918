package snapstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/bank"
	"github.com/solana-playground/playnet/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "snapshots.db")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func TestStore_PutGetListDelete(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	blob := bytes.Repeat([]byte("playnet"), 1000)
	require.NoError(t, store.Put("b", blob))
	require.NoError(t, store.Put("a", []byte("{}")))

	got, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, store.Delete("a"))
	_, err = store.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("a"), ErrNotFound)
	assert.ErrorIs(t, store.Put("", blob), ErrEmptyName)
}

func TestStore_PersistsBankAcrossReopen(t *testing.T) {
	store, path := openTestStore(t)

	b := bank.New(config.Default(), nil)
	_, err := b.Airdrop(solana.NewWallet().PublicKey(), 1)
	require.NoError(t, err)
	snap, err := b.Snapshot()
	require.NoError(t, err)
	require.NoError(t, store.Put("default", snap))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Get("default")
	require.NoError(t, err)
	restored := bank.New(config.Default(), loaded)
	assert.Equal(t, b.Slot(), restored.Slot())
	assert.Equal(t, b.AccountsHash(), restored.AccountsHash())
}
