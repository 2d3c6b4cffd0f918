package accounts

import (
	"bytes"

	"github.com/google/btree"
)

type memEntry struct {
	key     [32]byte
	account *Account
}

func memEntryLess(a, b memEntry) bool {
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// MemAccounts is the RAM-resident account store. Entries are kept in key
// order so that digests and snapshots are reproducible.
type MemAccounts struct {
	tree *btree.BTreeG[memEntry]
}

func NewMemAccounts() *MemAccounts {
	return &MemAccounts{
		tree: btree.NewG[memEntry](32, memEntryLess),
	}
}

// GetAccount returns a copy of the stored record, or nil when the key is
// absent or holds zero lamports.
func (m *MemAccounts) GetAccount(pubkey *[32]byte) (*Account, error) {
	entry, ok := m.tree.Get(memEntry{key: *pubkey})
	if !ok || entry.account.Lamports == 0 {
		return nil, nil
	}
	return entry.account.Clone(), nil
}

// GetAccountOrDefault materialises an empty record for absent keys.
func (m *MemAccounts) GetAccountOrDefault(pubkey *[32]byte) *Account {
	acct, _ := m.GetAccount(pubkey)
	if acct == nil {
		return &Account{Data: []byte{}}
	}
	return acct
}

func (m *MemAccounts) SetAccount(pubkey *[32]byte, acc *Account) error {
	m.Replace(pubkey, acc)
	return nil
}

// Replace stores acc under pubkey and returns the previous record, if any.
func (m *MemAccounts) Replace(pubkey *[32]byte, acc *Account) *Account {
	prev, replaced := m.tree.ReplaceOrInsert(memEntry{key: *pubkey, account: acc.Clone()})
	if !replaced {
		return nil
	}
	return prev.account
}

func (m *MemAccounts) Len() int {
	return m.tree.Len()
}

// Range visits every stored record in ascending key order, including
// zero-lamport ones. Returning false stops the walk.
func (m *MemAccounts) Range(fn func(pubkey [32]byte, acct *Account) bool) {
	m.tree.Ascend(func(entry memEntry) bool {
		return fn(entry.key, entry.account)
	})
}
