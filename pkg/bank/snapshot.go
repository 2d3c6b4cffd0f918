package bank

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/solana-playground/playnet/pkg/accounts"
)

type snapshotAccount struct {
	Lamports   uint64           `json:"lamports"`
	Data       []byte           `json:"data"`
	Owner      solana.PublicKey `json:"owner"`
	Executable bool             `json:"executable"`
	RentEpoch  uint64           `json:"rentEpoch"`
}

// bankSnapshot is the persisted part of a bank. History, builtins, the
// sysvar cache and the feature set are rebuilt on load.
type bankSnapshot struct {
	Accounts        map[string]snapshotAccount `json:"accounts"`
	Slot            uint64                     `json:"slot"`
	BlockHeight     uint64                     `json:"blockHeight"`
	GenesisHash     solana.Hash                `json:"genesisHash"`
	LatestBlockhash solana.Hash                `json:"latestBlockhash"`
	AirdropSigner   string                     `json:"airdropKp"`
}

// Snapshot encodes the bank state. Zero-lamport accounts are left out.
func (b *Bank) Snapshot() ([]byte, error) {
	snap := bankSnapshot{
		Accounts:        make(map[string]snapshotAccount, b.accounts.Len()),
		Slot:            b.slot,
		BlockHeight:     b.blockHeight,
		GenesisHash:     b.genesisHash,
		LatestBlockhash: b.latestBlockhash,
		AirdropSigner:   base58.Encode(b.airdropSigner),
	}

	b.accounts.Range(func(pubkey [32]byte, acct *accounts.Account) bool {
		if acct.Lamports == 0 {
			return true
		}
		snap.Accounts[solana.PublicKey(pubkey).String()] = snapshotAccount{
			Lamports:   acct.Lamports,
			Data:       acct.Data,
			Owner:      acct.Owner,
			Executable: acct.Executable,
			RentEpoch:  acct.RentEpoch,
		}
		return true
	})

	return json.Marshal(&snap)
}

func decodeSnapshot(data []byte) (*bankSnapshot, error) {
	var snap bankSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding bank snapshot: %w", err)
	}

	signer, err := base58.Decode(snap.AirdropSigner)
	if err != nil {
		return nil, fmt.Errorf("decoding airdrop keypair: %w", err)
	}
	if len(signer) != 64 {
		return nil, fmt.Errorf("airdrop keypair has %d bytes", len(signer))
	}

	for key := range snap.Accounts {
		if _, err := solana.PublicKeyFromBase58(key); err != nil {
			return nil, fmt.Errorf("decoding account key %q: %w", key, err)
		}
	}

	return &snap, nil
}

func (snap *bankSnapshot) restoreInto(b *Bank) {
	for key, acct := range snap.Accounts {
		pubkey := [32]byte(solana.MustPublicKeyFromBase58(key))
		data := acct.Data
		if data == nil {
			data = []byte{}
		}
		b.accounts.Replace(&pubkey, &accounts.Account{
			Lamports:   acct.Lamports,
			Data:       data,
			Owner:      acct.Owner,
			Executable: acct.Executable,
			RentEpoch:  acct.RentEpoch,
		})
	}

	signer, _ := base58.Decode(snap.AirdropSigner)
	b.airdropSigner = solana.PrivateKey(signer)
	b.slot = snap.Slot
	b.blockHeight = snap.BlockHeight
	b.genesisHash = snap.GenesisHash
	b.latestBlockhash = snap.LatestBlockhash
}
