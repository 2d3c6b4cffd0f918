package accounts

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

func CalculateAcctHash(pubkey [32]byte, acct *Account) []byte {
	hasher := blake3.New()

	var lamportBytes [8]byte
	binary.LittleEndian.PutUint64(lamportBytes[:], acct.Lamports)
	_, _ = hasher.Write(lamportBytes[:])

	var rentEpochBytes [8]byte
	binary.LittleEndian.PutUint64(rentEpochBytes[:], acct.RentEpoch)
	_, _ = hasher.Write(rentEpochBytes[:])

	_, _ = hasher.Write(acct.Data)

	if acct.Executable {
		_, _ = hasher.Write([]byte{1})
	} else {
		_, _ = hasher.Write([]byte{0})
	}

	_, _ = hasher.Write(acct.Owner[:])
	_, _ = hasher.Write(pubkey[:])

	return hasher.Sum(nil)
}

// Hash digests every live account of the store in key order. Zero-lamport
// records are skipped since they read back as absent.
func (m *MemAccounts) Hash() [32]byte {
	hasher := blake3.New()
	m.Range(func(pubkey [32]byte, acct *Account) bool {
		if acct.Lamports != 0 {
			_, _ = hasher.Write(CalculateAcctHash(pubkey, acct))
		}
		return true
	})

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
