package accounts

import (
	"bytes"
	"fmt"
	"io"

	bin "github.com/gagliardetto/binary"
)

type Accounts interface {
	GetAccount(pubkey *[32]byte) (*Account, error)
	SetAccount(pubkey *[32]byte, acc *Account) error
}

type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      [32]byte
	Executable bool
	RentEpoch  uint64
}

// NewAccount mirrors the on-chain constructor: zeroed data of the given length.
func NewAccount(lamports uint64, space uint64, owner [32]byte) *Account {
	return &Account{Lamports: lamports, Data: make([]byte, space), Owner: owner}
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = bytes.Clone(a.Data)
	if clone.Data == nil {
		clone.Data = []byte{}
	}
	return &clone
}

func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Lamports == other.Lamports &&
		a.Owner == other.Owner &&
		a.Executable == other.Executable &&
		a.RentEpoch == other.RentEpoch &&
		bytes.Equal(a.Data, other.Data)
}

func (a *Account) SetData(data []byte) {
	a.Data = data
}

func (a *Account) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	a.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read lamports: %w", err)
	}
	var dataLen uint64
	dataLen, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read data length: %w", err)
	}
	if dataLen > uint64(decoder.Remaining()) {
		return io.ErrUnexpectedEOF
	}
	a.Data, err = decoder.ReadNBytes(int(dataLen))
	if err != nil {
		return err
	}
	owner, err := decoder.ReadNBytes(32)
	if err != nil {
		return fmt.Errorf("failed to read owner: %w", err)
	}
	copy(a.Owner[:], owner)
	a.Executable, err = decoder.ReadBool()
	if err != nil {
		return err
	}
	a.RentEpoch, err = decoder.ReadUint64(bin.LE)
	return
}

func (a *Account) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(a.Lamports, bin.LE)
	_ = encoder.WriteUint64(uint64(len(a.Data)), bin.LE)
	_ = encoder.WriteBytes(a.Data, false)
	_ = encoder.WriteBytes(a.Owner[:], false)
	_ = encoder.WriteBool(a.Executable)
	return encoder.WriteUint64(a.RentEpoch, bin.LE)
}
