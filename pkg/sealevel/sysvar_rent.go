package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/solana-playground/playnet/pkg/rent"
)

const SysvarRentStructLen = 17

// SysvarRent is the on-chain layout of rent.Rent.
type SysvarRent struct {
	LamportsPerUint8Year uint64
	ExemptionThreshold   float64
	BurnPercent          byte
}

func NewSysvarRent(r rent.Rent) SysvarRent {
	return SysvarRent{
		LamportsPerUint8Year: r.LamportsPerByteYear,
		ExemptionThreshold:   r.ExemptionThreshold,
		BurnPercent:          r.BurnPercent,
	}
}

func (sr *SysvarRent) Rent() rent.Rent {
	return rent.Rent{
		LamportsPerByteYear: sr.LamportsPerUint8Year,
		ExemptionThreshold:  sr.ExemptionThreshold,
		BurnPercent:         sr.BurnPercent,
	}
}

func (sr *SysvarRent) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sr.LamportsPerUint8Year, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LamportsPerUint8Year when decoding SysvarRent: %w", err)
	}

	sr.ExemptionThreshold, err = decoder.ReadFloat64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read ExemptionThreshold when decoding SysvarRent: %w", err)
	}

	sr.BurnPercent, err = decoder.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read BurnPercent when decoding SysvarRent: %w", err)
	}
	return
}

func (sr *SysvarRent) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(sr.LamportsPerUint8Year, bin.LE)
	_ = encoder.WriteFloat64(sr.ExemptionThreshold, bin.LE)
	return encoder.WriteByte(sr.BurnPercent)
}

func (sr *SysvarRent) Marshal() []byte {
	buf := new(bytes.Buffer)
	_ = sr.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}
