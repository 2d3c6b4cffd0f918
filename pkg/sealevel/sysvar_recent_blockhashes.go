package sealevel

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
)

// MaxRecentBlockhashes is the number of entries kept in the sysvar.
const MaxRecentBlockhashes = 150

type FeeCalculator struct {
	LamportsPerSignature uint64
}

type RecentBlockHashesEntry struct {
	Blockhash     [32]byte
	FeeCalculator FeeCalculator
}

// SysvarRecentBlockhashes is ordered newest first.
type SysvarRecentBlockhashes []RecentBlockHashesEntry

func (recentBlockhashes *SysvarRecentBlockhashes) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	numBlockhashes, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if numBlockhashes > MaxRecentBlockhashes {
		return InstrErrInvalidAccountData
	}

	for count := uint64(0); count < numBlockhashes; count++ {
		var entry RecentBlockHashesEntry
		hash, err := decoder.ReadBytes(32)
		if err != nil {
			return err
		}
		copy(entry.Blockhash[:], hash)

		entry.FeeCalculator.LamportsPerSignature, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}

		*recentBlockhashes = append(*recentBlockhashes, entry)
	}

	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint64(uint64(len(*recentBlockhashes)), bin.LE)
	if err != nil {
		return err
	}

	for _, entry := range *recentBlockhashes {
		err = encoder.WriteBytes(entry.Blockhash[:], false)
		if err != nil {
			return err
		}

		err = encoder.WriteUint64(entry.FeeCalculator.LamportsPerSignature, bin.LE)
		if err != nil {
			return err
		}
	}

	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) Marshal() []byte {
	buf := new(bytes.Buffer)
	_ = recentBlockhashes.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}

// Latest returns the newest entry. The list must not be empty.
func (recentBlockhashes SysvarRecentBlockhashes) Latest() RecentBlockHashesEntry {
	return recentBlockhashes[0]
}

func checkAcctForRecentBlockHashesSysvar(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) error {
	return checkAcctForSysvar(txCtx, instrCtx, instrAcctIdx, SysvarRecentBlockHashesAddr)
}
