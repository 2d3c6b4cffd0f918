package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

const SysvarClockStructLen = 40

type SysvarClock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func (sc *SysvarClock) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sc.Slot, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read Slot when decoding SysvarClock: %w", err)
	}

	sc.EpochStartTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read EpochStartTimestamp when decoding SysvarClock: %w", err)
	}

	sc.Epoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read Epoch when decoding SysvarClock: %w", err)
	}

	sc.LeaderScheduleEpoch, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LeaderScheduleEpoch when decoding SysvarClock: %w", err)
	}

	sc.UnixTimestamp, err = decoder.ReadInt64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read UnixTimestamp when decoding SysvarClock: %w", err)
	}
	return
}

func (sc *SysvarClock) MarshalWithEncoder(encoder *bin.Encoder) error {
	_ = encoder.WriteUint64(sc.Slot, bin.LE)
	_ = encoder.WriteInt64(sc.EpochStartTimestamp, bin.LE)
	_ = encoder.WriteUint64(sc.Epoch, bin.LE)
	_ = encoder.WriteUint64(sc.LeaderScheduleEpoch, bin.LE)
	return encoder.WriteInt64(sc.UnixTimestamp, bin.LE)
}

func (sc *SysvarClock) Marshal() []byte {
	buf := new(bytes.Buffer)
	_ = sc.MarshalWithEncoder(bin.NewBinEncoder(buf))
	return buf.Bytes()
}
