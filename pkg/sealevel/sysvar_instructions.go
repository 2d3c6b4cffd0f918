package sealevel

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/features"
)

var instructionSysvarAcctMetaIsSigner = byte(0b00000001)
var instructionSysvarAcctMetaIsWritable = byte(0b00000010)

func instructionsMarshaledSize(instructions []Instruction) uint64 {
	var marshaledSize uint64

	marshaledSize += 2                             // num_instructions
	marshaledSize += uint64(2 * len(instructions)) // instruction offsets

	for _, instr := range instructions {
		marshaledSize += 2                                                          // num_accounts
		marshaledSize += uint64(len(instr.Accounts) * (1 + solana.PublicKeyLength)) // flags + pubkey

		marshaledSize += uint64(solana.PublicKeyLength + // program_id
			2 + // instr_data_len
			len(instr.Data))
	}

	marshaledSize += 2 // current_instr_idx

	return marshaledSize
}

// MarshalInstructions produces the instructions sysvar layout. The trailing
// current-instruction index starts at zero.
func MarshalInstructions(instructions []Instruction) []byte {
	data := make([]byte, instructionsMarshaledSize(instructions))

	var offset uint64

	binary.LittleEndian.PutUint16(data[offset:], uint16(len(instructions)))
	offset += 2

	serializedInstrOffset := offset
	offset += 2 * uint64(len(instructions))

	for _, instr := range instructions {
		binary.LittleEndian.PutUint16(data[serializedInstrOffset:], uint16(offset))
		serializedInstrOffset += 2

		binary.LittleEndian.PutUint16(data[offset:], uint16(len(instr.Accounts)))
		offset += 2

		for _, acctMeta := range instr.Accounts {
			var acctMetaFlags byte
			if acctMeta.IsSigner {
				acctMetaFlags |= instructionSysvarAcctMetaIsSigner
			}
			if acctMeta.IsWritable {
				acctMetaFlags |= instructionSysvarAcctMetaIsWritable
			}
			data[offset] = acctMetaFlags
			offset += 1

			copy(data[offset:], acctMeta.Pubkey[:])
			offset += solana.PublicKeyLength
		}

		copy(data[offset:], instr.ProgramId[:])
		offset += solana.PublicKeyLength

		binary.LittleEndian.PutUint16(data[offset:], uint16(len(instr.Data)))
		offset += 2

		copy(data[offset:], instr.Data)
		offset += uint64(len(instr.Data))
	}

	binary.LittleEndian.PutUint16(data[offset:], 0)

	return data
}

// NewInstructionsSysvarAccount builds the per-transaction instructions
// sysvar. Its owner follows the InstructionsSysvarOwnedBySysvar gate.
func NewInstructionsSysvarAccount(instructions []Instruction, f *features.Features) *accounts.Account {
	owner := SystemProgramAddr
	if f.IsActive(features.InstructionsSysvarOwnedBySysvar) {
		owner = SysvarOwnerAddr
	}
	return &accounts.Account{Data: MarshalInstructions(instructions), Owner: owner}
}

// StoreCurrentIndex writes the index of the executing top-level instruction
// into the last two bytes of the sysvar data.
func StoreCurrentIndex(data []byte, idx uint16) {
	if len(data) < 2 {
		return
	}
	binary.LittleEndian.PutUint16(data[len(data)-2:], idx)
}

func LoadCurrentIndex(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, InstrErrInvalidAccountData
	}
	return binary.LittleEndian.Uint16(data[len(data)-2:]), nil
}

// LoadInstructionAt decodes the instruction at idx from the sysvar data.
func LoadInstructionAt(data []byte, idx uint16) (Instruction, error) {
	var instr Instruction
	if len(data) < 2 {
		return instr, InstrErrInvalidAccountData
	}
	numInstrs := binary.LittleEndian.Uint16(data)
	if idx >= numInstrs {
		return instr, InstrErrInvalidArgument
	}

	offsetPos := 2 + 2*int(idx)
	if len(data) < offsetPos+2 {
		return instr, InstrErrInvalidAccountData
	}
	offset := int(binary.LittleEndian.Uint16(data[offsetPos:]))

	read := func(n int) ([]byte, error) {
		if offset+n > len(data) {
			return nil, InstrErrInvalidAccountData
		}
		b := data[offset : offset+n]
		offset += n
		return b, nil
	}

	b, err := read(2)
	if err != nil {
		return instr, err
	}
	numAccts := int(binary.LittleEndian.Uint16(b))

	for i := 0; i < numAccts; i++ {
		flags, err := read(1)
		if err != nil {
			return instr, err
		}
		pubkey, err := read(solana.PublicKeyLength)
		if err != nil {
			return instr, err
		}
		instr.Accounts = append(instr.Accounts, AccountMeta{
			Pubkey:     solana.PublicKeyFromBytes(pubkey),
			IsSigner:   flags[0]&instructionSysvarAcctMetaIsSigner != 0,
			IsWritable: flags[0]&instructionSysvarAcctMetaIsWritable != 0,
		})
	}

	programId, err := read(solana.PublicKeyLength)
	if err != nil {
		return instr, err
	}
	instr.ProgramId = solana.PublicKeyFromBytes(programId)

	b, err = read(2)
	if err != nil {
		return instr, err
	}
	instrData, err := read(int(binary.LittleEndian.Uint16(b)))
	if err != nil {
		return instr, err
	}
	instr.Data = append([]byte{}, instrData...)

	return instr, nil
}
