package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/safemath"
)

const (
	UpgradeableLoaderInstrTypeInitializeBuffer = iota
	UpgradeableLoaderInstrTypeWrite
	UpgradeableLoaderInstrTypeDeployWithMaxDataLen
	UpgradeableLoaderInstrTypeUpgrade
	UpgradeableLoaderInstrTypeSetAuthority
	UpgradeableLoaderInstrTypeClose
	UpgradeableLoaderInstrTypeExtendProgram
	UpgradeableLoaderInstrTypeSetAuthorityChecked
)

const (
	UpgradeableLoaderStateTypeUninitialized = iota
	UpgradeableLoaderStateTypeBuffer
	UpgradeableLoaderStateTypeProgram
	UpgradeableLoaderStateTypeProgramData
)

const (
	UpgradeableLoaderSizeOfUninitialized       = 4
	UpgradeableLoaderSizeOfBufferMetaData      = 37
	UpgradeableLoaderSizeOfProgram             = 36
	UpgradeableLoaderSizeOfProgramDataMetaData = 45
)

func UpgradeableLoaderSizeOfProgramData(programLen uint64) uint64 {
	return safemath.SaturatingAddU64(UpgradeableLoaderSizeOfProgramDataMetaData, programLen)
}

func UpgradeableLoaderSizeOfBuffer(programLen uint64) uint64 {
	return safemath.SaturatingAddU64(UpgradeableLoaderSizeOfBufferMetaData, programLen)
}

type UpgradeableLoaderInstrWrite struct {
	Offset uint32
	Bytes  []byte
}

type UpgradeableLoaderInstrDeployWithMaxDataLen struct {
	MaxDataLen uint64
}

type UpgradeableLoaderInstrExtendProgram struct {
	AdditionalBytes uint32
}

type UpgradeableLoaderStateBuffer struct {
	AuthorityAddress *solana.PublicKey
}

type UpgradeableLoaderStateProgram struct {
	ProgramDataAddress solana.PublicKey
}

type UpgradeableLoaderStateProgramData struct {
	Slot                    uint64
	UpgradeAuthorityAddress *solana.PublicKey
}

// UpgradeableLoaderState is the tagged state stored at the head of buffer,
// program and program-data accounts. Only the member selected by Type is
// meaningful.
type UpgradeableLoaderState struct {
	Type        uint32
	Buffer      UpgradeableLoaderStateBuffer
	Program     UpgradeableLoaderStateProgram
	ProgramData UpgradeableLoaderStateProgramData
}

func (write *UpgradeableLoaderInstrWrite) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	write.Offset, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	length, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if length > uint64(decoder.Remaining()) {
		return fmt.Errorf("write payload of %d bytes exceeds instruction data", length)
	}
	write.Bytes, err = decoder.ReadNBytes(int(length))
	return err
}

func (write *UpgradeableLoaderInstrWrite) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint32(write.Offset, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(uint64(len(write.Bytes)), bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(write.Bytes, false)
}

func (deploy *UpgradeableLoaderInstrDeployWithMaxDataLen) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	deploy.MaxDataLen, err = decoder.ReadUint64(bin.LE)
	return err
}

func (deploy *UpgradeableLoaderInstrDeployWithMaxDataLen) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(deploy.MaxDataLen, bin.LE)
}

func (extendProgram *UpgradeableLoaderInstrExtendProgram) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	extendProgram.AdditionalBytes, err = decoder.ReadUint32(bin.LE)
	return err
}

func (extendProgram *UpgradeableLoaderInstrExtendProgram) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint32(extendProgram.AdditionalBytes, bin.LE)
}

func readOptionalPubkey(decoder *bin.Decoder) (*solana.PublicKey, error) {
	hasPubkey, err := decoder.ReadBool()
	if err != nil {
		return nil, err
	}
	if !hasPubkey {
		return nil, nil
	}
	var pk solana.PublicKey
	err = readPubkey(decoder, &pk)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func writeOptionalPubkey(encoder *bin.Encoder, pk *solana.PublicKey) error {
	if pk == nil {
		return encoder.WriteBool(false)
	}
	err := encoder.WriteBool(true)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(pk[:], false)
}

func (state *UpgradeableLoaderState) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	state.Type, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}

	switch state.Type {
	case UpgradeableLoaderStateTypeUninitialized:
	case UpgradeableLoaderStateTypeBuffer:
		state.Buffer.AuthorityAddress, err = readOptionalPubkey(decoder)
	case UpgradeableLoaderStateTypeProgram:
		err = readPubkey(decoder, &state.Program.ProgramDataAddress)
	case UpgradeableLoaderStateTypeProgramData:
		state.ProgramData.Slot, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}
		state.ProgramData.UpgradeAuthorityAddress, err = readOptionalPubkey(decoder)
	default:
		err = InstrErrInvalidAccountData
	}
	return err
}

func (state *UpgradeableLoaderState) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint32(state.Type, bin.LE)
	if err != nil {
		return err
	}

	switch state.Type {
	case UpgradeableLoaderStateTypeUninitialized:
		return nil
	case UpgradeableLoaderStateTypeBuffer:
		return writeOptionalPubkey(encoder, state.Buffer.AuthorityAddress)
	case UpgradeableLoaderStateTypeProgram:
		return encoder.WriteBytes(state.Program.ProgramDataAddress[:], false)
	case UpgradeableLoaderStateTypeProgramData:
		err = encoder.WriteUint64(state.ProgramData.Slot, bin.LE)
		if err != nil {
			return err
		}
		return writeOptionalPubkey(encoder, state.ProgramData.UpgradeAuthorityAddress)
	default:
		return fmt.Errorf("invalid upgradeable loader state %d", state.Type)
	}
}

func (state *UpgradeableLoaderState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := state.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalUpgradeableLoaderState decodes the state at the head of data.
// Any failure is InstrErrInvalidAccountData.
func UnmarshalUpgradeableLoaderState(data []byte) (*UpgradeableLoaderState, error) {
	state := new(UpgradeableLoaderState)
	err := state.UnmarshalWithDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return state, nil
}

func setUpgradeableLoaderAccountState(acct *BorrowedAccount, state *UpgradeableLoaderState) error {
	stateBytes, err := state.Marshal()
	if err != nil {
		return err
	}
	return acct.SetState(stateBytes)
}

func encodeUpgradeableLoaderInstruction(instrType uint32, body instrMarshaler) []byte {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)

	err := encoder.WriteUint32(instrType, bin.LE)
	if err == nil && body != nil {
		err = body.MarshalWithEncoder(encoder)
	}
	if err != nil {
		panic(fmt.Sprintf("encoding upgradeable loader instruction %d: %s", instrType, err))
	}
	return buf.Bytes()
}

// ProgramDataAddress derives the program-data account of an upgradeable
// program.
func ProgramDataAddress(programId solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{programId[:]}, BpfLoaderUpgradeableAddr)
}

func NewInitializeBufferInstruction(buffer, authority solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(buffer, false, true),
			NewAccountMeta(authority, false, false),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeInitializeBuffer, nil),
	}
}

func NewWriteInstruction(buffer, authority solana.PublicKey, offset uint32, data []byte) Instruction {
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(buffer, false, true),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeWrite, &UpgradeableLoaderInstrWrite{Offset: offset, Bytes: data}),
	}
}

// NewDeployWithMaxDataLenInstruction expects the program account to exist
// already, sized for UpgradeableLoaderSizeOfProgram and owned by the loader.
func NewDeployWithMaxDataLenInstruction(payer, program, buffer, authority solana.PublicKey, maxDataLen uint64) (Instruction, error) {
	programData, _, err := ProgramDataAddress(program)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(payer, true, true),
			NewAccountMeta(programData, false, true),
			NewAccountMeta(program, false, true),
			NewAccountMeta(buffer, false, true),
			NewAccountMeta(SysvarRentAddr, false, false),
			NewAccountMeta(SysvarClockAddr, false, false),
			NewAccountMeta(SystemProgramAddr, false, false),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeDeployWithMaxDataLen, &UpgradeableLoaderInstrDeployWithMaxDataLen{MaxDataLen: maxDataLen}),
	}, nil
}

func NewUpgradeInstruction(program, buffer, authority, spill solana.PublicKey) (Instruction, error) {
	programData, _, err := ProgramDataAddress(program)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(programData, false, true),
			NewAccountMeta(program, false, true),
			NewAccountMeta(buffer, false, true),
			NewAccountMeta(spill, false, true),
			NewAccountMeta(SysvarRentAddr, false, false),
			NewAccountMeta(SysvarClockAddr, false, false),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeUpgrade, nil),
	}, nil
}

// NewSetAuthorityInstruction updates the authority of a buffer or
// program-data account. A nil newAuthority makes it immutable.
func NewSetAuthorityInstruction(account, currentAuthority solana.PublicKey, newAuthority *solana.PublicKey) Instruction {
	accts := []AccountMeta{
		NewAccountMeta(account, false, true),
		NewAccountMeta(currentAuthority, true, false),
	}
	if newAuthority != nil {
		accts = append(accts, NewAccountMeta(*newAuthority, false, false))
	}
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts:  accts,
		Data:      encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeSetAuthority, nil),
	}
}

func NewSetAuthorityCheckedInstruction(account, currentAuthority, newAuthority solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(account, false, true),
			NewAccountMeta(currentAuthority, true, false),
			NewAccountMeta(newAuthority, true, false),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeSetAuthorityChecked, nil),
	}
}

// NewCloseInstruction closes a buffer or program-data account. program is
// required only when closing program data.
func NewCloseInstruction(account, recipient, authority solana.PublicKey, program *solana.PublicKey) Instruction {
	accts := []AccountMeta{
		NewAccountMeta(account, false, true),
		NewAccountMeta(recipient, false, true),
		NewAccountMeta(authority, true, false),
	}
	if program != nil {
		accts = append(accts, NewAccountMeta(*program, false, true))
	}
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts:  accts,
		Data:      encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeClose, nil),
	}
}

func NewExtendProgramInstruction(program, payer solana.PublicKey, additionalBytes uint32) (Instruction, error) {
	programData, _, err := ProgramDataAddress(program)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramId: BpfLoaderUpgradeableAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(programData, false, true),
			NewAccountMeta(program, false, true),
			NewAccountMeta(SystemProgramAddr, false, false),
			NewAccountMeta(payer, true, true),
		},
		Data: encodeUpgradeableLoaderInstruction(UpgradeableLoaderInstrTypeExtendProgram, &UpgradeableLoaderInstrExtendProgram{AdditionalBytes: additionalBytes}),
	}, nil
}
