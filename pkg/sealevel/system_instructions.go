package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const SystemProgMaxPermittedDataLen = 10 * 1024 * 1024

// maximum size of a serialized system instruction
const systemInstrMaxLen = 1232

const (
	SystemProgramInstrTypeCreateAccount = iota
	SystemProgramInstrTypeAssign
	SystemProgramInstrTypeTransfer
	SystemProgramInstrTypeCreateAccountWithSeed
	SystemProgramInstrTypeAdvanceNonceAccount
	SystemProgramInstrTypeWithdrawNonceAccount
	SystemProgramInstrTypeInitializeNonceAccount
	SystemProgramInstrTypeAuthorizeNonceAccount
	SystemProgramInstrTypeAllocate
	SystemProgramInstrTypeAllocateWithSeed
	SystemProgramInstrTypeAssignWithSeed
	SystemProgramInstrTypeTransferWithSeed
	SystemProgramInstrTypeUpgradeNonceAccount
)

type SystemInstrCreateAccount struct {
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrAssign struct {
	Owner solana.PublicKey
}

type SystemInstrTransfer struct {
	Lamports uint64
}

type SystemInstrCreateAccountWithSeed struct {
	Base     solana.PublicKey
	Seed     string
	Lamports uint64
	Space    uint64
	Owner    solana.PublicKey
}

type SystemInstrWithdrawNonceAccount struct {
	Lamports uint64
}

type SystemInstrInitializeNonceAccount struct {
	Authority solana.PublicKey
}

type SystemInstrAuthorizeNonceAccount struct {
	Authority solana.PublicKey
}

type SystemInstrAllocate struct {
	Space uint64
}

type SystemInstrAllocateWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Space uint64
	Owner solana.PublicKey
}

type SystemInstrAssignWithSeed struct {
	Base  solana.PublicKey
	Seed  string
	Owner solana.PublicKey
}

type SystemInstrTransferWithSeed struct {
	Lamports  uint64
	FromSeed  string
	FromOwner solana.PublicKey
}

func checkWithinDeserializationLimit(decoder *bin.Decoder) error {
	if decoder.Position() > systemInstrMaxLen {
		return InstrErrInvalidInstructionData
	}
	return nil
}

func readPubkey(decoder *bin.Decoder, out *solana.PublicKey) error {
	b, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

func writeRustString(encoder *bin.Encoder, s string) error {
	err := encoder.WriteUint64(uint64(len(s)), bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes([]byte(s), false)
}

func (instr *SystemInstrCreateAccount) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrCreateAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint64(instr.Lamports, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.Space, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrAssign) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAssign) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrTransfer) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrTransfer) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(instr.Lamports, bin.LE)
}

func (instr *SystemInstrCreateAccountWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	err = readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}
	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrCreateAccountWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(instr.Base[:], false)
	if err != nil {
		return err
	}
	err = writeRustString(encoder, instr.Seed)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.Lamports, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.Space, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrWithdrawNonceAccount) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrWithdrawNonceAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(instr.Lamports, bin.LE)
}

func (instr *SystemInstrInitializeNonceAccount) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Authority)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrInitializeNonceAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteBytes(instr.Authority[:], false)
}

func (instr *SystemInstrAuthorizeNonceAccount) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	err := readPubkey(decoder, &instr.Authority)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAuthorizeNonceAccount) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteBytes(instr.Authority[:], false)
}

func (instr *SystemInstrAllocate) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAllocate) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(instr.Space, bin.LE)
}

func (instr *SystemInstrAllocateWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	err = readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}
	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}
	instr.Space, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAllocateWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(instr.Base[:], false)
	if err != nil {
		return err
	}
	err = writeRustString(encoder, instr.Seed)
	if err != nil {
		return err
	}
	err = encoder.WriteUint64(instr.Space, bin.LE)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrAssignWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	err = readPubkey(decoder, &instr.Base)
	if err != nil {
		return err
	}
	instr.Seed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}
	err = readPubkey(decoder, &instr.Owner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrAssignWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteBytes(instr.Base[:], false)
	if err != nil {
		return err
	}
	err = writeRustString(encoder, instr.Seed)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(instr.Owner[:], false)
}

func (instr *SystemInstrTransferWithSeed) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	instr.Lamports, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	instr.FromSeed, err = decoder.ReadRustString()
	if err != nil {
		return err
	}
	err = readPubkey(decoder, &instr.FromOwner)
	if err != nil {
		return err
	}
	return checkWithinDeserializationLimit(decoder)
}

func (instr *SystemInstrTransferWithSeed) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint64(instr.Lamports, bin.LE)
	if err != nil {
		return err
	}
	err = writeRustString(encoder, instr.FromSeed)
	if err != nil {
		return err
	}
	return encoder.WriteBytes(instr.FromOwner[:], false)
}

type instrMarshaler interface {
	MarshalWithEncoder(encoder *bin.Encoder) error
}

// encodeSystemInstruction prefixes the u32 discriminant. body may be nil for
// instructions without arguments.
func encodeSystemInstruction(instrType uint32, body instrMarshaler) []byte {
	buf := new(bytes.Buffer)
	encoder := bin.NewBinEncoder(buf)

	err := encoder.WriteUint32(instrType, bin.LE)
	if err == nil && body != nil {
		err = body.MarshalWithEncoder(encoder)
	}
	if err != nil {
		panic(fmt.Sprintf("encoding system instruction %d: %s", instrType, err))
	}
	return buf.Bytes()
}

func NewCreateAccountInstruction(from, to solana.PublicKey, lamports, space uint64, owner solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  []AccountMeta{NewAccountMeta(from, true, true), NewAccountMeta(to, true, true)},
		Data:      encodeSystemInstruction(SystemProgramInstrTypeCreateAccount, &SystemInstrCreateAccount{Lamports: lamports, Space: space, Owner: owner}),
	}
}

func NewCreateAccountWithSeedInstruction(from, to, base solana.PublicKey, seed string, lamports, space uint64, owner solana.PublicKey) Instruction {
	accts := []AccountMeta{NewAccountMeta(from, true, true), NewAccountMeta(to, false, true)}
	if base != from {
		accts = append(accts, NewAccountMeta(base, true, false))
	}
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  accts,
		Data: encodeSystemInstruction(SystemProgramInstrTypeCreateAccountWithSeed, &SystemInstrCreateAccountWithSeed{
			Base: base, Seed: seed, Lamports: lamports, Space: space, Owner: owner,
		}),
	}
}

func NewAssignInstruction(pubkey, owner solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  []AccountMeta{NewAccountMeta(pubkey, true, true)},
		Data:      encodeSystemInstruction(SystemProgramInstrTypeAssign, &SystemInstrAssign{Owner: owner}),
	}
}

func NewTransferInstruction(from, to solana.PublicKey, lamports uint64) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  []AccountMeta{NewAccountMeta(from, true, true), NewAccountMeta(to, false, true)},
		Data:      encodeSystemInstruction(SystemProgramInstrTypeTransfer, &SystemInstrTransfer{Lamports: lamports}),
	}
}

func NewTransferWithSeedInstruction(from, base solana.PublicKey, seed string, fromOwner, to solana.PublicKey, lamports uint64) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(from, false, true),
			NewAccountMeta(base, true, false),
			NewAccountMeta(to, false, true),
		},
		Data: encodeSystemInstruction(SystemProgramInstrTypeTransferWithSeed, &SystemInstrTransferWithSeed{
			Lamports: lamports, FromSeed: seed, FromOwner: fromOwner,
		}),
	}
}

func NewAllocateInstruction(pubkey solana.PublicKey, space uint64) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  []AccountMeta{NewAccountMeta(pubkey, true, true)},
		Data:      encodeSystemInstruction(SystemProgramInstrTypeAllocate, &SystemInstrAllocate{Space: space}),
	}
}

func NewInitializeNonceAccountInstruction(nonce, authority solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(nonce, false, true),
			NewAccountMeta(SysvarRecentBlockHashesAddr, false, false),
			NewAccountMeta(SysvarRentAddr, false, false),
		},
		Data: encodeSystemInstruction(SystemProgramInstrTypeInitializeNonceAccount, &SystemInstrInitializeNonceAccount{Authority: authority}),
	}
}

func NewAdvanceNonceAccountInstruction(nonce, authority solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(nonce, false, true),
			NewAccountMeta(SysvarRecentBlockHashesAddr, false, false),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeSystemInstruction(SystemProgramInstrTypeAdvanceNonceAccount, nil),
	}
}

func NewWithdrawNonceAccountInstruction(nonce, authority, to solana.PublicKey, lamports uint64) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(nonce, false, true),
			NewAccountMeta(to, false, true),
			NewAccountMeta(SysvarRecentBlockHashesAddr, false, false),
			NewAccountMeta(SysvarRentAddr, false, false),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeSystemInstruction(SystemProgramInstrTypeWithdrawNonceAccount, &SystemInstrWithdrawNonceAccount{Lamports: lamports}),
	}
}

func NewAuthorizeNonceAccountInstruction(nonce, authority, newAuthority solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts: []AccountMeta{
			NewAccountMeta(nonce, false, true),
			NewAccountMeta(authority, true, false),
		},
		Data: encodeSystemInstruction(SystemProgramInstrTypeAuthorizeNonceAccount, &SystemInstrAuthorizeNonceAccount{Authority: newAuthority}),
	}
}

func NewUpgradeNonceAccountInstruction(nonce solana.PublicKey) Instruction {
	return Instruction{
		ProgramId: SystemProgramAddr,
		Accounts:  []AccountMeta{NewAccountMeta(nonce, false, true)},
		Data:      encodeSystemInstruction(SystemProgramInstrTypeUpgradeNonceAccount, nil),
	}
}
