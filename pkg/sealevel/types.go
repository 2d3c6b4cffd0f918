package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

// Instruction is a decompiled instruction as seen by a caller of NativeInvoke.
type Instruction struct {
	Accounts  []AccountMeta
	Data      []byte
	ProgramId solana.PublicKey
}

type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// InstructionAccount locates one instruction account in the transaction and
// in the calling frame, together with its privileges for this invocation.
type InstructionAccount struct {
	IndexInTransaction uint64
	IndexInCaller      uint64
	IndexInCallee      uint64
	IsSigner           bool
	IsWritable         bool
}

func NewAccountMeta(pubkey solana.PublicKey, isSigner bool, isWritable bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner, IsWritable: isWritable}
}
