package bank

import (
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/sealevel"
)

type InnerInstruction struct {
	Instruction solana.CompiledInstruction
	// StackHeight starts at 1 for top-level instructions.
	StackHeight uint8
}

// InnerInstructions are the cross-program invocations made while executing
// the top-level instruction at Index.
type InnerInstructions struct {
	Index        uint8
	Instructions []InnerInstruction
}

type TransactionMeta struct {
	Fee                  uint64
	PreBalances          []uint64
	PostBalances         []uint64
	LogMessages          []string
	InnerInstructions    []InnerInstructions
	Err                  error
	ComputeUnitsConsumed uint64
	ReturnData           *sealevel.TxReturnData
}

type TransactionRecord struct {
	Slot        uint64
	Transaction *solana.Transaction
	Meta        *TransactionMeta
	BlockTime   *int64
}

// History is the insert-only record of committed transactions, keyed by
// their first signature.
type History struct {
	records map[solana.Signature]*TransactionRecord
}

func NewHistory() *History {
	return &History{records: make(map[solana.Signature]*TransactionRecord)}
}

func (h *History) Insert(sig solana.Signature, record *TransactionRecord) error {
	if _, exists := h.records[sig]; exists {
		return TxErrAlreadyProcessed
	}
	h.records[sig] = record
	return nil
}

func (h *History) Get(sig solana.Signature) (*TransactionRecord, bool) {
	record, ok := h.records[sig]
	return record, ok
}

func (h *History) Contains(sig solana.Signature) bool {
	_, ok := h.records[sig]
	return ok
}

func (h *History) Len() int {
	return len(h.records)
}

// innerInstructionsFromTrace groups every frame above stack height 1 under
// the top-level instruction that caused it.
func innerInstructionsFromTrace(txCtx *sealevel.TransactionCtx) []InnerInstructions {
	var out []InnerInstructions
	topLevel := -1

	for _, frame := range txCtx.InstructionTrace() {
		if frame.NestingLevel == 0 {
			topLevel++
			continue
		}
		if topLevel < 0 {
			continue
		}

		programKey, err := frame.LastProgramKey(txCtx)
		if err != nil {
			continue
		}
		programIdx, err := txCtx.IndexOfAccount(programKey)
		if err != nil {
			continue
		}

		compiled := solana.CompiledInstruction{
			ProgramIDIndex: uint16(programIdx),
			Accounts:       make([]uint16, 0, len(frame.InstructionAccounts)),
			Data:           frame.Data,
		}
		for _, acct := range frame.InstructionAccounts {
			compiled.Accounts = append(compiled.Accounts, uint16(acct.IndexInTransaction))
		}

		if len(out) == 0 || out[len(out)-1].Index != uint8(topLevel) {
			out = append(out, InnerInstructions{Index: uint8(topLevel)})
		}
		last := &out[len(out)-1]
		last.Instructions = append(last.Instructions, InnerInstruction{
			Instruction: compiled,
			StackHeight: uint8(frame.StackHeight()),
		})
	}

	return out
}

type ConfirmationStatus string

const (
	ConfirmationProcessed ConfirmationStatus = "processed"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationFinalized ConfirmationStatus = "finalized"
)

// MaxConfirmations is the depth past which a transaction counts as finalized.
const MaxConfirmations = 32

type SignatureStatus struct {
	Slot               uint64
	Confirmations      uint64
	Err                error
	ConfirmationStatus ConfirmationStatus
}

// GetSignatureStatus reports how many slots have passed since sig was
// committed. The second result is false for unknown signatures.
func (b *Bank) GetSignatureStatus(sig solana.Signature) (*SignatureStatus, bool) {
	record, ok := b.history.Get(sig)
	if !ok {
		return nil, false
	}

	confirmations := b.slot - record.Slot
	status := &SignatureStatus{
		Slot:          record.Slot,
		Confirmations: confirmations,
		Err:           record.Meta.Err,
	}
	switch {
	case confirmations == 0:
		status.ConfirmationStatus = ConfirmationProcessed
	case confirmations < MaxConfirmations:
		status.ConfirmationStatus = ConfirmationConfirmed
	default:
		status.ConfirmationStatus = ConfirmationFinalized
	}
	return status, true
}
