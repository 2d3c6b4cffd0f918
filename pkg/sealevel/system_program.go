package sealevel

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/features"
)

// systemAddress is the target of an allocate or assign. For seed-derived
// addresses the authority that must sign is the base.
type systemAddress struct {
	address solana.PublicKey
	base    *solana.PublicKey
}

func (addr systemAddress) isSigner(signers []solana.PublicKey) bool {
	authority := addr.address
	if addr.base != nil {
		authority = *addr.base
	}
	return verifySigner(authority, signers) == nil
}

func insufficientLamportsMsg(prefix string, have uint64, need uint64) string {
	return fmt.Sprintf("%s: insufficient lamports %d, need %d", prefix, have, need)
}

// CreateWithSeed derives base+seed+owner, rejecting over-long seeds and
// owners that end in the program-derived-address marker.
func CreateWithSeed(base solana.PublicKey, seed string, owner solana.PublicKey) (solana.PublicKey, error) {
	if len(seed) > solana.MaxSeedLength {
		return solana.PublicKey{}, InstrErrMaxSeedLengthExceeded
	}
	if bytes.HasSuffix(owner[:], []byte(solana.PDA_MARKER)) {
		return solana.PublicKey{}, InstrErrIllegalOwner
	}
	addr, err := solana.CreateWithSeed(base, seed, owner)
	if err != nil {
		return solana.PublicKey{}, InstrErrInvalidSeeds
	}
	return addr, nil
}

func instructionAccountKey(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64) (solana.PublicKey, error) {
	idx, err := instrCtx.IndexOfInstructionAccountInTransaction(instrAcctIdx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return txCtx.KeyOfAccountAtIndex(idx)
}

func newSystemAddress(address solana.PublicKey) systemAddress {
	return systemAddress{address: address}
}

func newSystemAddressWithSeed(execCtx *ExecutionCtx, address solana.PublicKey, base solana.PublicKey, seed string, owner solana.PublicKey) (systemAddress, error) {
	derived, err := CreateWithSeed(base, seed, owner)
	if err != nil {
		return systemAddress{}, err
	}
	if derived != address {
		execCtx.Log.Log(fmt.Sprintf("Create: address %s does not match derived address %s", address, derived))
		return systemAddress{}, SystemProgErrAddressWithSeedMismatch
	}
	return systemAddress{address: address, base: &base}, nil
}

func SystemProgramExecute(execCtx *ExecutionCtx) error {
	err := execCtx.Consume(CUSystemProgramDefaultComputeUnits)
	if err != nil {
		return err
	}

	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	if len(instrCtx.Data) > systemInstrMaxLen {
		return InstrErrInvalidInstructionData
	}
	decoder := bin.NewBinDecoder(instrCtx.Data)

	instructionType, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return InstrErrInvalidInstructionData
	}

	signers, err := instrCtx.Signers(txCtx)
	if err != nil {
		return err
	}

	switch instructionType {
	case SystemProgramInstrTypeCreateAccount:
		var instr SystemInstrCreateAccount
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		toKey, err := instructionAccountKey(txCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		return SystemProgramCreateAccount(execCtx, newSystemAddress(toKey), instr.Lamports, instr.Space, instr.Owner, signers)

	case SystemProgramInstrTypeCreateAccountWithSeed:
		var instr SystemInstrCreateAccountWithSeed
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		toKey, err := instructionAccountKey(txCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		toAddr, err := newSystemAddressWithSeed(execCtx, toKey, instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		return SystemProgramCreateAccount(execCtx, toAddr, instr.Lamports, instr.Space, instr.Owner, signers)

	case SystemProgramInstrTypeAssign:
		var instr SystemInstrAssign
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		return SystemProgramAssign(execCtx, acct, newSystemAddress(acct.Key()), instr.Owner, signers)

	case SystemProgramInstrTypeAssignWithSeed:
		var instr SystemInstrAssignWithSeed
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		addr, err := newSystemAddressWithSeed(execCtx, acct.Key(), instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		return SystemProgramAssign(execCtx, acct, addr, instr.Owner, signers)

	case SystemProgramInstrTypeTransfer:
		var instr SystemInstrTransfer
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		return SystemProgramTransfer(execCtx, 0, 1, instr.Lamports)

	case SystemProgramInstrTypeTransferWithSeed:
		var instr SystemInstrTransferWithSeed
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(3)
		if err != nil {
			return err
		}
		return SystemProgramTransferWithSeed(execCtx, 0, 1, instr.FromSeed, instr.FromOwner, 2, instr.Lamports)

	case SystemProgramInstrTypeAllocate:
		var instr SystemInstrAllocate
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		return SystemProgramAllocate(execCtx, acct, newSystemAddress(acct.Key()), instr.Space, signers)

	case SystemProgramInstrTypeAllocateWithSeed:
		var instr SystemInstrAllocateWithSeed
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		addr, err := newSystemAddressWithSeed(execCtx, acct.Key(), instr.Base, instr.Seed, instr.Owner)
		if err != nil {
			return err
		}
		return SystemProgramAllocateAndAssign(execCtx, acct, addr, instr.Space, instr.Owner, signers)

	case SystemProgramInstrTypeAdvanceNonceAccount:
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		recentBlockhashes, err := ReadRecentBlockHashesSysvarFromCache(execCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		if len(recentBlockhashes) == 0 {
			execCtx.Log.Log("Advance nonce account: recent blockhash list is empty")
			return nonceError(execCtx.Features, NonceErrNoRecentBlockhashes)
		}
		return SystemProgramAdvanceNonceAccount(execCtx, acct, signers)

	case SystemProgramInstrTypeWithdrawNonceAccount:
		var instr SystemInstrWithdrawNonceAccount
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(2)
		if err != nil {
			return err
		}
		_, err = ReadRecentBlockHashesSysvarFromCache(execCtx, instrCtx, 2)
		if err != nil {
			return err
		}
		r, err := ReadRentSysvarFromCache(execCtx, instrCtx, 3)
		if err != nil {
			return err
		}
		return SystemProgramWithdrawNonceAccount(execCtx, instrCtx, 0, instr.Lamports, 1, r.MinimumBalance, signers)

	case SystemProgramInstrTypeInitializeNonceAccount:
		var instr SystemInstrInitializeNonceAccount
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		recentBlockhashes, err := ReadRecentBlockHashesSysvarFromCache(execCtx, instrCtx, 1)
		if err != nil {
			return err
		}
		if len(recentBlockhashes) == 0 {
			execCtx.Log.Log("Initialize nonce account: recent blockhash list is empty")
			return nonceError(execCtx.Features, NonceErrNoRecentBlockhashes)
		}
		r, err := ReadRentSysvarFromCache(execCtx, instrCtx, 2)
		if err != nil {
			return err
		}
		return SystemProgramInitializeNonceAccount(execCtx, acct, instr.Authority, r.MinimumBalance(uint64(len(acct.Data()))))

	case SystemProgramInstrTypeAuthorizeNonceAccount:
		var instr SystemInstrAuthorizeNonceAccount
		if instr.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		return SystemProgramAuthorizeNonceAccount(execCtx, acct, instr.Authority, signers)

	case SystemProgramInstrTypeUpgradeNonceAccount:
		err = instrCtx.CheckNumOfInstructionAccounts(1)
		if err != nil {
			return err
		}
		acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			return err
		}
		defer acct.Drop()
		return SystemProgramUpgradeNonceAccount(execCtx, acct)

	default:
		return InstrErrInvalidInstructionData
	}
}

func SystemProgramCreateAccount(execCtx *ExecutionCtx, toAddr systemAddress, lamports uint64, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	toAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}
	defer toAcct.Drop()

	if toAcct.Lamports() > 0 {
		execCtx.Log.Log(fmt.Sprintf("Create Account: account %s already in use", toAddr.address))
		return SystemProgErrAccountAlreadyInUse
	}

	err = SystemProgramAllocateAndAssign(execCtx, toAcct, toAddr, space, owner, signers)
	if err != nil {
		return err
	}
	toAcct.Drop()

	return SystemProgramTransfer(execCtx, 0, 1, lamports)
}

func SystemProgramAllocateAndAssign(execCtx *ExecutionCtx, acct *BorrowedAccount, addr systemAddress, space uint64, owner solana.PublicKey, signers []solana.PublicKey) error {
	err := SystemProgramAllocate(execCtx, acct, addr, space, signers)
	if err != nil {
		return err
	}
	return SystemProgramAssign(execCtx, acct, addr, owner, signers)
}

func SystemProgramAllocate(execCtx *ExecutionCtx, acct *BorrowedAccount, addr systemAddress, space uint64, signers []solana.PublicKey) error {
	if !addr.isSigner(signers) {
		execCtx.Log.Log(fmt.Sprintf("Allocate: 'to' account %s must sign", addr.address))
		return InstrErrMissingRequiredSignature
	}

	// nonce accounts are the only system-owned accounts that carry data
	if len(acct.Data()) != 0 || acct.Owner() != SystemProgramAddr {
		execCtx.Log.Log(fmt.Sprintf("Allocate: account %s already in use", addr.address))
		return SystemProgErrAccountAlreadyInUse
	}

	if space > SystemProgMaxPermittedDataLen {
		execCtx.Log.Log(fmt.Sprintf("Allocate: requested %d, max allowed %d", space, SystemProgMaxPermittedDataLen))
		return SystemProgErrInvalidAccountDataLength
	}

	return acct.SetDataLength(space)
}

func SystemProgramAssign(execCtx *ExecutionCtx, acct *BorrowedAccount, addr systemAddress, owner solana.PublicKey, signers []solana.PublicKey) error {
	if acct.Owner() == owner {
		return nil
	}

	if !addr.isSigner(signers) {
		execCtx.Log.Log(fmt.Sprintf("Assign: account %s must sign", addr.address))
		return InstrErrMissingRequiredSignature
	}

	return acct.SetOwner(owner)
}

func SystemProgramTransfer(execCtx *ExecutionCtx, fromAcctIdx uint64, toAcctIdx uint64, lamports uint64) error {
	if lamports == 0 && !execCtx.Features.IsActive(features.SystemTransferZeroCheck) {
		return nil
	}

	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(fromAcctIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		fromKey, err := instructionAccountKey(txCtx, instrCtx, fromAcctIdx)
		if err != nil {
			return err
		}
		execCtx.Log.Log(fmt.Sprintf("Transfer: `from` account %s must sign", fromKey))
		return InstrErrMissingRequiredSignature
	}

	return transferVerified(execCtx, fromAcctIdx, toAcctIdx, lamports)
}

func SystemProgramTransferWithSeed(execCtx *ExecutionCtx, fromAcctIdx uint64, fromBaseAcctIdx uint64, fromSeed string, fromOwner solana.PublicKey, toAcctIdx uint64, lamports uint64) error {
	if lamports == 0 && !execCtx.Features.IsActive(features.SystemTransferZeroCheck) {
		return nil
	}

	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	base, err := instructionAccountKey(txCtx, instrCtx, fromBaseAcctIdx)
	if err != nil {
		return err
	}

	isSigner, err := instrCtx.IsInstructionAccountSigner(fromBaseAcctIdx)
	if err != nil {
		return err
	}
	if !isSigner {
		execCtx.Log.Log(fmt.Sprintf("Transfer: 'from' account %s must sign", base))
		return InstrErrMissingRequiredSignature
	}

	addrFromSeed, err := CreateWithSeed(base, fromSeed, fromOwner)
	if err != nil {
		return err
	}

	fromAddr, err := instructionAccountKey(txCtx, instrCtx, fromAcctIdx)
	if err != nil {
		return err
	}
	if fromAddr != addrFromSeed {
		execCtx.Log.Log(fmt.Sprintf("Transfer: 'from' address %s does not match derived address %s", fromAddr, addrFromSeed))
		return SystemProgErrAddressWithSeedMismatch
	}

	return transferVerified(execCtx, fromAcctIdx, toAcctIdx, lamports)
}

func transferVerified(execCtx *ExecutionCtx, fromAcctIdx uint64, toAcctIdx uint64, lamports uint64) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	from, err := instrCtx.BorrowInstructionAccount(txCtx, fromAcctIdx)
	if err != nil {
		return err
	}
	defer from.Drop()

	if len(from.Data()) != 0 {
		execCtx.Log.Log("Transfer: `from` must not carry data")
		return InstrErrInvalidArgument
	}

	if lamports > from.Lamports() {
		execCtx.Log.Log(insufficientLamportsMsg("Transfer", from.Lamports(), lamports))
		return SystemProgErrResultWithNegativeLamports
	}

	err = from.CheckedSubLamports(lamports)
	if err != nil {
		return err
	}
	from.Drop()

	to, err := instrCtx.BorrowInstructionAccount(txCtx, toAcctIdx)
	if err != nil {
		return err
	}
	defer to.Drop()

	return to.CheckedAddLamports(lamports)
}
