package sealevel

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/safemath"
	"k8s.io/klog/v2"
)

// BpfLoaderProgramExecute is the builtin behind both BPF loaders. When the
// innermost program is the loader itself it processes a management
// instruction, otherwise it runs the user program through the interpreter.
func BpfLoaderProgramExecute(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	programAcct, err := instrCtx.BorrowLastProgramAccount(txCtx)
	if err != nil {
		return err
	}

	if programAcct.Owner() == NativeLoaderAddr {
		programId := programAcct.Key()
		programAcct.Drop()

		switch programId {
		case BpfLoaderUpgradeableAddr:
			err = execCtx.Consume(CUUpgradeableLoaderComputeUnits)
			if err != nil {
				return err
			}
			return ProcessUpgradeableLoaderInstruction(execCtx)
		case BpfLoaderAddr:
			err = execCtx.Consume(CUDefaultLoaderComputeUnits)
			if err != nil {
				return err
			}
			execCtx.Log.Log("BPF loader management instructions are no longer supported")
			return InstrErrUnsupportedProgramId
		default:
			execCtx.Log.Log("Invalid BPF loader id")
			return InstrErrIncorrectProgramId
		}
	}

	if !programAcct.IsExecutable() {
		programAcct.Drop()
		execCtx.Log.Log("Program is not executable")
		return InstrErrIncorrectProgramId
	}

	programId := programAcct.Key()
	programBytes, err := loadProgramBytes(execCtx, instrCtx, programAcct)
	programAcct.Drop()
	if err != nil {
		return err
	}

	return executeProgram(execCtx, programId, programBytes)
}

// loadProgramBytes returns the code of an executable program account. An
// upgradeable program keeps its code in the program-data account after the
// metadata header.
func loadProgramBytes(execCtx *ExecutionCtx, instrCtx *InstructionCtx, programAcct *BorrowedAccount) ([]byte, error) {
	if programAcct.Owner() != BpfLoaderUpgradeableAddr {
		return programAcct.Data(), nil
	}

	txCtx := execCtx.TransactionContext
	state, err := UnmarshalUpgradeableLoaderState(programAcct.Data())
	if err != nil || state.Type != UpgradeableLoaderStateTypeProgram {
		execCtx.Log.Log("Invalid Program account")
		return nil, InstrErrInvalidAccountData
	}

	programDataIdx, err := programDataIndex(txCtx, instrCtx, state.Program.ProgramDataAddress)
	if err != nil {
		execCtx.Log.Log("Wrong ProgramData account for this Program account")
		return nil, InstrErrInvalidArgument
	}

	programData, err := txCtx.Accounts.TryBorrow(programDataIdx)
	if err != nil {
		return nil, err
	}
	defer txCtx.Accounts.Unborrow(programDataIdx)

	programDataState, err := UnmarshalUpgradeableLoaderState(programData.Data)
	if err != nil || programDataState.Type != UpgradeableLoaderStateTypeProgramData {
		execCtx.Log.Log("Program has been closed")
		return nil, InstrErrInvalidAccountData
	}
	if uint64(len(programData.Data)) < UpgradeableLoaderSizeOfProgramDataMetaData {
		return nil, InstrErrAccountDataTooSmall
	}
	return programData.Data[UpgradeableLoaderSizeOfProgramDataMetaData:], nil
}

// programDataIndex prefers the program-data entry of the loader chain and
// falls back to a transaction-wide lookup for cross-program invocations.
func programDataIndex(txCtx *TransactionCtx, instrCtx *InstructionCtx, programDataAddr solana.PublicKey) (uint64, error) {
	numProgramAccts := instrCtx.NumberOfProgramAccounts()
	if numProgramAccts >= 2 {
		idx, err := instrCtx.IndexOfProgramAccountInTransaction(numProgramAccts - 2)
		if err != nil {
			return 0, err
		}
		key, err := txCtx.KeyOfAccountAtIndex(idx)
		if err != nil {
			return 0, err
		}
		if key != programDataAddr {
			return 0, InstrErrInvalidArgument
		}
		return idx, nil
	}
	return txCtx.IndexOfAccount(programDataAddr)
}

func executeProgram(execCtx *ExecutionCtx, programId solana.PublicKey, programBytes []byte) error {
	if execCtx.Interpreter == nil {
		execCtx.Log.Log("Program is not deployed")
		return InstrErrUnsupportedProgramId
	}

	execCtx.TransactionContext.SetReturnData(programId, nil)

	remainingBefore := execCtx.ComputeMeter.Remaining()
	err := execCtx.Interpreter.Execute(execCtx, programBytes)
	consumed := safemath.SaturatingSubU64(remainingBefore, execCtx.ComputeMeter.Remaining())
	logProgramConsumed(execCtx.Log, programId, consumed, remainingBefore)

	returnDataProgramId, returnData := execCtx.TransactionContext.ReturnData()
	if len(returnData) != 0 {
		logProgramReturn(execCtx.Log, returnDataProgramId, returnData)
	}

	if err != nil {
		klog.V(3).Infof("program %s failed: %s", programId, err)
		if execCtx.ComputeMeter.Exceeded() {
			return InstrErrComputationalBudgetExceeded
		}
		return err
	}
	return nil
}

// verifyProgram runs the interpreter's verifier over freshly written code.
// Without an interpreter the code is stored unverified.
func verifyProgram(execCtx *ExecutionCtx, programBytes []byte) error {
	if execCtx.Interpreter == nil {
		return nil
	}
	err := execCtx.Interpreter.Verify(programBytes)
	if err != nil {
		execCtx.Log.Log(err.Error())
		return InstrErrInvalidAccountData
	}
	return nil
}

func isInstructionAccountKey(txCtx *TransactionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, key *solana.PublicKey) bool {
	if key == nil {
		return false
	}
	acctKey, err := instructionAccountKey(txCtx, instrCtx, instrAcctIdx)
	return err == nil && acctKey == *key
}

func writeProgramData(execCtx *ExecutionCtx, offset uint64, bytes []byte) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	program, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer program.Drop()

	end := safemath.SaturatingAddU64(offset, uint64(len(bytes)))
	if uint64(len(program.Data())) < end {
		execCtx.Log.Log(fmt.Sprintf("Write overflow: %d < %d", len(program.Data()), end))
		return InstrErrAccountDataTooSmall
	}

	data, err := program.DataMutable()
	if err != nil {
		return err
	}
	copy(data[offset:end], bytes)
	return nil
}

func UpgradeableLoaderInitializeBuffer(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(2)
	if err != nil {
		return err
	}

	buffer, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer buffer.Drop()

	state, err := UnmarshalUpgradeableLoaderState(buffer.Data())
	if err != nil {
		return err
	}
	if state.Type != UpgradeableLoaderStateTypeUninitialized {
		execCtx.Log.Log("Buffer account already initialized")
		return InstrErrAccountAlreadyInitialized
	}

	authorityKey, err := instructionAccountKey(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}

	return setUpgradeableLoaderAccountState(buffer, &UpgradeableLoaderState{
		Type:   UpgradeableLoaderStateTypeBuffer,
		Buffer: UpgradeableLoaderStateBuffer{AuthorityAddress: authorityKey.ToPointer()},
	})
}

func UpgradeableLoaderWrite(execCtx *ExecutionCtx, write UpgradeableLoaderInstrWrite) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(2)
	if err != nil {
		return err
	}

	buffer, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	state, err := UnmarshalUpgradeableLoaderState(buffer.Data())
	buffer.Drop()
	if err != nil {
		return err
	}

	if state.Type != UpgradeableLoaderStateTypeBuffer {
		execCtx.Log.Log("Invalid Buffer account")
		return InstrErrInvalidAccountData
	}
	if state.Buffer.AuthorityAddress == nil {
		execCtx.Log.Log("Buffer is immutable")
		return InstrErrImmutable
	}
	if !isInstructionAccountKey(txCtx, instrCtx, 1, state.Buffer.AuthorityAddress) {
		execCtx.Log.Log("Incorrect buffer authority provided")
		return InstrErrIncorrectAuthority
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(1)
	if err != nil {
		return err
	}
	if !isSigner {
		execCtx.Log.Log("Buffer authority did not sign")
		return InstrErrMissingRequiredSignature
	}

	offset := safemath.SaturatingAddU64(UpgradeableLoaderSizeOfBufferMetaData, uint64(write.Offset))
	return writeProgramData(execCtx, offset, write.Bytes)
}

// checkBufferForDeploy validates the buffer at instrAcctIdx against the
// authority at authorityIdx and returns the buffer's lamports and code
// length.
func checkBufferForDeploy(execCtx *ExecutionCtx, instrCtx *InstructionCtx, instrAcctIdx uint64, authorityIdx uint64) (uint64, uint64, error) {
	txCtx := execCtx.TransactionContext

	buffer, err := instrCtx.BorrowInstructionAccount(txCtx, instrAcctIdx)
	if err != nil {
		return 0, 0, err
	}
	defer buffer.Drop()

	state, err := UnmarshalUpgradeableLoaderState(buffer.Data())
	if err != nil {
		return 0, 0, err
	}
	if state.Type != UpgradeableLoaderStateTypeBuffer {
		execCtx.Log.Log("Invalid Buffer account")
		return 0, 0, InstrErrInvalidArgument
	}
	if !isInstructionAccountKey(txCtx, instrCtx, authorityIdx, state.Buffer.AuthorityAddress) {
		execCtx.Log.Log("Buffer and upgrade authority don't match")
		return 0, 0, InstrErrIncorrectAuthority
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(authorityIdx)
	if err != nil {
		return 0, 0, err
	}
	if !isSigner {
		execCtx.Log.Log("Upgrade authority did not sign")
		return 0, 0, InstrErrMissingRequiredSignature
	}

	bufferDataLen := safemath.SaturatingSubU64(uint64(len(buffer.Data())), UpgradeableLoaderSizeOfBufferMetaData)
	if uint64(len(buffer.Data())) < UpgradeableLoaderSizeOfBufferMetaData || bufferDataLen == 0 {
		execCtx.Log.Log("Buffer account too small")
		return 0, 0, InstrErrInvalidAccountData
	}
	return buffer.Lamports(), bufferDataLen, nil
}

func verifyBufferProgram(execCtx *ExecutionCtx, instrCtx *InstructionCtx, bufferIdx uint64) error {
	buffer, err := instrCtx.BorrowInstructionAccount(execCtx.TransactionContext, bufferIdx)
	if err != nil {
		return err
	}
	defer buffer.Drop()
	return verifyProgram(execCtx, buffer.Data()[UpgradeableLoaderSizeOfBufferMetaData:])
}

// copyBufferIntoProgramData stamps the program-data header, copies the
// buffer's code after it and shrinks the buffer back to its header.
func copyBufferIntoProgramData(instrCtx *InstructionCtx, txCtx *TransactionCtx, programData *BorrowedAccount, bufferIdx uint64, state *UpgradeableLoaderState) error {
	err := setUpgradeableLoaderAccountState(programData, state)
	if err != nil {
		return err
	}

	buffer, err := instrCtx.BorrowInstructionAccount(txCtx, bufferIdx)
	if err != nil {
		return err
	}
	defer buffer.Drop()

	src := buffer.Data()[UpgradeableLoaderSizeOfBufferMetaData:]
	dst, err := programData.DataMutable()
	if err != nil {
		return err
	}
	end := safemath.SaturatingAddU64(UpgradeableLoaderSizeOfProgramDataMetaData, uint64(len(src)))
	if uint64(len(dst)) < end {
		return InstrErrAccountDataTooSmall
	}
	copy(dst[UpgradeableLoaderSizeOfProgramDataMetaData:end], src)
	for i := end; i < uint64(len(dst)); i++ {
		dst[i] = 0
	}

	return buffer.SetDataLength(UpgradeableLoaderSizeOfBuffer(0))
}

func UpgradeableLoaderDeployWithMaxDataLen(execCtx *ExecutionCtx, deploy UpgradeableLoaderInstrDeployWithMaxDataLen) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(4)
	if err != nil {
		return err
	}

	payerKey, err := instructionAccountKey(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	programDataKey, err := instructionAccountKey(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}

	rent, err := ReadRentSysvarFromCache(execCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	clock, err := ReadClockSysvarFromCache(execCtx, instrCtx, 5)
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(8)
	if err != nil {
		return err
	}
	authorityKey, err := instructionAccountKey(txCtx, instrCtx, 7)
	if err != nil {
		return err
	}

	// program account
	program, err := instrCtx.BorrowInstructionAccount(txCtx, 2)
	if err != nil {
		return err
	}
	programState, err := UnmarshalUpgradeableLoaderState(program.Data())
	if err != nil {
		program.Drop()
		return err
	}
	if programState.Type != UpgradeableLoaderStateTypeUninitialized {
		program.Drop()
		execCtx.Log.Log("Program account already initialized")
		return InstrErrAccountAlreadyInitialized
	}
	if uint64(len(program.Data())) < UpgradeableLoaderSizeOfProgram {
		program.Drop()
		execCtx.Log.Log("Program account too small")
		return InstrErrAccountDataTooSmall
	}
	if program.Lamports() < rent.MinimumBalance(uint64(len(program.Data()))) {
		program.Drop()
		execCtx.Log.Log("Program account not rent-exempt")
		return InstrErrExecutableAccountNotRentExempt
	}
	newProgramId := program.Key()
	program.Drop()

	// buffer account
	_, bufferDataLen, err := checkBufferForDeploy(execCtx, instrCtx, 3, 7)
	if err != nil {
		return err
	}
	bufferKey, err := instructionAccountKey(txCtx, instrCtx, 3)
	if err != nil {
		return err
	}

	if deploy.MaxDataLen < bufferDataLen {
		execCtx.Log.Log("Max data length is too small to hold Buffer data")
		return InstrErrAccountDataTooSmall
	}
	programDataLen := UpgradeableLoaderSizeOfProgramData(deploy.MaxDataLen)
	if programDataLen > SystemProgMaxPermittedDataLen {
		execCtx.Log.Log("Max data length is too large")
		return InstrErrInvalidArgument
	}

	loaderId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return err
	}
	derivedAddr, bumpSeed, err := solana.FindProgramAddress([][]byte{newProgramId[:]}, loaderId)
	if err != nil {
		return err
	}
	if derivedAddr != programDataKey {
		execCtx.Log.Log("ProgramData address is not derived")
		return InstrErrInvalidArgument
	}

	// drain the buffer into the payer before paying for program data
	{
		buffer, err := instrCtx.BorrowInstructionAccount(txCtx, 3)
		if err != nil {
			return err
		}
		payer, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
		if err != nil {
			buffer.Drop()
			return err
		}
		err = payer.CheckedAddLamports(buffer.Lamports())
		if err == nil {
			err = buffer.SetLamports(0)
		}
		payer.Drop()
		buffer.Drop()
		if err != nil {
			return err
		}
	}

	lamports := rent.MinimumBalance(programDataLen)
	if lamports < 1 {
		lamports = 1
	}
	createAcctInstr := NewCreateAccountInstruction(payerKey, programDataKey, lamports, programDataLen, loaderId)
	// the buffer rides along so the callee's lamport sum matches the caller's
	createAcctInstr.Accounts = append(createAcctInstr.Accounts, NewAccountMeta(bufferKey, false, true))

	signer, err := solana.CreateProgramAddress([][]byte{newProgramId[:], {bumpSeed}}, loaderId)
	if err != nil {
		return InstrErrInvalidSeeds
	}
	err = execCtx.NativeInvoke(createAcctInstr, []solana.PublicKey{signer})
	if err != nil {
		return err
	}

	err = verifyBufferProgram(execCtx, instrCtx, 3)
	if err != nil {
		return err
	}

	// program data account
	programData, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}
	err = copyBufferIntoProgramData(instrCtx, txCtx, programData, 3, &UpgradeableLoaderState{
		Type:        UpgradeableLoaderStateTypeProgramData,
		ProgramData: UpgradeableLoaderStateProgramData{Slot: clock.Slot, UpgradeAuthorityAddress: authorityKey.ToPointer()},
	})
	programData.Drop()
	if err != nil {
		return err
	}

	// program account
	program, err = instrCtx.BorrowInstructionAccount(txCtx, 2)
	if err != nil {
		return err
	}
	defer program.Drop()

	err = setUpgradeableLoaderAccountState(program, &UpgradeableLoaderState{
		Type:    UpgradeableLoaderStateTypeProgram,
		Program: UpgradeableLoaderStateProgram{ProgramDataAddress: programDataKey},
	})
	if err != nil {
		return err
	}
	err = program.SetExecutable(true)
	if err != nil {
		return err
	}

	execCtx.Log.Log(fmt.Sprintf("Deployed program %s", newProgramId))
	return nil
}

func UpgradeableLoaderUpgrade(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(3)
	if err != nil {
		return err
	}
	programDataKey, err := instructionAccountKey(txCtx, instrCtx, 0)
	if err != nil {
		return err
	}
	rent, err := ReadRentSysvarFromCache(execCtx, instrCtx, 4)
	if err != nil {
		return err
	}
	clock, err := ReadClockSysvarFromCache(execCtx, instrCtx, 5)
	if err != nil {
		return err
	}
	err = instrCtx.CheckNumOfInstructionAccounts(7)
	if err != nil {
		return err
	}
	authorityKey, err := instructionAccountKey(txCtx, instrCtx, 6)
	if err != nil {
		return err
	}

	// program account
	program, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}
	if !program.IsExecutable() {
		program.Drop()
		execCtx.Log.Log("Program account not executable")
		return InstrErrAccountNotExecutable
	}
	if !program.IsWritable() {
		program.Drop()
		execCtx.Log.Log("Program account not writeable")
		return InstrErrInvalidArgument
	}
	if program.Owner() != BpfLoaderUpgradeableAddr {
		program.Drop()
		execCtx.Log.Log("Program account not owned by loader")
		return InstrErrIncorrectProgramId
	}
	programState, err := UnmarshalUpgradeableLoaderState(program.Data())
	if err != nil {
		program.Drop()
		return err
	}
	if programState.Type != UpgradeableLoaderStateTypeProgram {
		program.Drop()
		execCtx.Log.Log("Invalid Program account")
		return InstrErrInvalidAccountData
	}
	if programState.Program.ProgramDataAddress != programDataKey {
		program.Drop()
		execCtx.Log.Log("Program and ProgramData account mismatch")
		return InstrErrInvalidArgument
	}
	newProgramId := program.Key()
	program.Drop()

	// buffer account
	bufferLamports, bufferDataLen, err := checkBufferForDeploy(execCtx, instrCtx, 2, 6)
	if err != nil {
		return err
	}

	// program data account
	programData, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer programData.Drop()

	balanceRequired := rent.MinimumBalance(uint64(len(programData.Data())))
	if balanceRequired < 1 {
		balanceRequired = 1
	}
	if uint64(len(programData.Data())) < UpgradeableLoaderSizeOfProgramData(bufferDataLen) {
		execCtx.Log.Log("ProgramData account not large enough")
		return InstrErrAccountDataTooSmall
	}
	if safemath.SaturatingAddU64(programData.Lamports(), bufferLamports) < balanceRequired {
		execCtx.Log.Log("Buffer account balance too low to fund upgrade")
		return InstrErrInsufficientFunds
	}

	programDataState, err := UnmarshalUpgradeableLoaderState(programData.Data())
	if err != nil {
		return err
	}
	if programDataState.Type != UpgradeableLoaderStateTypeProgramData {
		execCtx.Log.Log("Invalid ProgramData account")
		return InstrErrInvalidAccountData
	}
	if clock.Slot == programDataState.ProgramData.Slot {
		execCtx.Log.Log("Program was deployed in this block already")
		return InstrErrInvalidArgument
	}
	if programDataState.ProgramData.UpgradeAuthorityAddress == nil {
		execCtx.Log.Log("Program not upgradeable")
		return InstrErrImmutable
	}
	if *programDataState.ProgramData.UpgradeAuthorityAddress != authorityKey {
		execCtx.Log.Log("Incorrect upgrade authority provided")
		return InstrErrIncorrectAuthority
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(6)
	if err != nil {
		return err
	}
	if !isSigner {
		execCtx.Log.Log("Upgrade authority did not sign")
		return InstrErrMissingRequiredSignature
	}

	err = verifyBufferProgram(execCtx, instrCtx, 2)
	if err != nil {
		return err
	}

	err = copyBufferIntoProgramData(instrCtx, txCtx, programData, 2, &UpgradeableLoaderState{
		Type:        UpgradeableLoaderStateTypeProgramData,
		ProgramData: UpgradeableLoaderStateProgramData{Slot: clock.Slot, UpgradeAuthorityAddress: authorityKey.ToPointer()},
	})
	if err != nil {
		return err
	}

	// fund program data to rent exemption and spill the rest
	buffer, err := instrCtx.BorrowInstructionAccount(txCtx, 2)
	if err != nil {
		return err
	}
	defer buffer.Drop()
	spill, err := instrCtx.BorrowInstructionAccount(txCtx, 3)
	if err != nil {
		return err
	}
	defer spill.Drop()

	spillLamports := safemath.SaturatingSubU64(safemath.SaturatingAddU64(programData.Lamports(), bufferLamports), balanceRequired)
	err = spill.CheckedAddLamports(spillLamports)
	if err != nil {
		return err
	}
	err = buffer.SetLamports(0)
	if err != nil {
		return err
	}
	err = programData.SetLamports(balanceRequired)
	if err != nil {
		return err
	}

	execCtx.Log.Log(fmt.Sprintf("Upgraded program %s", newProgramId))
	return nil
}

func UpgradeableLoaderSetAuthority(execCtx *ExecutionCtx, checked bool) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	minAccts := uint64(2)
	if checked {
		minAccts = 3
	}
	err = instrCtx.CheckNumOfInstructionAccounts(minAccts)
	if err != nil {
		return err
	}

	acct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer acct.Drop()

	presentAuthorityKey, err := instructionAccountKey(txCtx, instrCtx, 1)
	if err != nil {
		return err
	}

	var newAuthority *solana.PublicKey
	if key, err := instructionAccountKey(txCtx, instrCtx, 2); err == nil {
		newAuthority = key.ToPointer()
	}

	checkAuthority := func(current *solana.PublicKey, immutableMsg string, incorrectMsg string, unsignedMsg string) error {
		if current == nil {
			execCtx.Log.Log(immutableMsg)
			return InstrErrImmutable
		}
		if *current != presentAuthorityKey {
			execCtx.Log.Log(incorrectMsg)
			return InstrErrIncorrectAuthority
		}
		isSigner, err := instrCtx.IsInstructionAccountSigner(1)
		if err != nil {
			return err
		}
		if !isSigner {
			execCtx.Log.Log(unsignedMsg)
			return InstrErrMissingRequiredSignature
		}
		if checked {
			isSigner, err = instrCtx.IsInstructionAccountSigner(2)
			if err != nil {
				return err
			}
			if !isSigner {
				execCtx.Log.Log("New authority did not sign")
				return InstrErrMissingRequiredSignature
			}
		}
		return nil
	}

	state, err := UnmarshalUpgradeableLoaderState(acct.Data())
	if err != nil {
		return err
	}

	switch state.Type {
	case UpgradeableLoaderStateTypeBuffer:
		if newAuthority == nil {
			execCtx.Log.Log("Buffer authority is not optional")
			return InstrErrIncorrectAuthority
		}
		err = checkAuthority(state.Buffer.AuthorityAddress, "Buffer is immutable", "Incorrect buffer authority provided", "Buffer authority did not sign")
		if err != nil {
			return err
		}
		state.Buffer.AuthorityAddress = newAuthority

	case UpgradeableLoaderStateTypeProgramData:
		err = checkAuthority(state.ProgramData.UpgradeAuthorityAddress, "Program not upgradeable", "Incorrect upgrade authority provided", "Upgrade authority did not sign")
		if err != nil {
			return err
		}
		state.ProgramData.UpgradeAuthorityAddress = newAuthority

	default:
		execCtx.Log.Log("Account does not support authorities")
		return InstrErrInvalidArgument
	}

	err = setUpgradeableLoaderAccountState(acct, state)
	if err != nil {
		return err
	}

	if newAuthority == nil {
		execCtx.Log.Log("New authority None")
	} else {
		execCtx.Log.Log(fmt.Sprintf("New authority Some(%s)", newAuthority))
	}
	return nil
}

func closeAcctCommon(execCtx *ExecutionCtx, instrCtx *InstructionCtx, authorityAddress *solana.PublicKey) error {
	txCtx := execCtx.TransactionContext

	if authorityAddress == nil {
		execCtx.Log.Log("Account is immutable")
		return InstrErrImmutable
	}
	if !isInstructionAccountKey(txCtx, instrCtx, 2, authorityAddress) {
		execCtx.Log.Log("Incorrect authority provided")
		return InstrErrIncorrectAuthority
	}
	isSigner, err := instrCtx.IsInstructionAccountSigner(2)
	if err != nil {
		return err
	}
	if !isSigner {
		execCtx.Log.Log("Authority did not sign")
		return InstrErrMissingRequiredSignature
	}

	closeAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	defer closeAcct.Drop()
	recipientAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
	if err != nil {
		return err
	}
	defer recipientAcct.Drop()

	err = recipientAcct.CheckedAddLamports(closeAcct.Lamports())
	if err != nil {
		return err
	}
	err = closeAcct.SetLamports(0)
	if err != nil {
		return err
	}
	return setUpgradeableLoaderAccountState(closeAcct, &UpgradeableLoaderState{Type: UpgradeableLoaderStateTypeUninitialized})
}

func UpgradeableLoaderClose(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	err = instrCtx.CheckNumOfInstructionAccounts(2)
	if err != nil {
		return err
	}

	closeIdx, err := instrCtx.IndexOfInstructionAccountInTransaction(0)
	if err != nil {
		return err
	}
	recipientIdx, err := instrCtx.IndexOfInstructionAccountInTransaction(1)
	if err != nil {
		return err
	}
	if closeIdx == recipientIdx {
		execCtx.Log.Log("Recipient is the same as the account being closed")
		return InstrErrInvalidArgument
	}

	closeAcct, err := instrCtx.BorrowInstructionAccount(txCtx, 0)
	if err != nil {
		return err
	}
	closeKey := closeAcct.Key()
	state, err := UnmarshalUpgradeableLoaderState(closeAcct.Data())
	if err != nil {
		closeAcct.Drop()
		return err
	}
	err = closeAcct.SetDataLength(UpgradeableLoaderSizeOfUninitialized)
	if err != nil {
		closeAcct.Drop()
		return err
	}

	switch state.Type {
	case UpgradeableLoaderStateTypeUninitialized:
		defer closeAcct.Drop()
		recipient, err := instrCtx.BorrowInstructionAccount(txCtx, 1)
		if err != nil {
			return err
		}
		defer recipient.Drop()

		err = recipient.CheckedAddLamports(closeAcct.Lamports())
		if err != nil {
			return err
		}
		err = closeAcct.SetLamports(0)
		if err != nil {
			return err
		}
		execCtx.Log.Log(fmt.Sprintf("Closed Uninitialized %s", closeKey))

	case UpgradeableLoaderStateTypeBuffer:
		closeAcct.Drop()
		err = instrCtx.CheckNumOfInstructionAccounts(3)
		if err != nil {
			return err
		}
		err = closeAcctCommon(execCtx, instrCtx, state.Buffer.AuthorityAddress)
		if err != nil {
			return err
		}
		execCtx.Log.Log(fmt.Sprintf("Closed Buffer %s", closeKey))

	case UpgradeableLoaderStateTypeProgramData:
		closeAcct.Drop()
		err = instrCtx.CheckNumOfInstructionAccounts(4)
		if err != nil {
			return err
		}

		program, err := instrCtx.BorrowInstructionAccount(txCtx, 3)
		if err != nil {
			return err
		}
		programKey := program.Key()
		if !program.IsWritable() {
			program.Drop()
			execCtx.Log.Log("Program account is not writable")
			return InstrErrInvalidArgument
		}
		if program.Owner() != BpfLoaderUpgradeableAddr {
			program.Drop()
			execCtx.Log.Log("Program account not owned by loader")
			return InstrErrIncorrectProgramId
		}
		if execCtx.SysvarCache.GetClock().Slot == state.ProgramData.Slot {
			program.Drop()
			execCtx.Log.Log("Program was deployed in this block already")
			return InstrErrInvalidArgument
		}
		programState, err := UnmarshalUpgradeableLoaderState(program.Data())
		program.Drop()
		if err != nil || programState.Type != UpgradeableLoaderStateTypeProgram {
			execCtx.Log.Log("Invalid Program account")
			return InstrErrInvalidArgument
		}
		if programState.Program.ProgramDataAddress != closeKey {
			execCtx.Log.Log("ProgramData account does not match ProgramData account")
			return InstrErrInvalidArgument
		}

		err = closeAcctCommon(execCtx, instrCtx, state.ProgramData.UpgradeAuthorityAddress)
		if err != nil {
			return err
		}
		execCtx.Log.Log(fmt.Sprintf("Closed Program %s", programKey))

	default:
		closeAcct.Drop()
		execCtx.Log.Log("Account does not support closing")
		return InstrErrInvalidArgument
	}

	return nil
}

func UpgradeableLoaderExtendProgram(execCtx *ExecutionCtx, additionalBytes uint32) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	if additionalBytes == 0 {
		execCtx.Log.Log("Additional bytes must be greater than 0")
		return InstrErrInvalidInstructionData
	}

	const (
		programDataAcctIdx = 0
		programAcctIdx     = 1
		optionalPayerIdx   = 3
	)

	programData, err := instrCtx.BorrowInstructionAccount(txCtx, programDataAcctIdx)
	if err != nil {
		return err
	}
	programDataKey := programData.Key()

	if programData.Owner() != BpfLoaderUpgradeableAddr {
		programData.Drop()
		execCtx.Log.Log("ProgramData owner is invalid")
		return InstrErrInvalidAccountOwner
	}
	if !programData.IsWritable() {
		programData.Drop()
		execCtx.Log.Log("ProgramData is not writable")
		return InstrErrInvalidArgument
	}

	program, err := instrCtx.BorrowInstructionAccount(txCtx, programAcctIdx)
	if err != nil {
		programData.Drop()
		return err
	}
	if !program.IsWritable() {
		program.Drop()
		programData.Drop()
		execCtx.Log.Log("Program account is not writable")
		return InstrErrInvalidArgument
	}
	if program.Owner() != BpfLoaderUpgradeableAddr {
		program.Drop()
		programData.Drop()
		execCtx.Log.Log("Program account not owned by loader")
		return InstrErrInvalidAccountOwner
	}
	programState, err := UnmarshalUpgradeableLoaderState(program.Data())
	program.Drop()
	if err != nil || programState.Type != UpgradeableLoaderStateTypeProgram {
		programData.Drop()
		execCtx.Log.Log("Invalid Program account")
		return InstrErrInvalidAccountData
	}
	if programState.Program.ProgramDataAddress != programDataKey {
		programData.Drop()
		execCtx.Log.Log("Program account does not match ProgramData account")
		return InstrErrInvalidArgument
	}

	oldLen := uint64(len(programData.Data()))
	newLen := safemath.SaturatingAddU64(oldLen, uint64(additionalBytes))
	if newLen > SystemProgMaxPermittedDataLen {
		programData.Drop()
		execCtx.Log.Log(fmt.Sprintf("Extended ProgramData length of %d bytes exceeds max account data length of %d bytes", newLen, SystemProgMaxPermittedDataLen))
		return InstrErrInvalidRealloc
	}

	clockSlot := execCtx.SysvarCache.GetClock().Slot
	programDataState, err := UnmarshalUpgradeableLoaderState(programData.Data())
	if err != nil || programDataState.Type != UpgradeableLoaderStateTypeProgramData {
		programData.Drop()
		execCtx.Log.Log("ProgramData state is invalid")
		return InstrErrInvalidAccountData
	}
	if clockSlot == programDataState.ProgramData.Slot {
		programData.Drop()
		execCtx.Log.Log("Program was extended in this block already")
		return InstrErrInvalidArgument
	}
	if programDataState.ProgramData.UpgradeAuthorityAddress == nil {
		programData.Drop()
		execCtx.Log.Log("Cannot extend ProgramData accounts that are not upgradeable")
		return InstrErrImmutable
	}
	upgradeAuthority := programDataState.ProgramData.UpgradeAuthorityAddress

	minBalance := execCtx.SysvarCache.GetRent().MinimumBalance(newLen)
	if minBalance < 1 {
		minBalance = 1
	}
	requiredPayment := safemath.SaturatingSubU64(minBalance, programData.Lamports())
	programData.Drop()

	if requiredPayment > 0 {
		payerKey, err := instructionAccountKey(txCtx, instrCtx, optionalPayerIdx)
		if err != nil {
			return err
		}
		err = execCtx.NativeInvoke(NewTransferInstruction(payerKey, programDataKey, requiredPayment), nil)
		if err != nil {
			return err
		}
	}

	programData, err = instrCtx.BorrowInstructionAccount(txCtx, programDataAcctIdx)
	if err != nil {
		return err
	}
	defer programData.Drop()

	err = programData.SetDataLength(newLen)
	if err != nil {
		return err
	}
	err = verifyProgram(execCtx, programData.Data()[UpgradeableLoaderSizeOfProgramDataMetaData:])
	if err != nil {
		return err
	}
	err = setUpgradeableLoaderAccountState(programData, &UpgradeableLoaderState{
		Type:        UpgradeableLoaderStateTypeProgramData,
		ProgramData: UpgradeableLoaderStateProgramData{Slot: clockSlot, UpgradeAuthorityAddress: upgradeAuthority},
	})
	if err != nil {
		return err
	}

	execCtx.Log.Log(fmt.Sprintf("Extended ProgramData account by %d bytes", additionalBytes))
	return nil
}

// ProcessUpgradeableLoaderInstruction decodes and runs one management
// instruction of the upgradeable loader.
func ProcessUpgradeableLoaderInstruction(execCtx *ExecutionCtx) error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	decoder := bin.NewBinDecoder(instrCtx.Data)
	instrType, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return InstrErrInvalidInstructionData
	}

	switch instrType {
	case UpgradeableLoaderInstrTypeInitializeBuffer:
		return UpgradeableLoaderInitializeBuffer(execCtx)

	case UpgradeableLoaderInstrTypeWrite:
		var write UpgradeableLoaderInstrWrite
		if write.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		return UpgradeableLoaderWrite(execCtx, write)

	case UpgradeableLoaderInstrTypeDeployWithMaxDataLen:
		var deploy UpgradeableLoaderInstrDeployWithMaxDataLen
		if deploy.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		return UpgradeableLoaderDeployWithMaxDataLen(execCtx, deploy)

	case UpgradeableLoaderInstrTypeUpgrade:
		return UpgradeableLoaderUpgrade(execCtx)

	case UpgradeableLoaderInstrTypeSetAuthority:
		return UpgradeableLoaderSetAuthority(execCtx, false)

	case UpgradeableLoaderInstrTypeSetAuthorityChecked:
		return UpgradeableLoaderSetAuthority(execCtx, true)

	case UpgradeableLoaderInstrTypeClose:
		return UpgradeableLoaderClose(execCtx)

	case UpgradeableLoaderInstrTypeExtendProgram:
		var extendProgram UpgradeableLoaderInstrExtendProgram
		if extendProgram.UnmarshalWithDecoder(decoder) != nil {
			return InstrErrInvalidInstructionData
		}
		return UpgradeableLoaderExtendProgram(execCtx, extendProgram.AdditionalBytes)

	default:
		return InstrErrInvalidInstructionData
	}
}
