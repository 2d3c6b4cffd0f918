package bank

import (
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/accounts"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/solana-playground/playnet/pkg/safemath"
	"github.com/solana-playground/playnet/pkg/sealevel"
	"k8s.io/klog/v2"
)

// MaxLoaderChainDepth bounds the owner walk from a program to the native loader.
const MaxLoaderChainDepth = 5

type accountSource interface {
	GetAccount(pubkey *[32]byte) (*accounts.Account, error)
	GetAccountOrDefault(pubkey *[32]byte) *accounts.Account
}

// LoadedTransaction is the account vector a transaction executes against.
// The first len(AccountKeys) entries follow the message keys; loader chain
// dependencies come after.
type LoadedTransaction struct {
	Keys           []solana.PublicKey
	Accounts       []*accounts.Account
	ProgramIndices [][]uint64
}

type txLoader struct {
	source        accountSource
	dataSizeLimit uint64
	dataSize      uint64
}

func (l *txLoader) accumulateDataSize(n uint64) error {
	if l.dataSizeLimit == 0 {
		return nil
	}
	l.dataSize = safemath.SaturatingAddU64(l.dataSize, n)
	if l.dataSize > l.dataSizeLimit {
		return TxErrMaxLoadedAccountsDataSizeExceeded
	}
	return nil
}

func (l *txLoader) lookup(key solana.PublicKey) *accounts.Account {
	k := [32]byte(key)
	acct, _ := l.source.GetAccount(&k)
	return acct
}

func (loaded *LoadedTransaction) indexOf(key solana.PublicKey) (uint64, bool) {
	for idx, k := range loaded.Keys {
		if k == key {
			return uint64(idx), true
		}
	}
	return 0, false
}

func (loaded *LoadedTransaction) push(key solana.PublicKey, acct *accounts.Account) uint64 {
	loaded.Keys = append(loaded.Keys, key)
	loaded.Accounts = append(loaded.Accounts, acct)
	return uint64(len(loaded.Keys) - 1)
}

// loadTransaction materialises the accounts of a sanitized message, checks
// the fee payer can cover fee and resolves the loader chain of every
// instruction.
func loadTransaction(source accountSource, f *features.Features, dataSizeLimit uint64, msg *solana.Message, fee uint64) (*LoadedTransaction, error) {
	l := &txLoader{source: source, dataSizeLimit: dataSizeLimit}

	loaded := &LoadedTransaction{
		Keys:     make([]solana.PublicKey, 0, len(msg.AccountKeys)),
		Accounts: make([]*accounts.Account, 0, len(msg.AccountKeys)),
	}
	var deps []solana.PublicKey
	var depAccts []*accounts.Account
	validatedFeePayer := false

	for idx, key := range msg.AccountKeys {
		var acct *accounts.Account
		var programDataLen uint64

		switch {
		case !sealevel.IsNonLoaderKey(msg, idx):
			k := [32]byte(key)
			acct = source.GetAccountOrDefault(&k)
		case key == sealevel.SysvarInstructionsAddr:
			acct = sealevel.NewInstructionsSysvarAccount(sealevel.DecompileInstructions(msg), f)
		default:
			k := [32]byte(key)
			acct = source.GetAccountOrDefault(&k)

			if !validatedFeePayer {
				if err := validateFeePayer(acct, fee); err != nil {
					return nil, err
				}
				if !sealevel.IsMessageSigner(msg, idx) {
					return nil, TxErrMissingSignatureForFee
				}
				validatedFeePayer = true
			}

			if solana.PublicKey(acct.Owner) == sealevel.BpfLoaderUpgradeableAddr {
				if sealevel.IsMessageWritable(msg, idx) && !sealevel.IsUpgradeableLoaderPresent(msg) {
					return nil, TxErrInvalidWritableAccount
				}
				if acct.Executable {
					programDataAddr, programData, err := l.programDataOf(acct)
					if err != nil {
						return nil, err
					}
					deps = append(deps, programDataAddr)
					depAccts = append(depAccts, programData)
					programDataLen = uint64(len(programData.Data))
				}
			} else if acct.Executable && sealevel.IsMessageWritable(msg, idx) {
				return nil, TxErrInvalidWritableAccount
			}
		}

		if err := l.accumulateDataSize(uint64(len(acct.Data)) + programDataLen); err != nil {
			return nil, err
		}
		loaded.push(key, acct)
	}

	if !validatedFeePayer {
		return nil, TxErrAccountNotFound
	}

	for i, key := range deps {
		if _, ok := loaded.indexOf(key); !ok {
			loaded.push(key, depAccts[i])
		}
	}

	loaded.ProgramIndices = make([][]uint64, 0, len(msg.Instructions))
	for _, instr := range msg.Instructions {
		chain, err := l.loadExecutableAccounts(loaded, uint64(instr.ProgramIDIndex))
		if err != nil {
			return nil, err
		}
		loaded.ProgramIndices = append(loaded.ProgramIndices, chain)
	}

	return loaded, nil
}

// programDataOf returns a copy of the program data account referenced by an
// upgradeable program.
func (l *txLoader) programDataOf(program *accounts.Account) (solana.PublicKey, *accounts.Account, error) {
	state, err := sealevel.UnmarshalUpgradeableLoaderState(program.Data)
	if err != nil || state.Type != sealevel.UpgradeableLoaderStateTypeProgram {
		return solana.PublicKey{}, nil, TxErrInvalidProgramForExecution
	}
	addr := state.Program.ProgramDataAddress
	programData := l.lookup(addr)
	if programData == nil {
		return addr, nil, TxErrProgramAccountNotFound
	}
	return addr, programData, nil
}

// loadExecutableAccounts walks owner links from the instruction's program up
// to the native loader. The resulting chain lists the outermost loader first
// and the program last, with an upgradeable program's data account right
// before the program.
func (l *txLoader) loadExecutableAccounts(loaded *LoadedTransaction, programIdx uint64) ([]uint64, error) {
	if programIdx >= uint64(len(loaded.Keys)) {
		return nil, TxErrProgramAccountNotFound
	}
	programId := loaded.Keys[programIdx]
	alreadyLoaded := loaded.Accounts[programIdx].Lamports != 0 || len(loaded.Accounts[programIdx].Data) != 0

	var chain []uint64
	depth := 0
	for programId != sealevel.NativeLoaderAddr {
		if depth >= MaxLoaderChainDepth {
			klog.V(2).Infof("loader chain for %s exceeds depth %d", loaded.Keys[programIdx], MaxLoaderChainDepth)
			return nil, TxErrCallChainTooDeep
		}
		depth++

		program := l.lookup(programId)
		if program == nil {
			return nil, TxErrProgramAccountNotFound
		}
		if !program.Executable {
			return nil, TxErrInvalidProgramForExecution
		}

		var loadedSize uint64
		countSize := !(depth == 1 && alreadyLoaded)
		if countSize {
			loadedSize += uint64(len(program.Data))
		}

		idx, ok := loaded.indexOf(programId)
		if !ok {
			idx = loaded.push(programId, program)
		}
		segment := []uint64{idx}

		if solana.PublicKey(program.Owner) == sealevel.BpfLoaderUpgradeableAddr {
			programDataAddr, programData, err := l.programDataOf(program)
			if err != nil {
				return nil, err
			}
			pdIdx, ok := loaded.indexOf(programDataAddr)
			if !ok {
				pdIdx = loaded.push(programDataAddr, programData)
			}
			if countSize {
				loadedSize += uint64(len(programData.Data))
			}
			segment = []uint64{pdIdx, idx}
		}

		if err := l.accumulateDataSize(loadedSize); err != nil {
			return nil, err
		}

		chain = append(segment, chain...)
		programId = program.Owner
	}

	return chain, nil
}

// validateFeePayer requires a plain System account holding at least fee.
// Nonce accounts are refused as fee payers.
func validateFeePayer(payer *accounts.Account, fee uint64) error {
	if payer.Lamports == 0 {
		return TxErrAccountNotFound
	}
	if solana.PublicKey(payer.Owner) != sealevel.SystemProgramAddr {
		return TxErrInvalidAccountForFee
	}
	if len(payer.Data) != 0 {
		if len(payer.Data) == sealevel.NonceStateSize && sealevel.IsInitializedNonceAccount(payer.Data) {
			klog.V(2).Info("refusing nonce account as fee payer")
		}
		return TxErrInvalidAccountForFee
	}
	if payer.Lamports < fee {
		return TxErrInsufficientFundsForFee
	}
	return nil
}
