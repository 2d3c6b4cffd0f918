package sealevel

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/minio/sha256-simd"
	"github.com/solana-playground/playnet/pkg/features"
)

// NonceStateSize is the serialized size of an initialized nonce account.
const NonceStateSize = 80

const (
	NonceVersionLegacy  = 0
	NonceVersionCurrent = 1
)

const (
	nonceStateUninitialized = 0
	nonceStateInitialized   = 1
)

type NonceStateVersions struct {
	Type  uint32
	State NonceData
}

type NonceData struct {
	IsInitialized bool
	Authority     solana.PublicKey
	DurableNonce  [32]byte
	FeeCalculator FeeCalculator
}

// DurableNonceFromBlockhash domain-separates a blockhash so a stored nonce
// can never equal a blockhash handed out by the bank.
func DurableNonceFromBlockhash(blockhash [32]byte) [32]byte {
	return sha256.Sum256(append([]byte("DURABLE_NONCE"), blockhash[:]...))
}

func NewInitializedNonceState(authority solana.PublicKey, durableNonce [32]byte, lamportsPerSignature uint64) *NonceStateVersions {
	return &NonceStateVersions{
		Type: NonceVersionCurrent,
		State: NonceData{
			IsInitialized: true,
			Authority:     authority,
			DurableNonce:  durableNonce,
			FeeCalculator: FeeCalculator{LamportsPerSignature: lamportsPerSignature},
		},
	}
}

func (nonceStateVersions *NonceStateVersions) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	var err error
	nonceStateVersions.Type, err = decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if nonceStateVersions.Type != NonceVersionLegacy && nonceStateVersions.Type != NonceVersionCurrent {
		return InstrErrInvalidAccountData
	}
	return nonceStateVersions.State.UnmarshalWithDecoder(decoder)
}

func (nonceStateVersions *NonceStateVersions) MarshalWithEncoder(encoder *bin.Encoder) error {
	err := encoder.WriteUint32(nonceStateVersions.Type, bin.LE)
	if err != nil {
		return err
	}
	return nonceStateVersions.State.MarshalWithEncoder(encoder)
}

func (nonceStateVersions *NonceStateVersions) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := nonceStateVersions.MarshalWithEncoder(bin.NewBinEncoder(buf))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalNonceStateVersions decodes account data; any failure is
// InstrErrInvalidAccountData.
func UnmarshalNonceStateVersions(data []byte) (*NonceStateVersions, error) {
	nonceStateVersions := new(NonceStateVersions)
	err := nonceStateVersions.UnmarshalWithDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, InstrErrInvalidAccountData
	}
	return nonceStateVersions, nil
}

// Upgrade converts an initialized legacy state to the current version,
// re-deriving the durable nonce from the stored blockhash. It reports false
// when there is nothing to upgrade.
func (nonceStateVersions *NonceStateVersions) Upgrade() bool {
	if nonceStateVersions.Type != NonceVersionLegacy || !nonceStateVersions.State.IsInitialized {
		return false
	}
	nonceStateVersions.State.DurableNonce = DurableNonceFromBlockhash(nonceStateVersions.State.DurableNonce)
	nonceStateVersions.Type = NonceVersionCurrent
	return true
}

func (nonceData *NonceData) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	state, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}

	switch state {
	case nonceStateUninitialized:
		*nonceData = NonceData{}
		return nil
	case nonceStateInitialized:
	default:
		return InstrErrInvalidAccountData
	}

	err = readPubkey(decoder, &nonceData.Authority)
	if err != nil {
		return err
	}
	durableNonce, err := decoder.ReadBytes(32)
	if err != nil {
		return err
	}
	copy(nonceData.DurableNonce[:], durableNonce)

	nonceData.FeeCalculator.LamportsPerSignature, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	nonceData.IsInitialized = true
	return nil
}

func (nonceData *NonceData) MarshalWithEncoder(encoder *bin.Encoder) error {
	if !nonceData.IsInitialized {
		return encoder.WriteUint32(nonceStateUninitialized, bin.LE)
	}

	err := encoder.WriteUint32(nonceStateInitialized, bin.LE)
	if err != nil {
		return err
	}
	err = encoder.WriteBytes(nonceData.Authority[:], false)
	if err != nil {
		return err
	}
	err = encoder.WriteBytes(nonceData.DurableNonce[:], false)
	if err != nil {
		return err
	}
	return encoder.WriteUint64(nonceData.FeeCalculator.LamportsPerSignature, bin.LE)
}

// IsInitializedNonceAccount reports whether data holds an initialized nonce
// state of the canonical size.
func IsInitializedNonceAccount(data []byte) bool {
	if len(data) != NonceStateSize {
		return false
	}
	state, err := UnmarshalNonceStateVersions(data)
	return err == nil && state.State.IsInitialized
}

// nonceError picks between the legacy nonce custom code and its system
// program replacement.
func nonceError(f *features.Features, legacy error) error {
	if !f.IsActive(features.MergeNonceErrorIntoSystemError) {
		return legacy
	}
	switch legacy {
	case NonceErrNoRecentBlockhashes:
		return SystemProgErrNonceNoRecentBlockhashes
	case NonceErrNotExpired:
		return SystemProgErrNonceBlockhashNotExpired
	case NonceErrUnexpectedValue:
		return SystemProgErrNonceUnexpectedBlockhashValue
	case NonceErrBadAccountState:
		return InstrErrInvalidAccountData
	}
	return legacy
}

func (execCtx *ExecutionCtx) durableNonce() ([32]byte, uint64) {
	return DurableNonceFromBlockhash(execCtx.Blockhash), execCtx.LamportsPerSignature
}

func SystemProgramInitializeNonceAccount(execCtx *ExecutionCtx, acct *BorrowedAccount, authority solana.PublicKey, minBalance uint64) error {
	if !acct.IsWritable() {
		execCtx.Log.Log("Initialize nonce account: Account " + acct.Key().String() + " must be writeable")
		return InstrErrInvalidArgument
	}

	state, err := UnmarshalNonceStateVersions(acct.Data())
	if err != nil {
		return err
	}
	if state.State.IsInitialized {
		execCtx.Log.Log("Initialize nonce account: Account " + acct.Key().String() + " state is invalid")
		return nonceError(execCtx.Features, NonceErrBadAccountState)
	}

	if acct.Lamports() < minBalance {
		execCtx.Log.Log(insufficientLamportsMsg("Initialize nonce account", acct.Lamports(), minBalance))
		return InstrErrInsufficientFunds
	}

	durableNonce, lamportsPerSignature := execCtx.durableNonce()
	newState, err := NewInitializedNonceState(authority, durableNonce, lamportsPerSignature).Marshal()
	if err != nil {
		return err
	}
	return acct.SetState(newState)
}

func SystemProgramAuthorizeNonceAccount(execCtx *ExecutionCtx, acct *BorrowedAccount, authority solana.PublicKey, signers []solana.PublicKey) error {
	if !acct.IsWritable() {
		execCtx.Log.Log("Authorize nonce account: Account " + acct.Key().String() + " must be writeable")
		return InstrErrInvalidArgument
	}

	state, err := UnmarshalNonceStateVersions(acct.Data())
	if err != nil {
		return err
	}
	if !state.State.IsInitialized {
		execCtx.Log.Log("Authorize nonce account: Account " + acct.Key().String() + " state is invalid")
		return nonceError(execCtx.Features, NonceErrBadAccountState)
	}

	if verifySigner(state.State.Authority, signers) != nil {
		execCtx.Log.Log("Authorize nonce account: Account " + state.State.Authority.String() + " must sign")
		return InstrErrMissingRequiredSignature
	}

	state.State.Authority = authority
	newState, err := state.Marshal()
	if err != nil {
		return err
	}
	return acct.SetState(newState)
}

func SystemProgramAdvanceNonceAccount(execCtx *ExecutionCtx, acct *BorrowedAccount, signers []solana.PublicKey) error {
	if !acct.IsWritable() {
		execCtx.Log.Log("Advance nonce account: Account " + acct.Key().String() + " must be writeable")
		return InstrErrInvalidArgument
	}

	state, err := UnmarshalNonceStateVersions(acct.Data())
	if err != nil {
		return err
	}
	if !state.State.IsInitialized {
		execCtx.Log.Log("Advance nonce account: Account " + acct.Key().String() + " state is invalid")
		return nonceError(execCtx.Features, NonceErrBadAccountState)
	}

	if verifySigner(state.State.Authority, signers) != nil {
		execCtx.Log.Log("Advance nonce account: Account " + state.State.Authority.String() + " must be a signer")
		return InstrErrMissingRequiredSignature
	}

	nextDurableNonce, lamportsPerSignature := execCtx.durableNonce()
	if state.State.DurableNonce == nextDurableNonce {
		execCtx.Log.Log("Advance nonce account: nonce can only advance once per slot")
		return nonceError(execCtx.Features, NonceErrNotExpired)
	}

	newState, err := NewInitializedNonceState(state.State.Authority, nextDurableNonce, lamportsPerSignature).Marshal()
	if err != nil {
		return err
	}
	return acct.SetState(newState)
}

func SystemProgramWithdrawNonceAccount(execCtx *ExecutionCtx, instrCtx *InstructionCtx, fromAcctIdx uint64, lamports uint64, toAcctIdx uint64, minBalance func(dataLen uint64) uint64, signers []solana.PublicKey) error {
	txCtx := execCtx.TransactionContext

	from, err := instrCtx.BorrowInstructionAccount(txCtx, fromAcctIdx)
	if err != nil {
		return err
	}
	defer from.Drop()

	if !from.IsWritable() {
		execCtx.Log.Log("Withdraw nonce account: Account " + from.Key().String() + " must be writeable")
		return InstrErrInvalidArgument
	}

	state, err := UnmarshalNonceStateVersions(from.Data())
	if err != nil {
		return err
	}

	var signer solana.PublicKey
	if state.State.IsInitialized {
		if lamports == from.Lamports() {
			durableNonce, _ := execCtx.durableNonce()
			if state.State.DurableNonce == durableNonce {
				execCtx.Log.Log("Withdraw nonce account: nonce can only advance once per slot")
				return nonceError(execCtx.Features, NonceErrNotExpired)
			}
			uninitialized, err := (&NonceStateVersions{Type: NonceVersionCurrent}).Marshal()
			if err != nil {
				return err
			}
			err = from.SetState(uninitialized)
			if err != nil {
				return err
			}
		} else {
			need := minBalance(uint64(len(from.Data()))) + lamports
			if need < lamports || need > from.Lamports() {
				execCtx.Log.Log(insufficientLamportsMsg("Withdraw nonce account", from.Lamports(), need))
				return InstrErrInsufficientFunds
			}
		}
		signer = state.State.Authority
	} else {
		if lamports > from.Lamports() {
			execCtx.Log.Log(insufficientLamportsMsg("Withdraw nonce account", from.Lamports(), lamports))
			return InstrErrInsufficientFunds
		}
		signer = from.Key()
	}

	if verifySigner(signer, signers) != nil {
		execCtx.Log.Log("Withdraw nonce account: Account " + signer.String() + " must sign")
		return InstrErrMissingRequiredSignature
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

func SystemProgramUpgradeNonceAccount(execCtx *ExecutionCtx, acct *BorrowedAccount) error {
	if acct.Owner() != SystemProgramAddr {
		return InstrErrInvalidAccountOwner
	}
	if !acct.IsWritable() {
		return InstrErrInvalidArgument
	}

	state, err := UnmarshalNonceStateVersions(acct.Data())
	if err != nil {
		return err
	}
	if !state.Upgrade() {
		return InstrErrInvalidArgument
	}

	newState, err := state.Marshal()
	if err != nil {
		return err
	}
	return acct.SetState(newState)
}
