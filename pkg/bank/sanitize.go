package bank

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
)

// SanitizeTransaction verifies the structural invariants of tx and its
// signatures. Transactions that pass can be indexed without bounds checks
// by the loader.
func SanitizeTransaction(tx *solana.Transaction) error {
	msg := &tx.Message

	if msg.IsVersioned() && msg.NumLookups() > 0 {
		return TxErrAddressLookupTablesDisabled
	}

	if err := sanitizeMessage(msg); err != nil {
		return err
	}

	if len(tx.Signatures) != int(msg.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: %d signatures for %d required signers", TxErrSanitizeFailure, len(tx.Signatures), msg.Header.NumRequiredSignatures)
	}

	if err := tx.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %s", TxErrSignatureFailure, err)
	}

	return nil
}

func sanitizeMessage(msg *solana.Message) error {
	numKeys := len(msg.AccountKeys)
	header := msg.Header

	if int(header.NumRequiredSignatures)+int(header.NumReadonlyUnsignedAccounts) > numKeys {
		return fmt.Errorf("%w: header counts exceed %d account keys", TxErrSanitizeFailure, numKeys)
	}
	// the fee payer must be a writable signer
	if header.NumReadonlySignedAccounts >= header.NumRequiredSignatures {
		return fmt.Errorf("%w: no writable signer", TxErrSanitizeFailure)
	}

	if len(lo.Uniq(msg.AccountKeys)) != numKeys {
		return TxErrAccountLoadedTwice
	}

	for instrIdx, instr := range msg.Instructions {
		programIdx := int(instr.ProgramIDIndex)
		if programIdx == 0 || programIdx >= numKeys {
			return fmt.Errorf("%w: instruction %d has invalid program index %d", TxErrSanitizeFailure, instrIdx, programIdx)
		}
		if isHeaderWritable(msg, programIdx) {
			return fmt.Errorf("%w: instruction %d invokes writable account %s", TxErrSanitizeFailure, instrIdx, msg.AccountKeys[programIdx])
		}
		for _, acctIdx := range instr.Accounts {
			if int(acctIdx) >= numKeys {
				return fmt.Errorf("%w: instruction %d references account %d of %d", TxErrSanitizeFailure, instrIdx, acctIdx, numKeys)
			}
		}
	}

	return nil
}

// isHeaderWritable applies only the header counts, without the demotion of
// reserved keys and programs.
func isHeaderWritable(msg *solana.Message, idx int) bool {
	numSigned := int(msg.Header.NumRequiredSignatures)
	if idx < numSigned {
		return idx < numSigned-int(msg.Header.NumReadonlySignedAccounts)
	}
	return idx < len(msg.AccountKeys)-int(msg.Header.NumReadonlyUnsignedAccounts)
}
