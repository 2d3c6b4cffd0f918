package fees

import (
	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/pkg/safemath"
)

// CalculateFee prices a message at lamportsPerSignature for each required
// signature, counting at least one. ok is false on overflow.
func CalculateFee(msg *solana.Message, lamportsPerSignature uint64) (fee uint64, ok bool) {
	numSignatures := uint64(msg.Header.NumRequiredSignatures)
	if numSignatures == 0 {
		numSignatures = 1
	}
	return safemath.MulU64Checked(numSignatures, lamportsPerSignature)
}
