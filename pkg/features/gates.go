package features

import "github.com/gagliardetto/solana-go"

type FeatureGate struct {
	Name    string
	Address [32]byte
}

var SystemTransferZeroCheck = FeatureGate{Name: "SystemTransferZeroCheck", Address: solana.MustPublicKeyFromBase58("BrTR9hzw4WBGFP65AJMbpAo64DcA3U6jdPSga9fMV5cS")}
var InstructionsSysvarOwnedBySysvar = FeatureGate{Name: "InstructionsSysvarOwnedBySysvar", Address: solana.MustPublicKeyFromBase58("H3kBSaKdeiUsyHmeHqjJYNc27jesXZ6zWj3zWkowQbkV")}
var MergeNonceErrorIntoSystemError = FeatureGate{Name: "MergeNonceErrorIntoSystemError", Address: solana.MustPublicKeyFromBase58("21AWDosvp3pBamFW91KB35pNoaoZVTM7ess8nr2nt53B")}

var AllFeatureGates = []FeatureGate{SystemTransferZeroCheck, InstructionsSysvarOwnedBySysvar, MergeNonceErrorIntoSystemError}

// GateByName resolves a gate from its configured name.
func GateByName(name string) (FeatureGate, bool) {
	for _, gate := range AllFeatureGates {
		if gate.Name == name {
			return gate, true
		}
	}
	return FeatureGate{}, false
}
