package sealevel

import (
	"github.com/gagliardetto/solana-go"
)

const (
	SystemProgramAddrStr           = "11111111111111111111111111111111"
	NativeLoaderAddrStr            = "NativeLoader1111111111111111111111111111111"
	BpfLoaderAddrStr               = "BPFLoader2111111111111111111111111111111111"
	BpfLoaderUpgradeableAddrStr    = "BPFLoaderUpgradeab1e11111111111111111111111"
	SysvarOwnerAddrStr             = "Sysvar1111111111111111111111111111111111111"
	SysvarClockAddrStr             = "SysvarC1ock11111111111111111111111111111111"
	SysvarRentAddrStr              = "SysvarRent111111111111111111111111111111111"
	SysvarInstructionsAddrStr      = "Sysvar1nstructions1111111111111111111111111"
	SysvarRecentBlockHashesAddrStr = "SysvarRecentB1ockHashes11111111111111111111"
)

var (
	SystemProgramAddr           = solana.MustPublicKeyFromBase58(SystemProgramAddrStr)
	NativeLoaderAddr            = solana.MustPublicKeyFromBase58(NativeLoaderAddrStr)
	BpfLoaderAddr               = solana.MustPublicKeyFromBase58(BpfLoaderAddrStr)
	BpfLoaderUpgradeableAddr    = solana.MustPublicKeyFromBase58(BpfLoaderUpgradeableAddrStr)
	SysvarOwnerAddr             = solana.MustPublicKeyFromBase58(SysvarOwnerAddrStr)
	SysvarClockAddr             = solana.MustPublicKeyFromBase58(SysvarClockAddrStr)
	SysvarRentAddr              = solana.MustPublicKeyFromBase58(SysvarRentAddrStr)
	SysvarInstructionsAddr      = solana.MustPublicKeyFromBase58(SysvarInstructionsAddrStr)
	SysvarRecentBlockHashesAddr = solana.MustPublicKeyFromBase58(SysvarRecentBlockHashesAddrStr)
)

// IsSysvarId reports whether key is one of the sysvars this runtime materialises.
func IsSysvarId(key solana.PublicKey) bool {
	switch key {
	case SysvarClockAddr, SysvarRentAddr, SysvarInstructionsAddr, SysvarRecentBlockHashesAddr:
		return true
	}
	return false
}

func verifySigner(authorized solana.PublicKey, signers []solana.PublicKey) error {
	for _, signer := range signers {
		if signer == authorized {
			return nil
		}
	}
	return InstrErrMissingRequiredSignature
}
