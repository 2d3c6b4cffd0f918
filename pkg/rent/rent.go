package rent

import "math"

const (
	// AccountStorageOverhead is charged on top of the data length of every account.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 1000000000 / 100 * 365 / (1024 * 1024)
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50
)

type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         byte
}

func Default() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance is the balance needed for an account of dataLen bytes to be
// exempt from rent collection.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := dataLen + AccountStorageOverhead
	lamports := float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold
	if lamports >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(lamports)
}

func (r Rent) IsExempt(balance uint64, dataLen uint64) bool {
	return balance >= r.MinimumBalance(dataLen)
}
