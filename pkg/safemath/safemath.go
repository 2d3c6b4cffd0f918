package safemath

import (
	"errors"
	"math"

	"github.com/ryanavella/wide"
)

var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)

func CheckedAddU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

func CheckedSubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

func CheckedMulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}

func SaturatingAddU64(a, b uint64) uint64 {
	sum, err := CheckedAddU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return sum
}

func SaturatingSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingMulU64(a, b uint64) uint64 {
	product, err := CheckedMulU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return product
}

// CheckedMulU128 multiplies in 128 bits and reports overflow past 2^128-1.
func CheckedMulU128(a, b wide.Uint128) (wide.Uint128, error) {
	var zero wide.Uint128
	if a == zero || b == zero {
		return zero, nil
	}
	product := a.Mul(b)
	if product.Div(b) != a {
		return zero, ErrOverflow
	}
	return product, nil
}

// MulU64Checked widens both operands and narrows the product back to u64.
func MulU64Checked(a, b uint64) (uint64, bool) {
	product, err := CheckedMulU128(wide.Uint128FromUint64(a), wide.Uint128FromUint64(b))
	if err != nil || !product.IsUint64() {
		return 0, false
	}
	return product.Uint64(), true
}

func CheckedAddU128(a, b wide.Uint128) (wide.Uint128, error) {
	sum := a.Add(b)
	if sum.Cmp(a) < 0 {
		var zero wide.Uint128
		return zero, ErrOverflow
	}
	return sum, nil
}

func SaturatingAddU128(a, b wide.Uint128) wide.Uint128 {
	sum, err := CheckedAddU128(a, b)
	if err != nil {
		return wide.NewUint128(math.MaxUint64, math.MaxUint64)
	}
	return sum
}
