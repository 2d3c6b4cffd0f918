package fees

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestCalculateFee(t *testing.T) {
	msg := solana.Message{Header: solana.MessageHeader{NumRequiredSignatures: 2}}

	fee, ok := CalculateFee(&msg, 0)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), fee)

	fee, ok = CalculateFee(&msg, 5000)
	assert.True(t, ok)
	assert.Equal(t, uint64(10000), fee)

	_, ok = CalculateFee(&msg, math.MaxUint64)
	assert.False(t, ok)
}

func TestCalculateFee_AtLeastOneSignature(t *testing.T) {
	msg := solana.Message{}
	fee, ok := CalculateFee(&msg, 5000)
	assert.True(t, ok)
	assert.Equal(t, uint64(5000), fee)
}
