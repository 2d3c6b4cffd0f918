package cu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMeter_Consume(t *testing.T) {
	cm := NewComputeMeter(1000)

	assert.NoError(t, cm.Consume(400))
	assert.Equal(t, uint64(400), cm.Used())
	assert.Equal(t, uint64(600), cm.Remaining())

	err := cm.Consume(601)
	assert.ErrorIs(t, err, ErrComputeExceeded)
	assert.True(t, cm.Exceeded())
	assert.Equal(t, uint64(0), cm.Remaining())
	assert.Equal(t, uint64(1000), cm.Used())
}

func TestComputeMeter_Disabled(t *testing.T) {
	cm := NewComputeMeter(10)
	cm.Disable()
	assert.NoError(t, cm.Consume(20))
	assert.True(t, cm.Exceeded())
}

func TestComputeBudget_Defaults(t *testing.T) {
	budget := NewComputeBudgetDefault()
	assert.Equal(t, uint64(1400000), budget.ComputeUnitLimit)
	assert.Equal(t, uint64(5), budget.MaxInvokeStackHeight)
	assert.Equal(t, uint64(64), budget.MaxInstructionTraceLength)
}
