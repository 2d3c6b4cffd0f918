package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The TestFeatures_EnableAndDisable function tests that the
// enable and disable features work correctly.
func TestFeatures_EnableAndDisable(t *testing.T) {
	f := NewFeaturesDefault()
	f.EnableFeature(SystemTransferZeroCheck, 0)
	assert.Equal(t, f.IsActive(SystemTransferZeroCheck), true)
	f.DisableFeature(SystemTransferZeroCheck)
	assert.Equal(t, f.IsActive(SystemTransferZeroCheck), false)
	f.EnableFeature(SystemTransferZeroCheck, 5)
	assert.Equal(t, f.IsActive(SystemTransferZeroCheck), true)

	slot, ok := f.ActivationSlot(SystemTransferZeroCheck)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), slot)
}

// The TestFeatures_ListEnabled function tests that the AllEnabled function works
// as expected.
func TestFeatures_ListEnabled(t *testing.T) {
	f := NewFeaturesDefault()
	f.EnableFeature(SystemTransferZeroCheck, 0)
	assert.Equal(t, f.AllEnabled(), []string{"feature SystemTransferZeroCheck (BrTR9hzw4WBGFP65AJMbpAo64DcA3U6jdPSga9fMV5cS) enabled"})
}

func TestFeatures_GateByName(t *testing.T) {
	gate, ok := GateByName("MergeNonceErrorIntoSystemError")
	assert.True(t, ok)
	assert.Equal(t, MergeNonceErrorIntoSystemError, gate)

	_, ok = GateByName("NoSuchFeature")
	assert.False(t, ok)
}

func TestFeatures_NilSetIsInactive(t *testing.T) {
	var f *Features
	assert.False(t, f.IsActive(InstructionsSysvarOwnedBySysvar))
}
