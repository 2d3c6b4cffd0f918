package features

import (
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

type Features struct {
	enabled map[[32]byte]featureState
}

type featureState struct {
	gate           FeatureGate
	activationSlot uint64
}

// NewFeaturesDefault returns a set with every gate inactive.
func NewFeaturesDefault() *Features {
	return &Features{enabled: make(map[[32]byte]featureState)}
}

func (f *Features) EnableFeature(gate FeatureGate, slot uint64) {
	f.enabled[gate.Address] = featureState{gate: gate, activationSlot: slot}
}

func (f *Features) DisableFeature(gate FeatureGate) {
	delete(f.enabled, gate.Address)
}

func (f *Features) IsActive(gate FeatureGate) bool {
	if f == nil {
		return false
	}
	_, ok := f.enabled[gate.Address]
	return ok
}

func (f *Features) ActivationSlot(gate FeatureGate) (uint64, bool) {
	state, ok := f.enabled[gate.Address]
	return state.activationSlot, ok
}

func (f *Features) AllEnabled() []string {
	var out []string
	for _, state := range f.enabled {
		out = append(out, fmt.Sprintf("feature %s (%s) enabled", state.gate.Name, base58.Encode(state.gate.Address[:])))
	}
	sort.Strings(out)
	return out
}
