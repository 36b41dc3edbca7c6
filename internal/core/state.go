package core

import "qubecore/pkg/topology"

// SystemState fingerprints the inputs an allocation was derived from.
type SystemState struct {
	QuantumSystem string `json:"quantum_system"`
	ControlSystem string `json:"control_system"`
	WiringInfo    string `json:"wiring_info"`
	ControlParams string `json:"control_params"`
}

func newSystemState(qs *topology.QuantumSystem, cs *topology.ControlSystem, wiring WiringInfo, params ControlParams) SystemState {
	return SystemState{
		QuantumSystem: qs.Hash(),
		ControlSystem: cs.Hash(),
		WiringInfo:    topology.ContentHash(wiring),
		ControlParams: topology.ContentHash(params),
	}
}

// Matches reports whether both states were derived from identical inputs.
func (s SystemState) Matches(other SystemState) bool {
	return s == other
}
