// Package coretest builds a small wired experiment system for tests of the
// packages layered on core.
package coretest

import (
	"testing"

	"qubecore/internal/core"
	"qubecore/pkg/topology"
)

// ChipID is the id of the fixture chip.
const ChipID = "8Q"

// QubitFrequencies are the ge frequencies (GHz) of Q00..Q07.
var QubitFrequencies = []float64{7.65135, 7.9, 8.1, 7.4, 7.2, 7.7, 7.5, 7.8}

// ResonatorFrequencies are the readout frequencies (GHz) of RQ00..RQ07.
var ResonatorFrequencies = []float64{9.902, 10.1085, 10.173, 10.0315, 10.3, 10.35, 10.4, 10.45}

// NewSystem returns an unallocated system with two muxes wired over a
// quel1-a box "A" and a quel1-b box "B".
func NewSystem(tb testing.TB, opts ...core.SystemOption) *core.ExperimentSystem {
	tb.Helper()
	var qubits []topology.Qubit
	var res []topology.Resonator
	for i, f := range QubitFrequencies {
		label := core.QubitLabel(i)
		qubits = append(qubits, topology.Qubit{Label: label, Index: i, Frequency: f, Anharmonicity: -0.356})
		res = append(res, topology.Resonator{Label: "R" + label, Frequency: ResonatorFrequencies[i], Qubit: label})
	}
	qs, err := topology.NewQuantumSystem(topology.Chip{ID: ChipID, Name: "fixture", NQubits: len(qubits)}, qubits, res, nil)
	if err != nil {
		tb.Fatalf("quantum system: %v", err)
	}
	a, err := topology.NewBox("A", "box a", topology.BoxTypeQuEL1A, "10.1.0.1", "adapter-a")
	if err != nil {
		tb.Fatalf("box a: %v", err)
	}
	b, err := topology.NewBox("B", "box b", topology.BoxTypeQuEL1B, "10.1.0.2", "adapter-b")
	if err != nil {
		tb.Fatalf("box b: %v", err)
	}
	cs, err := topology.NewControlSystem([]*topology.Box{a, b}, "")
	if err != nil {
		tb.Fatalf("control system: %v", err)
	}
	p := func(box string, n int) core.PortRef { return core.PortRef{Box: box, Number: n} }
	wiring, err := core.NewWiringInfo([]core.MuxWiring{
		{Mux: 0, Ctrl: []core.PortRef{p("A", 2), p("A", 4), p("A", 9), p("A", 11)}, ReadOut: p("A", 1), ReadIn: p("A", 0)},
		{Mux: 1, Ctrl: []core.PortRef{p("B", 2), p("B", 1), p("B", 4), p("B", 9)}, ReadOut: p("A", 8), ReadIn: p("A", 7)},
	})
	if err != nil {
		tb.Fatalf("wiring: %v", err)
	}
	sys, err := core.NewExperimentSystem(qs, cs, wiring, core.ControlParams{}, opts...)
	if err != nil {
		tb.Fatalf("experiment system: %v", err)
	}
	return sys
}

// NewAllocatedSystem returns NewSystem after a successful allocation pass.
func NewAllocatedSystem(tb testing.TB) *core.ExperimentSystem {
	tb.Helper()
	sys := NewSystem(tb)
	if err := sys.AllocateFrequencies(); err != nil {
		tb.Fatalf("allocate: %v", err)
	}
	return sys
}
