package core

import (
	"context"
	"testing"

	"qubecore/pkg/topology"
)

var (
	testQubitFreqs = []float64{7.65135, 7.9, 8.1, 7.4, 7.2, 7.7, 7.5, 7.8}
	testResFreqs   = []float64{9.902, 10.1085, 10.173, 10.0315, 10.3, 10.35, 10.4, 10.45}
)

func newTestQuantumSystem(t *testing.T) *topology.QuantumSystem {
	t.Helper()
	var qubits []topology.Qubit
	var res []topology.Resonator
	for i, f := range testQubitFreqs {
		label := QubitLabel(i)
		qubits = append(qubits, topology.Qubit{Label: label, Index: i, Frequency: f, Anharmonicity: -0.356})
		res = append(res, topology.Resonator{Label: "R" + label, Frequency: testResFreqs[i], Qubit: label})
	}
	qs, err := topology.NewQuantumSystem(topology.Chip{ID: "8Q", Name: "test chip", NQubits: len(qubits)}, qubits, res, nil)
	if err != nil {
		t.Fatalf("quantum system: %v", err)
	}
	return qs
}

func newTestControlSystem(t *testing.T) *topology.ControlSystem {
	t.Helper()
	a, err := topology.NewBox("A", "box a", topology.BoxTypeQuEL1A, "10.1.0.1", "adapter-a")
	if err != nil {
		t.Fatalf("box a: %v", err)
	}
	b, err := topology.NewBox("B", "box b", topology.BoxTypeQuEL1B, "10.1.0.2", "adapter-b")
	if err != nil {
		t.Fatalf("box b: %v", err)
	}
	cs, err := topology.NewControlSystem([]*topology.Box{a, b}, "")
	if err != nil {
		t.Fatalf("control system: %v", err)
	}
	return cs
}

func ref(box string, n int) PortRef { return PortRef{Box: box, Number: n} }

func newTestWiring(t *testing.T) WiringInfo {
	t.Helper()
	w, err := NewWiringInfo([]MuxWiring{
		{Mux: 0, Ctrl: []PortRef{ref("A", 2), ref("A", 4), ref("A", 9), ref("A", 11)}, ReadOut: ref("A", 1), ReadIn: ref("A", 0)},
		{Mux: 1, Ctrl: []PortRef{ref("B", 2), ref("B", 1), ref("B", 4), ref("B", 9)}, ReadOut: ref("A", 8), ReadIn: ref("A", 7)},
	})
	if err != nil {
		t.Fatalf("wiring: %v", err)
	}
	return w
}

func newTestSystem(t *testing.T, opts ...SystemOption) *ExperimentSystem {
	t.Helper()
	sys, err := NewExperimentSystem(newTestQuantumSystem(t), newTestControlSystem(t), newTestWiring(t), ControlParams{
		ReadoutVATT:  map[int]int{0: 1800},
		ControlVATT:  map[string]int{"Q00": 2500},
		CaptureDelay: map[int]int{1: 9},
	}, opts...)
	if err != nil {
		t.Fatalf("experiment system: %v", err)
	}
	return sys
}

type memorySettingsStore struct {
	data  map[string]SystemSettings
	saves int
	err   error
}

func newMemorySettingsStore() *memorySettingsStore {
	return &memorySettingsStore{data: make(map[string]SystemSettings)}
}

func (m *memorySettingsStore) LoadSettings(_ context.Context, chipID string) (SystemSettings, error) {
	if m.err != nil {
		return SystemSettings{}, m.err
	}
	s, ok := m.data[chipID]
	if !ok {
		return SystemSettings{}, ErrNotFound{Entity: EntitySettings, ID: chipID}
	}
	return s, nil
}

func (m *memorySettingsStore) SaveSettings(_ context.Context, s SystemSettings) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.data[s.ChipID] = s
	return nil
}

func (m *memorySettingsStore) ListSettings(context.Context) ([]string, error) {
	var out []string
	for id := range m.data {
		out = append(out, id)
	}
	return out, m.err
}

func mustTarget(t *testing.T, sys *ExperimentSystem, label string) topology.Target {
	t.Helper()
	tg, err := sys.Target(label)
	if err != nil {
		t.Fatalf("target %s: %v", label, err)
	}
	return tg
}
