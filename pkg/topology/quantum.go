// Package topology defines the quantum-chip and control-hardware model shared by
// the allocation engine: chips, qubits, resonators, readout multiplexers, boxes,
// ports, channels, and the logical targets derived from them.
package topology

import (
	"fmt"
	"sort"
)

// QubitsPerMux is the number of qubit/resonator pairs sharing one readout port pair.
const QubitsPerMux = 4

// Chip identifies a quantum chip.
type Chip struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	NQubits int    `json:"n_qubits"`
}

// Qubit describes a transmon qubit. Frequencies are in GHz; a non-positive
// frequency means the value is not defined.
type Qubit struct {
	Label         string  `json:"label"`
	Index         int     `json:"index"`
	Frequency     float64 `json:"frequency"`
	Anharmonicity float64 `json:"anharmonicity"`
}

// EFFrequency returns the e-f transition frequency, or 0 when the ge frequency is undefined.
func (q Qubit) EFFrequency() float64 {
	if q.Frequency <= 0 {
		return 0
	}
	return q.Frequency + q.Anharmonicity
}

// MuxIndex returns the readout multiplexer the qubit belongs to.
func (q Qubit) MuxIndex() int {
	return q.Index / QubitsPerMux
}

// Resonator is the readout resonator attached to a qubit.
type Resonator struct {
	Label     string  `json:"label"`
	Frequency float64 `json:"frequency"`
	Qubit     string  `json:"qubit"`
}

// Mux groups the resonators read out through one port pair.
type Mux struct {
	Index      int         `json:"index"`
	Resonators []Resonator `json:"resonators"`
}

// Qubits returns the qubit labels of the mux in positional order.
func (m Mux) Qubits() []string {
	out := make([]string, len(m.Resonators))
	for i, r := range m.Resonators {
		out[i] = r.Qubit
	}
	return out
}

// Frequencies returns the resonator frequencies in GHz in positional order.
func (m Mux) Frequencies() []float64 {
	out := make([]float64, len(m.Resonators))
	for i, r := range m.Resonators {
		out[i] = r.Frequency
	}
	return out
}

// Edge is an undirected coupling between two qubits.
type Edge struct {
	A string `json:"a"`
	B string `json:"b"`
}

// muxEdges lists, for each position in a mux, the positions it couples to.
var muxEdges = [QubitsPerMux][2]int{
	{1, 2},
	{3, 0},
	{0, 3},
	{2, 1},
}

// QuantumSystem is the immutable description of a chip and its qubits.
type QuantumSystem struct {
	chip       Chip
	qubits     []Qubit
	resonators []Resonator
	edges      []Edge
	qubitIdx   map[string]int
	resIdx     map[string]int
	neighbors  map[string][]string
}

// NewQuantumSystem validates and indexes the chip description. When edges is
// empty the default in-mux square coupling is used.
func NewQuantumSystem(chip Chip, qubits []Qubit, resonators []Resonator, edges []Edge) (*QuantumSystem, error) {
	qs := &QuantumSystem{
		chip:       chip,
		qubits:     append([]Qubit(nil), qubits...),
		resonators: append([]Resonator(nil), resonators...),
		qubitIdx:   make(map[string]int, len(qubits)),
		resIdx:     make(map[string]int, len(resonators)),
		neighbors:  make(map[string][]string, len(qubits)),
	}
	for i, q := range qs.qubits {
		if q.Label == "" {
			return nil, fmt.Errorf("qubit %d has empty label", i)
		}
		if _, dup := qs.qubitIdx[q.Label]; dup {
			return nil, fmt.Errorf("duplicate qubit %s", q.Label)
		}
		if q.Index != i {
			return nil, fmt.Errorf("qubit %s has index %d, want %d", q.Label, q.Index, i)
		}
		qs.qubitIdx[q.Label] = i
	}
	for i, r := range qs.resonators {
		if _, ok := qs.qubitIdx[r.Qubit]; !ok {
			return nil, fmt.Errorf("resonator %s references unknown qubit %s", r.Label, r.Qubit)
		}
		if _, dup := qs.resIdx[r.Label]; dup {
			return nil, fmt.Errorf("duplicate resonator %s", r.Label)
		}
		qs.resIdx[r.Label] = i
	}
	if len(edges) == 0 {
		edges = defaultEdges(qs.qubits)
	}
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if _, ok := qs.qubitIdx[e.A]; !ok {
			return nil, fmt.Errorf("edge references unknown qubit %s", e.A)
		}
		if _, ok := qs.qubitIdx[e.B]; !ok {
			return nil, fmt.Errorf("edge references unknown qubit %s", e.B)
		}
		if e.A == e.B {
			return nil, fmt.Errorf("self edge on qubit %s", e.A)
		}
		key := e
		if key.B < key.A {
			key = Edge{A: e.B, B: e.A}
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		qs.edges = append(qs.edges, key)
		qs.neighbors[key.A] = append(qs.neighbors[key.A], key.B)
		qs.neighbors[key.B] = append(qs.neighbors[key.B], key.A)
	}
	for label := range qs.neighbors {
		sort.Strings(qs.neighbors[label])
	}
	return qs, nil
}

func defaultEdges(qubits []Qubit) []Edge {
	var edges []Edge
	for _, q := range qubits {
		base := q.MuxIndex() * QubitsPerMux
		for _, pos := range muxEdges[q.Index%QubitsPerMux] {
			other := base + pos
			if other >= len(qubits) {
				continue
			}
			edges = append(edges, Edge{A: q.Label, B: qubits[other].Label})
		}
	}
	return edges
}

// Chip returns the chip description.
func (qs *QuantumSystem) Chip() Chip { return qs.chip }

// Qubits returns a copy of the qubits in index order.
func (qs *QuantumSystem) Qubits() []Qubit { return append([]Qubit(nil), qs.qubits...) }

// Resonators returns a copy of the resonators.
func (qs *QuantumSystem) Resonators() []Resonator {
	return append([]Resonator(nil), qs.resonators...)
}

// Edges returns the normalised coupling edges.
func (qs *QuantumSystem) Edges() []Edge { return append([]Edge(nil), qs.edges...) }

// Qubit looks up a qubit by label.
func (qs *QuantumSystem) Qubit(label string) (Qubit, bool) {
	i, ok := qs.qubitIdx[label]
	if !ok {
		return Qubit{}, false
	}
	return qs.qubits[i], true
}

// Resonator looks up a resonator by label.
func (qs *QuantumSystem) Resonator(label string) (Resonator, bool) {
	i, ok := qs.resIdx[label]
	if !ok {
		return Resonator{}, false
	}
	return qs.resonators[i], true
}

// ResonatorOf returns the resonator attached to the qubit.
func (qs *QuantumSystem) ResonatorOf(qubit string) (Resonator, bool) {
	for _, r := range qs.resonators {
		if r.Qubit == qubit {
			return r, true
		}
	}
	return Resonator{}, false
}

// NMuxes returns the number of readout multiplexers on the chip.
func (qs *QuantumSystem) NMuxes() int {
	return (len(qs.qubits) + QubitsPerMux - 1) / QubitsPerMux
}

// Mux returns the multiplexer with the given index. Resonators are ordered by
// the positional index of their qubits.
func (qs *QuantumSystem) Mux(index int) (Mux, bool) {
	if index < 0 || index >= qs.NMuxes() {
		return Mux{}, false
	}
	mux := Mux{Index: index}
	for pos := 0; pos < QubitsPerMux; pos++ {
		qi := index*QubitsPerMux + pos
		if qi >= len(qs.qubits) {
			break
		}
		if r, ok := qs.ResonatorOf(qs.qubits[qi].Label); ok {
			mux.Resonators = append(mux.Resonators, r)
		}
	}
	return mux, true
}

// Muxes returns every multiplexer in index order.
func (qs *QuantumSystem) Muxes() []Mux {
	out := make([]Mux, 0, qs.NMuxes())
	for i := 0; i < qs.NMuxes(); i++ {
		m, _ := qs.Mux(i)
		out = append(out, m)
	}
	return out
}

// SpectatorQubits returns the qubits coupled to label, sorted by label.
func (qs *QuantumSystem) SpectatorQubits(label string) []Qubit {
	var out []Qubit
	for _, n := range qs.neighbors[label] {
		out = append(out, qs.qubits[qs.qubitIdx[n]])
	}
	return out
}

// quantumDocument is the hashed representation of a QuantumSystem.
type quantumDocument struct {
	Chip       Chip        `json:"chip"`
	Qubits     []Qubit     `json:"qubits"`
	Resonators []Resonator `json:"resonators"`
	Edges      []Edge      `json:"edges"`
}

// Hash returns a content hash of the chip description.
func (qs *QuantumSystem) Hash() string {
	return contentHash(quantumDocument{
		Chip:       qs.chip,
		Qubits:     qs.qubits,
		Resonators: qs.resonators,
		Edges:      qs.edges,
	})
}
