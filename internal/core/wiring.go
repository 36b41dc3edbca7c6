package core

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRef addresses a physical port by box id and port number.
type PortRef struct {
	Box    string `json:"box"`
	Number int    `json:"number"`
}

func (r PortRef) String() string { return fmt.Sprintf("%s-%d", r.Box, r.Number) }

// ParsePortRef parses a "BOX-port" specifier such as "Q73A-11".
func ParsePortRef(spec string) (PortRef, error) {
	i := strings.LastIndex(spec, "-")
	if i <= 0 || i == len(spec)-1 {
		return PortRef{}, configErrorf(spec, "port specifier must be BOX-number")
	}
	n, err := strconv.Atoi(spec[i+1:])
	if err != nil || n < 0 {
		return PortRef{}, configErrorf(spec, "invalid port number %q", spec[i+1:])
	}
	return PortRef{Box: spec[:i], Number: n}, nil
}

// CtrlWiring binds a qubit to its control port.
type CtrlWiring struct {
	Qubit string  `json:"qubit"`
	Port  PortRef `json:"port"`
}

// ReadOutWiring binds a readout mux to its drive port.
type ReadOutWiring struct {
	Mux  int     `json:"mux"`
	Port PortRef `json:"port"`
}

// ReadInWiring binds a readout mux to its capture port.
type ReadInWiring struct {
	Mux  int     `json:"mux"`
	Port PortRef `json:"port"`
}

// WiringInfo is the cabling between chip and boxes.
type WiringInfo struct {
	Ctrl    []CtrlWiring    `json:"ctrl"`
	ReadOut []ReadOutWiring `json:"read_out"`
	ReadIn  []ReadInWiring  `json:"read_in"`
}

// MuxWiring is one wiring row as found in configuration documents: a mux, the
// control ports of its qubits in positional order, and its readout port pair.
type MuxWiring struct {
	Mux     int
	Ctrl    []PortRef
	ReadOut PortRef
	ReadIn  PortRef
}

// QubitLabel formats the default label of the qubit with the given index.
func QubitLabel(index int) string { return fmt.Sprintf("Q%02d", index) }

// NewWiringInfo expands mux rows into WiringInfo. Control ports are assigned to
// the qubits of the mux in positional order.
func NewWiringInfo(rows []MuxWiring) (WiringInfo, error) {
	var w WiringInfo
	for _, row := range rows {
		if len(row.Ctrl) > 4 {
			return WiringInfo{}, configErrorf(fmt.Sprintf("mux %d", row.Mux), "%d control ports for 4 qubits", len(row.Ctrl))
		}
		for i, ref := range row.Ctrl {
			w.Ctrl = append(w.Ctrl, CtrlWiring{Qubit: QubitLabel(4*row.Mux + i), Port: ref})
		}
		w.ReadOut = append(w.ReadOut, ReadOutWiring{Mux: row.Mux, Port: row.ReadOut})
		w.ReadIn = append(w.ReadIn, ReadInWiring{Mux: row.Mux, Port: row.ReadIn})
	}
	return w, nil
}
