package topology

import (
	"fmt"
	"sort"
)

// Box is a control box with its generated ports.
type Box struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    BoxType `json:"type"`
	Address string  `json:"address"`
	Adapter string  `json:"adapter"`
	Ports   []Port  `json:"ports"`
}

// NewBox creates a box and its ports from the table of its type.
func NewBox(id, name string, boxType BoxType, address, adapter string) (*Box, error) {
	if id == "" {
		return nil, fmt.Errorf("box id required")
	}
	ports, err := CreatePorts(id, boxType)
	if err != nil {
		return nil, fmt.Errorf("box %s: %w", id, err)
	}
	return &Box{
		ID:      id,
		Name:    name,
		Type:    boxType,
		Address: address,
		Adapter: adapter,
		Ports:   ports,
	}, nil
}

// Port returns the port with the given physical number.
func (b *Box) Port(number int) (Port, bool) {
	if number < 0 || number >= len(b.Ports) {
		return nil, false
	}
	return b.Ports[number], true
}

// GenPorts returns the generator ports of the box in port-number order.
func (b *Box) GenPorts() []*GenPort {
	var out []*GenPort
	for _, p := range b.Ports {
		if gp, ok := p.(*GenPort); ok {
			out = append(out, gp)
		}
	}
	return out
}

// CapPorts returns the capture ports of the box in port-number order.
func (b *Box) CapPorts() []*CapPort {
	var out []*CapPort
	for _, p := range b.Ports {
		if cp, ok := p.(*CapPort); ok {
			out = append(out, cp)
		}
	}
	return out
}

// PortsOfType filters ports by type.
func (b *Box) PortsOfType(t PortType) []Port {
	var out []Port
	for _, p := range b.Ports {
		if p.Type() == t {
			out = append(out, p)
		}
	}
	return out
}

// ControlSystem is the set of boxes driving one chip.
type ControlSystem struct {
	clockMaster string
	boxes       []*Box
	byID        map[string]*Box
	ports       map[string]Port
}

// NewControlSystem indexes the boxes. An empty clockMaster selects ClockMasterAddress.
func NewControlSystem(boxes []*Box, clockMaster string) (*ControlSystem, error) {
	if clockMaster == "" {
		clockMaster = ClockMasterAddress
	}
	cs := &ControlSystem{
		clockMaster: clockMaster,
		byID:        make(map[string]*Box, len(boxes)),
		ports:       make(map[string]Port),
	}
	for _, b := range boxes {
		if b == nil {
			return nil, fmt.Errorf("nil box")
		}
		if _, dup := cs.byID[b.ID]; dup {
			return nil, fmt.Errorf("duplicate box %s", b.ID)
		}
		cs.byID[b.ID] = b
		cs.boxes = append(cs.boxes, b)
		for _, p := range b.Ports {
			cs.ports[p.PortID()] = p
		}
	}
	return cs, nil
}

// ClockMasterAddress returns the address of the clock master.
func (cs *ControlSystem) ClockMasterAddress() string { return cs.clockMaster }

// Boxes returns the boxes in registration order.
func (cs *ControlSystem) Boxes() []*Box { return append([]*Box(nil), cs.boxes...) }

// BoxIDs returns the sorted box identifiers.
func (cs *ControlSystem) BoxIDs() []string {
	ids := make([]string, 0, len(cs.byID))
	for id := range cs.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Box looks up a box by id.
func (cs *ControlSystem) Box(id string) (*Box, bool) {
	b, ok := cs.byID[id]
	return b, ok
}

// Port looks up a port by box id and port number.
func (cs *ControlSystem) Port(boxID string, number int) (Port, bool) {
	b, ok := cs.byID[boxID]
	if !ok {
		return nil, false
	}
	return b.Port(number)
}

// PortByID looks up a port by its identifier.
func (cs *ControlSystem) PortByID(id string) (Port, bool) {
	p, ok := cs.ports[id]
	return p, ok
}

type boxDocument struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    BoxType `json:"type"`
	Address string  `json:"address"`
	Adapter string  `json:"adapter"`
}

// Hash returns a content hash of the box definitions. Hardware values written
// by allocation are not part of the hash.
func (cs *ControlSystem) Hash() string {
	docs := make([]boxDocument, 0, len(cs.boxes))
	for _, b := range cs.boxes {
		docs = append(docs, boxDocument{ID: b.ID, Name: b.Name, Type: b.Type, Address: b.Address, Adapter: b.Adapter})
	}
	return contentHash(struct {
		ClockMaster string        `json:"clock_master"`
		Boxes       []boxDocument `json:"boxes"`
	}{cs.clockMaster, docs})
}
