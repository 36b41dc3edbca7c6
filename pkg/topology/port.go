package topology

import "fmt"

// Port is a physical port of a box. Implementations are *GenPort, *CapPort and
// *NAPort; the set is closed.
type Port interface {
	PortID() string
	BoxID() string
	Number() int
	Type() PortType
	isPort()
}

// PortBase holds the fields every port variant shares.
type PortBase struct {
	ID       string   `json:"id"`
	Box      string   `json:"box_id"`
	Num      int      `json:"number"`
	PortType PortType `json:"type"`
}

// PortID returns the port identifier, e.g. "Q73A.CTRL0".
func (p PortBase) PortID() string { return p.ID }

// BoxID returns the owning box identifier.
func (p PortBase) BoxID() string { return p.Box }

// Number returns the physical port number on the box.
func (p PortBase) Number() int { return p.Num }

// Type returns the port type.
func (p PortBase) Type() PortType { return p.PortType }

// GenPort is a generator (output) port.
type GenPort struct {
	PortBase
	Sideband         Sideband      `json:"sideband"`
	LOFreq           int64         `json:"lo_freq"`
	CNCOFreq         int64         `json:"cnco_freq"`
	VATT             int           `json:"vatt"`
	FullscaleCurrent int           `json:"fullscale_current"`
	RFSwitch         string        `json:"rfswitch"`
	Channels         []*GenChannel `json:"channels"`
}

func (*GenPort) isPort() {}

// CapPort is a capture (input) port.
type CapPort struct {
	PortBase
	LOFreq   int64         `json:"lo_freq"`
	CNCOFreq int64         `json:"cnco_freq"`
	RFSwitch string        `json:"rfswitch"`
	Channels []*CapChannel `json:"channels"`
}

func (*CapPort) isPort() {}

// NAPort is an unused port slot.
type NAPort struct {
	PortBase
}

func (*NAPort) isPort() {}

// GenChannel is one generator channel of a GenPort.
type GenChannel struct {
	ID       string `json:"id"`
	PortID   string `json:"port_id"`
	Number   int    `json:"number"`
	FNCOFreq int64  `json:"fnco_freq"`
	NWait    int    `json:"nwait"`
}

// CapChannel is one capture channel of a CapPort.
type CapChannel struct {
	ID       string `json:"id"`
	PortID   string `json:"port_id"`
	Number   int    `json:"number"`
	FNCOFreq int64  `json:"fnco_freq"`
	NDelay   int    `json:"ndelay"`
}

// BaseFrequency returns the realised frequency of a generator channel in Hz.
func (p *GenPort) BaseFrequency(ch *GenChannel) int64 {
	if p.Sideband == SidebandUpper {
		return p.LOFreq + p.CNCOFreq + ch.FNCOFreq
	}
	return p.LOFreq - p.CNCOFreq - ch.FNCOFreq
}

// BaseFrequency returns the realised frequency of a capture channel in Hz.
// Capture ports always demodulate on the upper sideband.
func (p *CapPort) BaseFrequency(ch *CapChannel) int64 {
	return p.LOFreq + p.CNCOFreq + ch.FNCOFreq
}

func portID(boxID string, t PortType, index int) string {
	switch t {
	case PortTypeNA:
		return fmt.Sprintf("%s.NA%d", boxID, index)
	case PortTypeReadIn:
		return fmt.Sprintf("%s.READ%d.IN", boxID, index)
	case PortTypeReadOut:
		return fmt.Sprintf("%s.READ%d.OUT", boxID, index)
	case PortTypeCtrl:
		return fmt.Sprintf("%s.CTRL%d", boxID, index)
	case PortTypePump:
		return fmt.Sprintf("%s.PUMP%d", boxID, index)
	case PortTypeMntrIn:
		return fmt.Sprintf("%s.MNTR%d.IN", boxID, index)
	case PortTypeMntrOut:
		return fmt.Sprintf("%s.MNTR%d.OUT", boxID, index)
	}
	return ""
}

// CreatePorts builds the ports of a box from the static table of its type.
// Port ids are indexed per port type in port-number order.
func CreatePorts(boxID string, boxType BoxType) ([]Port, error) {
	table, ok := portTables[boxType]
	if !ok {
		return nil, fmt.Errorf("unknown box type %q", boxType)
	}
	if err := validateTable(boxType, table); err != nil {
		return nil, err
	}
	index := make(map[PortType]int, 7)
	ports := make([]Port, 0, len(table))
	for number, spec := range table {
		id := portID(boxID, spec.Type, index[spec.Type])
		index[spec.Type]++
		base := PortBase{ID: id, Box: boxID, Num: number, PortType: spec.Type}
		switch spec.Type {
		case PortTypeNA:
			ports = append(ports, &NAPort{PortBase: base})
		case PortTypeReadIn, PortTypeMntrIn:
			port := &CapPort{
				PortBase: base,
				LOFreq:   DefaultLOFreq,
				CNCOFreq: DefaultCNCOFreq,
				RFSwitch: RFSwitchOpen,
			}
			for n := 0; n < spec.Channels; n++ {
				port.Channels = append(port.Channels, &CapChannel{
					ID:       fmt.Sprintf("%s%d", id, n),
					PortID:   id,
					Number:   n,
					FNCOFreq: DefaultFNCOFreq,
					NDelay:   DefaultNDelay,
				})
			}
			ports = append(ports, port)
		default:
			port := &GenPort{
				PortBase:         base,
				Sideband:         spec.Type.Sideband(),
				LOFreq:           DefaultLOFreq,
				CNCOFreq:         DefaultCNCOFreq,
				VATT:             DefaultVATT,
				FullscaleCurrent: DefaultFullscaleCurrent,
				RFSwitch:         RFSwitchPass,
			}
			for n := 0; n < spec.Channels; n++ {
				chID := fmt.Sprintf("%s%d", id, n)
				if spec.Type == PortTypeCtrl || spec.Type == PortTypePump {
					chID = fmt.Sprintf("%s.CH%d", id, n)
				}
				port.Channels = append(port.Channels, &GenChannel{
					ID:       chID,
					PortID:   id,
					Number:   n,
					FNCOFreq: DefaultFNCOFreq,
					NWait:    DefaultNWait,
				})
			}
			ports = append(ports, port)
		}
	}
	return ports, nil
}
