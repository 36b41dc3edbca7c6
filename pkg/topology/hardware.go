package topology

import "fmt"

// Hardware defaults applied to freshly created ports and channels.
const (
	DefaultLOFreq           int64 = 9_000_000_000
	DefaultCNCOFreq         int64 = 1_500_000_000
	DefaultFNCOFreq         int64 = 0
	DefaultVATT                   = 3072
	DefaultFullscaleCurrent       = 40527
	DefaultNDelay                 = 7
	DefaultNWait                  = 0

	// ClockMasterAddress is the default address of the clock master used for box synchronisation.
	ClockMasterAddress = "10.3.0.255"
)

// RF switch states.
const (
	RFSwitchPass  = "pass"
	RFSwitchBlock = "block"
	RFSwitchOpen  = "open"
	RFSwitchLoop  = "loop"
)

// BoxType enumerates the supported control box models.
type BoxType string

const (
	BoxTypeQuEL1A     BoxType = "quel1-a"
	BoxTypeQuEL1B     BoxType = "quel1-b"
	BoxTypeQubeRikenA BoxType = "qube-riken-a"
	BoxTypeQubeRikenB BoxType = "qube-riken-b"
	BoxTypeQubeOUA    BoxType = "qube-ou-a"
	BoxTypeQubeOUB    BoxType = "qube-ou-b"
)

// BoxTypes lists every supported box model in declaration order.
func BoxTypes() []BoxType {
	return []BoxType{
		BoxTypeQuEL1A,
		BoxTypeQuEL1B,
		BoxTypeQubeRikenA,
		BoxTypeQubeRikenB,
		BoxTypeQubeOUA,
		BoxTypeQubeOUB,
	}
}

// ParseBoxType converts a configuration string into a BoxType.
func ParseBoxType(s string) (BoxType, error) {
	t := BoxType(s)
	if _, ok := portTables[t]; !ok {
		return "", fmt.Errorf("unknown box type %q", s)
	}
	return t, nil
}

// PortType enumerates the physical role of a port.
type PortType string

const (
	PortTypeNA      PortType = "NA"
	PortTypeReadIn  PortType = "READ_IN"
	PortTypeReadOut PortType = "READ_OUT"
	PortTypeCtrl    PortType = "CTRL"
	PortTypePump    PortType = "PUMP"
	PortTypeMntrIn  PortType = "MNTR_IN"
	PortTypeMntrOut PortType = "MNTR_OUT"
)

// Direction reports "in" for capture ports, "out" for generator ports and ""
// for unused ports.
func (t PortType) Direction() string {
	switch t {
	case PortTypeReadIn, PortTypeMntrIn:
		return "in"
	case PortTypeReadOut, PortTypeCtrl, PortTypePump, PortTypeMntrOut:
		return "out"
	default:
		return ""
	}
}

// Sideband returns the mixing sideband of a generator port type.
func (t PortType) Sideband() Sideband {
	switch t {
	case PortTypeReadOut, PortTypeMntrOut:
		return SidebandUpper
	case PortTypeCtrl, PortTypePump:
		return SidebandLower
	default:
		return ""
	}
}

// Sideband selects whether the realised frequency is LO plus or minus the NCO offsets.
type Sideband string

const (
	SidebandUpper Sideband = "U"
	SidebandLower Sideband = "L"
)

// PortSpec is one row of a box port table.
type PortSpec struct {
	Type     PortType
	Channels int
}

// portTables maps every box type to its port-number ordered layout.
var portTables = map[BoxType][]PortSpec{
	BoxTypeQuEL1A: {
		{PortTypeReadIn, 4},
		{PortTypeReadOut, 1},
		{PortTypeCtrl, 3},
		{PortTypePump, 1},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
		{PortTypeReadIn, 4},
		{PortTypeReadOut, 1},
		{PortTypeCtrl, 3},
		{PortTypePump, 1},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
	},
	BoxTypeQuEL1B: {
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 1},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 1},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
	},
	BoxTypeQubeRikenA: {
		{PortTypeReadOut, 1},
		{PortTypeReadIn, 4},
		{PortTypePump, 1},
		{PortTypeMntrOut, 1},
		{PortTypeMntrIn, 4},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
		{PortTypePump, 1},
		{PortTypeReadIn, 4},
		{PortTypeReadOut, 1},
	},
	BoxTypeQubeRikenB: {
		{PortTypeCtrl, 1},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
		{PortTypeMntrOut, 1},
		{PortTypeMntrIn, 4},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeMntrIn, 4},
		{PortTypeMntrOut, 1},
		{PortTypeCtrl, 1},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
	},
	BoxTypeQubeOUA: {
		{PortTypeReadOut, 1},
		{PortTypeReadIn, 4},
		{PortTypePump, 1},
		{PortTypeNA, 0},
		{PortTypeNA, 0},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeNA, 0},
		{PortTypeNA, 0},
		{PortTypePump, 1},
		{PortTypeReadIn, 4},
		{PortTypeReadOut, 1},
	},
	BoxTypeQubeOUB: {
		{PortTypeCtrl, 1},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
		{PortTypeNA, 0},
		{PortTypeNA, 0},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeCtrl, 3},
		{PortTypeNA, 0},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
		{PortTypeNA, 0},
		{PortTypeCtrl, 1},
	},
}

func init() {
	for boxType, table := range portTables {
		if err := validateTable(boxType, table); err != nil {
			panic(err)
		}
	}
}

// validateTable checks the channel-count invariants of a port table.
func validateTable(boxType BoxType, table []PortSpec) error {
	for number, spec := range table {
		switch spec.Type {
		case PortTypeNA:
			if spec.Channels != 0 {
				return fmt.Errorf("box type %s port %d: NA port with %d channels", boxType, number, spec.Channels)
			}
		case PortTypeCtrl:
			if spec.Channels != 1 && spec.Channels != 3 {
				return fmt.Errorf("box type %s port %d: ctrl port with %d channels", boxType, number, spec.Channels)
			}
		case PortTypeReadIn, PortTypeReadOut, PortTypePump, PortTypeMntrIn, PortTypeMntrOut:
			if spec.Channels < 1 {
				return fmt.Errorf("box type %s port %d: %s port without channels", boxType, number, spec.Type)
			}
		default:
			return fmt.Errorf("box type %s port %d: unknown port type %q", boxType, number, spec.Type)
		}
	}
	return nil
}

// PortTable returns a copy of the port layout of a box type.
func PortTable(boxType BoxType) ([]PortSpec, error) {
	table, ok := portTables[boxType]
	if !ok {
		return nil, fmt.Errorf("unknown box type %q", boxType)
	}
	return append([]PortSpec(nil), table...), nil
}
