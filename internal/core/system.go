package core

import (
	"fmt"
	"sort"
	"sync"

	"qubecore/internal/allocator"
	"qubecore/pkg/topology"
)

type genBinding struct {
	port    *topology.GenPort
	channel *topology.GenChannel
}

type capBinding struct {
	port    *topology.CapPort
	channel *topology.CapChannel
}

// QubitPorts is the control port and readout port pair serving one qubit.
type QubitPorts struct {
	Qubit   string
	Mux     int
	Ctrl    *topology.GenPort
	ReadOut *topology.GenPort
	ReadIn  *topology.CapPort
}

// SystemOption customises an ExperimentSystem.
type SystemOption func(*ExperimentSystem)

// WithReadoutGrid overrides the readout search grid.
func WithReadoutGrid(grid allocator.ReadoutGrid) SystemOption {
	return func(s *ExperimentSystem) { s.readoutGrid = grid }
}

// WithControlGrid overrides the control search grid.
func WithControlGrid(grid allocator.ControlGrid) SystemOption {
	return func(s *ExperimentSystem) { s.controlGrid = grid }
}

// ExperimentSystem joins a chip, its control boxes and the wiring between them.
//
// Topology and the target to channel maps are fixed at construction. Hardware
// values on ports and channels change only through AllocateFrequencies and
// ApplySettings; target frequencies change only through scoped overrides.
type ExperimentSystem struct {
	qs     *topology.QuantumSystem
	cs     *topology.ControlSystem
	wiring WiringInfo
	params ControlParams
	state  SystemState

	readoutGrid allocator.ReadoutGrid
	controlGrid allocator.ControlGrid

	targets []topology.Target
	byKey   map[topology.TargetKey]int
	byLabel map[string]topology.TargetKey

	genMap map[topology.TargetKey]genBinding
	capMap map[topology.TargetKey]capBinding

	ctrlByQubit    map[string]*topology.GenPort
	qubitByCtrl    map[string]string
	readOutByMux   map[int]*topology.GenPort
	readInByMux    map[int]*topology.CapPort
	muxByReadPort  map[string]int
	sortedMuxes    []int
	sortedCtrlKeys []string

	mu        sync.RWMutex
	overrides map[topology.TargetKey]float64
}

// NewExperimentSystem validates the wiring against both systems and builds the
// target to channel maps. It does not allocate frequencies.
func NewExperimentSystem(qs *topology.QuantumSystem, cs *topology.ControlSystem, wiring WiringInfo, params ControlParams, opts ...SystemOption) (*ExperimentSystem, error) {
	if qs == nil || cs == nil {
		return nil, configErrorf("experiment system", "quantum and control systems are required")
	}
	s := &ExperimentSystem{
		qs:            qs,
		cs:            cs,
		wiring:        wiring,
		params:        params,
		readoutGrid:   allocator.DefaultReadoutGrid(),
		controlGrid:   allocator.DefaultControlGrid(),
		byKey:         make(map[topology.TargetKey]int),
		byLabel:       make(map[string]topology.TargetKey),
		genMap:        make(map[topology.TargetKey]genBinding),
		capMap:        make(map[topology.TargetKey]capBinding),
		ctrlByQubit:   make(map[string]*topology.GenPort),
		qubitByCtrl:   make(map[string]string),
		readOutByMux:  make(map[int]*topology.GenPort),
		readInByMux:   make(map[int]*topology.CapPort),
		muxByReadPort: make(map[string]int),
		overrides:     make(map[topology.TargetKey]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = newSystemState(qs, cs, wiring, params)
	s.buildTargets()
	if err := s.resolveWiring(); err != nil {
		return nil, err
	}
	if err := s.bindChannels(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ExperimentSystem) addTarget(t topology.Target) {
	s.byKey[t.Key()] = len(s.targets)
	s.byLabel[t.Label] = t.Key()
	s.targets = append(s.targets, t)
}

func (s *ExperimentSystem) buildTargets() {
	for _, q := range s.qs.Qubits() {
		s.addTarget(topology.NewGETarget(q))
		s.addTarget(topology.NewEFTarget(q))
		s.addTarget(topology.NewCRTarget(q, s.qs.SpectatorQubits(q.Label)))
	}
	for _, r := range s.qs.Resonators() {
		s.addTarget(topology.NewReadTarget(r))
	}
}

func (s *ExperimentSystem) lookupPort(ref PortRef) (topology.Port, error) {
	if _, ok := s.cs.Box(ref.Box); !ok {
		return nil, &ConfigError{Subject: ref.String(), Reason: "unknown box", Err: ErrNotFound{Entity: EntityBox, ID: ref.Box}}
	}
	p, ok := s.cs.Port(ref.Box, ref.Number)
	if !ok {
		return nil, &ConfigError{Subject: ref.String(), Reason: "unknown port", Err: ErrNotFound{Entity: EntityPort, ID: ref.String()}}
	}
	return p, nil
}

func (s *ExperimentSystem) resolveWiring() error {
	used := make(map[string]string)
	claim := func(p topology.Port, owner string) error {
		if prev, ok := used[p.PortID()]; ok {
			return configErrorf(p.PortID(), "wired to both %s and %s", prev, owner)
		}
		used[p.PortID()] = owner
		return nil
	}

	for _, w := range s.wiring.Ctrl {
		if _, ok := s.qs.Qubit(w.Qubit); !ok {
			return &ConfigError{Subject: w.Port.String(), Reason: "unknown qubit", Err: ErrNotFound{Entity: EntityQubit, ID: w.Qubit}}
		}
		p, err := s.lookupPort(w.Port)
		if err != nil {
			return err
		}
		gp, ok := p.(*topology.GenPort)
		if !ok || gp.Type() != topology.PortTypeCtrl {
			return configErrorf(p.PortID(), "qubit %s needs a CTRL port, got %s", w.Qubit, p.Type())
		}
		if n := len(gp.Channels); n != 1 && n != 3 {
			return &ConfigError{Subject: gp.PortID(), Reason: fmt.Sprintf("%d channels", n), Err: allocator.ErrUnsupportedChannelCount}
		}
		if _, dup := s.ctrlByQubit[w.Qubit]; dup {
			return configErrorf(w.Qubit, "more than one control port")
		}
		if err := claim(gp, w.Qubit); err != nil {
			return err
		}
		s.ctrlByQubit[w.Qubit] = gp
		s.qubitByCtrl[gp.PortID()] = w.Qubit
	}

	nMux := s.qs.NMuxes()
	for _, w := range s.wiring.ReadOut {
		if w.Mux < 0 || w.Mux >= nMux {
			return &ConfigError{Subject: w.Port.String(), Reason: "unknown mux", Err: ErrNotFound{Entity: EntityMux, ID: fmt.Sprint(w.Mux)}}
		}
		p, err := s.lookupPort(w.Port)
		if err != nil {
			return err
		}
		gp, ok := p.(*topology.GenPort)
		if !ok || gp.Type() != topology.PortTypeReadOut {
			return configErrorf(p.PortID(), "mux %d needs a READ_OUT port, got %s", w.Mux, p.Type())
		}
		if _, dup := s.readOutByMux[w.Mux]; dup {
			return configErrorf(fmt.Sprintf("mux %d", w.Mux), "more than one read-out port")
		}
		if err := claim(gp, fmt.Sprintf("mux %d", w.Mux)); err != nil {
			return err
		}
		s.readOutByMux[w.Mux] = gp
		s.muxByReadPort[gp.PortID()] = w.Mux
	}
	for _, w := range s.wiring.ReadIn {
		if w.Mux < 0 || w.Mux >= nMux {
			return &ConfigError{Subject: w.Port.String(), Reason: "unknown mux", Err: ErrNotFound{Entity: EntityMux, ID: fmt.Sprint(w.Mux)}}
		}
		p, err := s.lookupPort(w.Port)
		if err != nil {
			return err
		}
		cp, ok := p.(*topology.CapPort)
		if !ok || cp.Type() != topology.PortTypeReadIn {
			return configErrorf(p.PortID(), "mux %d needs a READ_IN port, got %s", w.Mux, p.Type())
		}
		if _, dup := s.readInByMux[w.Mux]; dup {
			return configErrorf(fmt.Sprintf("mux %d", w.Mux), "more than one read-in port")
		}
		if err := claim(cp, fmt.Sprintf("mux %d", w.Mux)); err != nil {
			return err
		}
		s.readInByMux[w.Mux] = cp
		s.muxByReadPort[cp.PortID()] = w.Mux
	}
	for mux := range s.readOutByMux {
		if _, ok := s.readInByMux[mux]; !ok {
			return configErrorf(fmt.Sprintf("mux %d", mux), "read-out port without read-in port")
		}
		s.sortedMuxes = append(s.sortedMuxes, mux)
	}
	for mux := range s.readInByMux {
		if _, ok := s.readOutByMux[mux]; !ok {
			return configErrorf(fmt.Sprintf("mux %d", mux), "read-in port without read-out port")
		}
	}
	sort.Ints(s.sortedMuxes)
	for q := range s.ctrlByQubit {
		s.sortedCtrlKeys = append(s.sortedCtrlKeys, q)
	}
	sort.Strings(s.sortedCtrlKeys)
	return nil
}

// bindChannels walks the boxes in order and binds targets to channels.
func (s *ExperimentSystem) bindChannels() error {
	for _, box := range s.cs.Boxes() {
		for _, port := range box.Ports {
			switch p := port.(type) {
			case *topology.GenPort:
				switch p.Type() {
				case topology.PortTypeCtrl:
					qubit, ok := s.qubitByCtrl[p.PortID()]
					if !ok {
						continue
					}
					kinds := []topology.TargetType{topology.TargetCtrlGE, topology.TargetCtrlEF, topology.TargetCtrlCR}
					for i, ch := range p.Channels {
						if i >= len(kinds) {
							break
						}
						s.genMap[topology.TargetKey{Type: kinds[i], Qubit: qubit}] = genBinding{port: p, channel: ch}
					}
				case topology.PortTypeReadOut:
					mux, ok := s.muxByReadPort[p.PortID()]
					if !ok {
						continue
					}
					m, _ := s.qs.Mux(mux)
					for _, r := range m.Resonators {
						s.genMap[topology.TargetKey{Type: topology.TargetRead, Qubit: r.Qubit}] = genBinding{port: p, channel: p.Channels[0]}
					}
				}
			case *topology.CapPort:
				if p.Type() != topology.PortTypeReadIn {
					continue
				}
				mux, ok := s.muxByReadPort[p.PortID()]
				if !ok {
					continue
				}
				m, _ := s.qs.Mux(mux)
				if len(m.Resonators) > len(p.Channels) {
					return configErrorf(p.PortID(), "%d resonators for %d capture channels", len(m.Resonators), len(p.Channels))
				}
				for i, r := range m.Resonators {
					s.capMap[topology.TargetKey{Type: topology.TargetRead, Qubit: r.Qubit}] = capBinding{port: p, channel: p.Channels[i]}
				}
			}
		}
	}
	return nil
}

// QuantumSystem returns the chip description.
func (s *ExperimentSystem) QuantumSystem() *topology.QuantumSystem { return s.qs }

// ControlSystem returns the boxes.
func (s *ExperimentSystem) ControlSystem() *topology.ControlSystem { return s.cs }

// Wiring returns the wiring the system was built from.
func (s *ExperimentSystem) Wiring() WiringInfo { return s.wiring }

// Params returns the control parameters.
func (s *ExperimentSystem) Params() ControlParams { return s.params }

// State returns the input fingerprint.
func (s *ExperimentSystem) State() SystemState { return s.state }

// ChipID returns the id of the chip.
func (s *ExperimentSystem) ChipID() string { return s.qs.Chip().ID }

func (s *ExperimentSystem) resolve(label string) (topology.TargetKey, error) {
	key, ok := s.byLabel[label]
	if !ok {
		return topology.TargetKey{}, &TargetNotFoundError{Label: label}
	}
	return key, nil
}

func (s *ExperimentSystem) effective(key topology.TargetKey) topology.Target {
	t := s.targets[s.byKey[key]]
	if f, ok := s.overrides[key]; ok {
		t.Frequency = f
	}
	return t
}

// Target resolves a label. The frequency reflects any active override.
func (s *ExperimentSystem) Target(label string) (topology.Target, error) {
	key, err := s.resolve(label)
	if err != nil {
		return topology.Target{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effective(key), nil
}

// TargetByKey resolves a struct key.
func (s *ExperimentSystem) TargetByKey(key topology.TargetKey) (topology.Target, error) {
	if _, ok := s.byKey[key]; !ok {
		return topology.Target{}, &TargetNotFoundError{Label: key.Label()}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effective(key), nil
}

// NominalTarget returns the target as derived from the chip, ignoring overrides.
func (s *ExperimentSystem) NominalTarget(label string) (topology.Target, error) {
	key, err := s.resolve(label)
	if err != nil {
		return topology.Target{}, err
	}
	return s.targets[s.byKey[key]], nil
}

// Targets returns every derived target in construction order.
func (s *ExperimentSystem) Targets() []topology.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]topology.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, s.effective(t.Key()))
	}
	return out
}

// GenChannel returns the generator port and channel a target is bound to.
func (s *ExperimentSystem) GenChannel(label string) (*topology.GenPort, *topology.GenChannel, error) {
	key, err := s.resolve(label)
	if err != nil {
		return nil, nil, err
	}
	b, ok := s.genMap[key]
	if !ok {
		return nil, nil, &TargetNotFoundError{Label: label}
	}
	return b.port, b.channel, nil
}

// CapChannel returns the capture port and channel a readout target is bound to.
func (s *ExperimentSystem) CapChannel(label string) (*topology.CapPort, *topology.CapChannel, error) {
	key, err := s.resolve(label)
	if err != nil {
		return nil, nil, err
	}
	b, ok := s.capMap[key]
	if !ok {
		return nil, nil, &TargetNotFoundError{Label: label}
	}
	return b.port, b.channel, nil
}

// BaseFrequency returns the frequency in GHz realised by the hardware values
// of the generator channel the target is bound to.
func (s *ExperimentSystem) BaseFrequency(label string) (float64, error) {
	port, ch, err := s.GenChannel(label)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(port.BaseFrequency(ch)) * 1e-9, nil
}

// DiffFrequency returns the requested minus the realised frequency in GHz.
func (s *ExperimentSystem) DiffFrequency(label string) (float64, error) {
	base, err := s.BaseFrequency(label)
	if err != nil {
		return 0, err
	}
	t, err := s.Target(label)
	if err != nil {
		return 0, err
	}
	return t.Frequency - base, nil
}

// QubitByControlPort returns the qubit wired to a control port.
func (s *ExperimentSystem) QubitByControlPort(portID string) (topology.Qubit, error) {
	label, ok := s.qubitByCtrl[portID]
	if !ok {
		return topology.Qubit{}, ErrNotFound{Entity: EntityPort, ID: portID}
	}
	q, _ := s.qs.Qubit(label)
	return q, nil
}

// MuxByReadoutPort returns the mux wired to a read-out or read-in port.
func (s *ExperimentSystem) MuxByReadoutPort(portID string) (topology.Mux, error) {
	idx, ok := s.muxByReadPort[portID]
	if !ok {
		return topology.Mux{}, ErrNotFound{Entity: EntityPort, ID: portID}
	}
	m, _ := s.qs.Mux(idx)
	return m, nil
}

// ReadoutPair returns the read-out and read-in ports of a mux.
func (s *ExperimentSystem) ReadoutPair(mux int) (*topology.GenPort, *topology.CapPort, error) {
	out, ok := s.readOutByMux[mux]
	if !ok {
		return nil, nil, ErrNotFound{Entity: EntityMux, ID: fmt.Sprint(mux)}
	}
	return out, s.readInByMux[mux], nil
}

// QubitPorts returns the complete port set of a qubit. A qubit without a
// control port or without a wired mux has no port set.
func (s *ExperimentSystem) QubitPorts(qubit string) (QubitPorts, error) {
	q, ok := s.qs.Qubit(qubit)
	if !ok {
		return QubitPorts{}, ErrNotFound{Entity: EntityQubit, ID: qubit}
	}
	ctrl, ok := s.ctrlByQubit[qubit]
	if !ok {
		return QubitPorts{}, configErrorf(qubit, "no control port wired")
	}
	out, in, err := s.ReadoutPair(q.MuxIndex())
	if err != nil {
		return QubitPorts{}, &ConfigError{Subject: qubit, Reason: "no readout ports wired", Err: err}
	}
	return QubitPorts{Qubit: qubit, Mux: q.MuxIndex(), Ctrl: ctrl, ReadOut: out, ReadIn: in}, nil
}

// OverrideTargetFrequencies replaces target frequencies (GHz) until the
// returned restore function runs. Unknown labels fail before anything changes.
func (s *ExperimentSystem) OverrideTargetFrequencies(freqs map[string]float64) (func(), error) {
	keys := make(map[topology.TargetKey]float64, len(freqs))
	for label, f := range freqs {
		key, err := s.resolve(label)
		if err != nil {
			return nil, err
		}
		keys[key] = f
	}
	s.mu.Lock()
	previous := make(map[topology.TargetKey]*float64, len(keys))
	for key, f := range keys {
		if old, ok := s.overrides[key]; ok {
			old := old
			previous[key] = &old
		} else {
			previous[key] = nil
		}
		s.overrides[key] = f
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for key, old := range previous {
				if old == nil {
					delete(s.overrides, key)
				} else {
					s.overrides[key] = *old
				}
			}
		})
	}, nil
}
