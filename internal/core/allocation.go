package core

import (
	"errors"
	"fmt"

	"qubecore/internal/allocator"
	"qubecore/pkg/topology"
)

// portAssignment is the computed hardware state of one wired port, applied in one step.
type portAssignment func()

func (s *ExperimentSystem) nominalFrequency(t topology.TargetType, qubit string) float64 {
	idx, ok := s.byKey[topology.TargetKey{Type: t, Qubit: qubit}]
	if !ok {
		return 0
	}
	return s.targets[idx].Frequency
}

func (s *ExperimentSystem) planReadout(mux int) (portAssignment, error) {
	out, in := s.readOutByMux[mux], s.readInByMux[mux]
	m, _ := s.qs.Mux(mux)
	res, err := allocator.FindReadoutLONCO(m.Frequencies(), s.readoutGrid)
	if err != nil {
		return nil, fmt.Errorf("mux %d: %w", mux, err)
	}
	vatt := s.params.ReadoutVATTOf(mux)
	fsc := s.params.ReadoutFSCOf(mux)
	delay := s.params.CaptureDelayOf(mux)
	return func() {
		out.Sideband = topology.SidebandUpper
		out.LOFreq = res.LO
		out.CNCOFreq = res.CNCO
		out.VATT = vatt
		out.FullscaleCurrent = fsc
		out.RFSwitch = topology.RFSwitchPass
		for _, ch := range out.Channels {
			ch.FNCOFreq = res.FNCO
		}
		in.LOFreq = res.LO
		in.CNCOFreq = res.CNCO
		in.RFSwitch = topology.RFSwitchOpen
		for _, ch := range in.Channels {
			ch.FNCOFreq = res.FNCO
			ch.NDelay = delay
		}
	}, nil
}

func (s *ExperimentSystem) planControl(qubit string) (portAssignment, error) {
	port := s.ctrlByQubit[qubit]
	ge := s.nominalFrequency(topology.TargetCtrlGE, qubit)
	ef := s.nominalFrequency(topology.TargetCtrlEF, qubit)
	cr := s.nominalFrequency(topology.TargetCtrlCR, qubit)
	res, err := allocator.FindControlLONCO(ge, ef, cr, len(port.Channels), s.controlGrid)
	if err != nil {
		var aerr *allocator.Error
		if errors.As(err, &aerr) && aerr.Target == "" {
			aerr.Target = port.PortID()
		}
		return nil, fmt.Errorf("qubit %s: %w", qubit, err)
	}
	vatt := s.params.ControlVATTOf(qubit)
	fsc := s.params.ControlFSCOf(qubit)
	return func() {
		port.Sideband = topology.SidebandLower
		port.LOFreq = res.LO
		port.CNCOFreq = res.CNCO
		port.VATT = vatt
		port.FullscaleCurrent = fsc
		port.RFSwitch = topology.RFSwitchPass
		for i, ch := range port.Channels {
			if i < len(res.FNCO) {
				ch.FNCOFreq = res.FNCO[i]
			}
		}
	}, nil
}

// AllocateFrequencies searches LO/CNCO/FNCO values for every wired port and
// writes them with the attenuator, full-scale current, switch and capture
// delay settings. Every port is computed before any is written; ports whose
// search fails keep their previous values and the failures are returned
// joined. Nominal target frequencies are used, never overrides, so repeated
// passes produce identical values.
func (s *ExperimentSystem) AllocateFrequencies() error {
	var plans []portAssignment
	var errs []error
	for _, mux := range s.sortedMuxes {
		plan, err := s.planReadout(mux)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plans = append(plans, plan)
	}
	for _, qubit := range s.sortedCtrlKeys {
		plan, err := s.planControl(qubit)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plans = append(plans, plan)
	}
	s.mu.Lock()
	for _, apply := range plans {
		apply()
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}
