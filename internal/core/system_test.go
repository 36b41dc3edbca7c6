package core

import (
	"errors"
	"testing"

	"qubecore/internal/allocator"
	"qubecore/pkg/topology"
)

func TestNewExperimentSystem_BindsTargetsToChannels(t *testing.T) {
	sys := newTestSystem(t)

	port, ch, err := sys.GenChannel("Q00-CR")
	if err != nil {
		t.Fatalf("gen channel: %v", err)
	}
	if port.PortID() != "A.CTRL0" || ch.ID != "A.CTRL0.CH2" {
		t.Fatalf("unexpected binding %s %s", port.PortID(), ch.ID)
	}
	port, ch, err = sys.GenChannel("RQ02")
	if err != nil || port.PortID() != "A.READ0.OUT" || ch.Number != 0 {
		t.Fatalf("read out binding: %v %+v", err, ch)
	}
	cport, cch, err := sys.CapChannel("RQ02")
	if err != nil || cport.PortID() != "A.READ0.IN" || cch.Number != 2 {
		t.Fatalf("read in binding: %v %+v", err, cch)
	}
	if _, _, err := sys.CapChannel("RQ05"); err != nil {
		t.Fatalf("mux 1 read in binding: %v", err)
	}
}

func TestNewExperimentSystem_OneChannelPortBindsOnlyGE(t *testing.T) {
	sys := newTestSystem(t)
	if _, ch, err := sys.GenChannel("Q05"); err != nil || ch.ID != "B.CTRL0.CH0" {
		t.Fatalf("ge binding: %v %+v", err, ch)
	}
	_, _, err := sys.GenChannel("Q05-ef")
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected unbound ef target got %v", err)
	}
	if _, err := sys.Target("Q05-ef"); err != nil {
		t.Fatalf("ef target still resolvable: %v", err)
	}
}

func TestExperimentSystem_UnknownLabel(t *testing.T) {
	sys := newTestSystem(t)
	_, err := sys.Target("Q99")
	var nf *TargetNotFoundError
	if !errors.As(err, &nf) || nf.Label != "Q99" || !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected target not found got %v", err)
	}
	if _, err := sys.BaseFrequency("RQ99"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected base frequency lookup error got %v", err)
	}
}

func TestExperimentSystem_ReverseLookupsRoundTrip(t *testing.T) {
	sys := newTestSystem(t)
	for _, tg := range sys.Targets() {
		port, _, err := sys.GenChannel(tg.Label)
		if err != nil {
			continue
		}
		if tg.IsRead() {
			mux, err := sys.MuxByReadoutPort(port.PortID())
			if err != nil {
				t.Fatalf("mux by port %s: %v", port.PortID(), err)
			}
			q, _ := sys.QuantumSystem().Qubit(tg.Qubit)
			if mux.Index != q.MuxIndex() {
				t.Fatalf("target %s: mux %d want %d", tg.Label, mux.Index, q.MuxIndex())
			}
			continue
		}
		q, err := sys.QubitByControlPort(port.PortID())
		if err != nil || q.Label != tg.Qubit {
			t.Fatalf("target %s: qubit %s err %v", tg.Label, q.Label, err)
		}
	}
	if _, err := sys.QubitByControlPort("A.PUMP0"); !IsNotFound(err, EntityPort) {
		t.Fatalf("expected port not found got %v", err)
	}
	ports, err := sys.QubitPorts("Q06")
	if err != nil || ports.Ctrl.PortID() != "B.CTRL3" || ports.ReadIn.PortID() != "A.READ1.IN" {
		t.Fatalf("qubit ports: %v %+v", err, ports)
	}
}

func TestNewExperimentSystem_WiringErrors(t *testing.T) {
	qs := newTestQuantumSystem(t)
	cases := map[string]WiringInfo{
		"unknown box":   {Ctrl: []CtrlWiring{{Qubit: "Q00", Port: ref("Z", 2)}}},
		"unknown port":  {Ctrl: []CtrlWiring{{Qubit: "Q00", Port: ref("A", 20)}}},
		"wrong type":    {Ctrl: []CtrlWiring{{Qubit: "Q00", Port: ref("A", 3)}}},
		"unknown qubit": {Ctrl: []CtrlWiring{{Qubit: "Q42", Port: ref("A", 2)}}},
		"shared port":   {Ctrl: []CtrlWiring{{Qubit: "Q00", Port: ref("A", 2)}, {Qubit: "Q01", Port: ref("A", 2)}}},
		"double ctrl":   {Ctrl: []CtrlWiring{{Qubit: "Q00", Port: ref("A", 2)}, {Qubit: "Q00", Port: ref("A", 4)}}},
		"read out only": {ReadOut: []ReadOutWiring{{Mux: 0, Port: ref("A", 1)}}},
		"read in type":  {ReadOut: []ReadOutWiring{{Mux: 0, Port: ref("A", 1)}}, ReadIn: []ReadInWiring{{Mux: 0, Port: ref("A", 5)}}},
		"unknown mux":   {ReadOut: []ReadOutWiring{{Mux: 7, Port: ref("A", 1)}}},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewExperimentSystem(qs, newTestControlSystem(t), w, ControlParams{})
			var cerr *ConfigError
			if !errors.As(err, &cerr) || !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error got %v", err)
			}
		})
	}
}

func TestParsePortRef(t *testing.T) {
	r, err := ParsePortRef("Q73A-11")
	if err != nil || r != (PortRef{Box: "Q73A", Number: 11}) {
		t.Fatalf("parse: %v %+v", err, r)
	}
	r, err = ParsePortRef("R-Q2-3")
	if err != nil || r.Box != "R-Q2" || r.Number != 3 {
		t.Fatalf("parse dashed box: %v %+v", err, r)
	}
	for _, bad := range []string{"Q73A", "Q73A-", "-3", "Q73A-x"} {
		if _, err := ParsePortRef(bad); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, err := NewWiringInfo([]MuxWiring{{Mux: 0, Ctrl: make([]PortRef, 5)}}); err == nil {
		t.Fatalf("expected too many ctrl ports error")
	}
}

func TestAllocateFrequencies_ReadoutAndControl(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.AllocateFrequencies(); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	out, in, err := sys.ReadoutPair(0)
	if err != nil {
		t.Fatalf("readout pair: %v", err)
	}
	if out.LOFreq != 8_500_000_000 || out.CNCOFreq != 1_500_000_000 || out.Channels[0].FNCOFreq != 46_875_000 {
		t.Fatalf("unexpected read out values %+v %+v", out, out.Channels[0])
	}
	if out.VATT != 1800 || out.Sideband != topology.SidebandUpper {
		t.Fatalf("unexpected read out vatt/sideband %d %s", out.VATT, out.Sideband)
	}
	for _, ch := range in.Channels {
		if ch.FNCOFreq != 46_875_000 || ch.NDelay != DefaultCaptureDelay {
			t.Fatalf("unexpected capture channel %+v", ch)
		}
	}
	if in.LOFreq != out.LOFreq {
		t.Fatalf("capture lo %d differs from drive lo %d", in.LOFreq, out.LOFreq)
	}
	_, in1, _ := sys.ReadoutPair(1)
	if in1.Channels[0].NDelay != 9 {
		t.Fatalf("expected capture delay override, got %d", in1.Channels[0].NDelay)
	}

	ge := mustTarget(t, sys, "Q00")
	ef := mustTarget(t, sys, "Q00-ef")
	cr := mustTarget(t, sys, "Q00-CR")
	want, err := allocator.FindControlLONCO(ge.Frequency, ef.Frequency, cr.Frequency, 3, allocator.DefaultControlGrid())
	if err != nil {
		t.Fatalf("reference allocation: %v", err)
	}
	ctrl, _, _ := sys.GenChannel("Q00")
	if ctrl.LOFreq != want.LO || ctrl.CNCOFreq != want.CNCO || ctrl.VATT != 2500 || ctrl.Sideband != topology.SidebandLower {
		t.Fatalf("unexpected ctrl port %+v", ctrl)
	}
	for i, ch := range ctrl.Channels {
		if ch.FNCOFreq != want.FNCO[i] {
			t.Fatalf("channel %d fnco %d want %d", i, ch.FNCOFreq, want.FNCO[i])
		}
	}
	one, _, _ := sys.GenChannel("Q05")
	if one.VATT != DefaultControlVATT {
		t.Fatalf("expected default vatt got %d", one.VATT)
	}
}

func TestAllocateFrequencies_Idempotent(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.AllocateFrequencies(); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	first := sys.Settings()
	restore, err := sys.OverrideTargetFrequencies(map[string]float64{"Q00": 6.0})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if err := sys.AllocateFrequencies(); err != nil {
		t.Fatalf("allocate again: %v", err)
	}
	restore()
	second := sys.Settings()
	if len(first.Boxes) != len(second.Boxes) {
		t.Fatalf("box count changed")
	}
	for i := range first.Boxes {
		for j, p := range first.Boxes[i].Ports {
			q := second.Boxes[i].Ports[j]
			if p.LOFreq != q.LOFreq || p.CNCOFreq != q.CNCOFreq {
				t.Fatalf("port %s changed between passes", p.ID)
			}
			for k := range p.Channels {
				if p.Channels[k].FNCOFreq != q.Channels[k].FNCOFreq {
					t.Fatalf("channel %s changed between passes", p.Channels[k].ID)
				}
			}
		}
	}
}

func TestAllocateFrequencies_FailingPortIsUntouched(t *testing.T) {
	grid := allocator.DefaultReadoutGrid()
	grid.NCOStep = 0
	sys := newTestSystem(t, WithReadoutGrid(grid))
	err := sys.AllocateFrequencies()
	if !errors.Is(err, allocator.ErrNoCandidate) {
		t.Fatalf("expected no candidate error got %v", err)
	}
	out, _, _ := sys.ReadoutPair(0)
	if out.LOFreq != topology.DefaultLOFreq || out.VATT != topology.DefaultVATT {
		t.Fatalf("failing read out port must keep defaults: %+v", out)
	}
	ctrl, _, _ := sys.GenChannel("Q00")
	if ctrl.CNCOFreq != allocator.DefaultControlGrid().CNCO {
		t.Fatalf("control ports must still be allocated: %+v", ctrl)
	}
}

func TestBaseAndDiffFrequency(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.AllocateFrequencies(); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	base, err := sys.BaseFrequency("RQ00")
	if err != nil {
		t.Fatalf("base: %v", err)
	}
	realised := int64(10_046_875_000)
	if want := float64(realised) * 1e-9; base != want {
		t.Fatalf("base %v want %v", base, want)
	}
	diff, err := sys.DiffFrequency("RQ00")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if want := 9.902 - base; diff != want {
		t.Fatalf("diff %v want %v", diff, want)
	}
	restore, err := sys.OverrideTargetFrequencies(map[string]float64{"RQ00": 10.0})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	defer restore()
	diff, _ = sys.DiffFrequency("RQ00")
	if want := 10.0 - base; diff != want {
		t.Fatalf("override diff %v want %v", diff, want)
	}
}

func TestOverrideTargetFrequencies_RestoresNestedScopes(t *testing.T) {
	sys := newTestSystem(t)
	orig := mustTarget(t, sys, "Q00").Frequency

	restoreOuter, err := sys.OverrideTargetFrequencies(map[string]float64{"Q00": 5.0})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	restoreInner, err := sys.OverrideTargetFrequencies(map[string]float64{"Q00": 5.5})
	if err != nil {
		t.Fatalf("override inner: %v", err)
	}
	if got := mustTarget(t, sys, "Q00").Frequency; got != 5.5 {
		t.Fatalf("expected inner override got %v", got)
	}
	restoreInner()
	restoreInner()
	if got := mustTarget(t, sys, "Q00").Frequency; got != 5.0 {
		t.Fatalf("expected outer override got %v", got)
	}
	restoreOuter()
	if got := mustTarget(t, sys, "Q00").Frequency; got != orig {
		t.Fatalf("expected %v got %v", orig, got)
	}
	if nominal, _ := sys.NominalTarget("Q00"); nominal.Frequency != orig {
		t.Fatalf("nominal frequency must not change")
	}
	if _, err := sys.OverrideTargetFrequencies(map[string]float64{"Q00": 1, "nope": 2}); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected unknown label error got %v", err)
	}
	if got := mustTarget(t, sys, "Q00").Frequency; got != orig {
		t.Fatalf("failed override must not apply, got %v", got)
	}
}
