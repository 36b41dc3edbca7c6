package sequence

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/google/uuid"

	"qubecore/internal/core"
	"qubecore/pkg/topology"
)

type fakeSystem struct {
	targets map[string]topology.Target
	diff    map[string]float64
	params  core.ControlParams
	unbound map[string]bool
}

func newFakeSystem() *fakeSystem {
	q0 := topology.Qubit{Label: "Q00", Index: 0, Frequency: 7.5, Anharmonicity: -0.35}
	q1 := topology.Qubit{Label: "Q01", Index: 1, Frequency: 7.9, Anharmonicity: -0.35}
	f := &fakeSystem{targets: map[string]topology.Target{}, diff: map[string]float64{}, unbound: map[string]bool{}}
	for _, tg := range []topology.Target{
		topology.NewGETarget(q0),
		topology.NewEFTarget(q0),
		topology.NewGETarget(q1),
		topology.NewReadTarget(topology.Resonator{Label: "RQ00", Frequency: 10.1, Qubit: "Q00"}),
		topology.NewReadTarget(topology.Resonator{Label: "RQ01", Frequency: 10.2, Qubit: "Q01"}),
	} {
		f.targets[tg.Label] = tg
	}
	f.diff["RQ00"] = 0.001
	return f
}

func (f *fakeSystem) Target(label string) (topology.Target, error) {
	tg, ok := f.targets[label]
	if !ok {
		return topology.Target{}, &core.TargetNotFoundError{Label: label}
	}
	return tg, nil
}

func (f *fakeSystem) GenChannel(label string) (*topology.GenPort, *topology.GenChannel, error) {
	if _, err := f.Target(label); err != nil {
		return nil, nil, err
	}
	if f.unbound[label] {
		return nil, nil, &core.TargetNotFoundError{Label: label}
	}
	return &topology.GenPort{}, &topology.GenChannel{ID: label}, nil
}

func (f *fakeSystem) CapChannel(label string) (*topology.CapPort, *topology.CapChannel, error) {
	tg, err := f.Target(label)
	if err != nil {
		return nil, nil, err
	}
	if !tg.IsRead() || f.unbound["cap:"+label] {
		return nil, nil, &core.TargetNotFoundError{Label: label}
	}
	return &topology.CapPort{}, &topology.CapChannel{ID: label}, nil
}

func (f *fakeSystem) DiffFrequency(label string) (float64, error) { return f.diff[label], nil }

func (f *fakeSystem) Params() core.ControlParams { return f.params }

func approx(a, b complex128) bool { return cmplx.Abs(a-b) < 1e-12 }

func TestNumberOfSamples(t *testing.T) {
	if n, err := NumberOfSamples(128, 2); err != nil || n != 64 {
		t.Fatalf("expected 64 samples got %d %v", n, err)
	}
	if _, err := NumberOfSamples(2.3, 2.0); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected non multiple rejection got %v", err)
	}
	if _, err := NumberOfSamples(-2, 2.0); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected negative rejection got %v", err)
	}
	if _, err := NumberOfSamples(4, 0); err == nil {
		t.Fatalf("expected zero sampling period rejection")
	}
}

func TestBackendInterval(t *testing.T) {
	cases := []struct {
		total, interval float64
		want            int
	}{
		{0, 0, 10240},
		{10239, 0, 10240},
		{10240, 0, 20480},
		{2560, DefaultInterval, 163840},
	}
	for _, tc := range cases {
		if got := BackendInterval(tc.total, tc.interval); got != tc.want {
			t.Fatalf("BackendInterval(%v, %v) = %d want %d", tc.total, tc.interval, got, tc.want)
		}
	}
}

func TestBuild_RightAlignsControl(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := NewBuilder(newFakeSystem(), WithIDGenerator(func() uuid.UUID { return id }))
	req, err := b.Build(map[string]Waveform{
		"Q00": {Samples: []complex128{1, 2i, 3}},
	}, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.ID != id || req.State != StateBuilt {
		t.Fatalf("unexpected request header %+v", req)
	}
	if req.ControlLength != 64 || req.ReadoutStart != 128 || req.Length != 128+512 {
		t.Fatalf("unexpected layout control=%d start=%d total=%d", req.ControlLength, req.ReadoutStart, req.Length)
	}
	ctrl := req.Gen["Q00"].Samples
	if len(ctrl) != req.Length {
		t.Fatalf("expected padded buffer got %d", len(ctrl))
	}
	if ctrl[61] != 1 || ctrl[62] != 2i || ctrl[63] != 3 {
		t.Fatalf("waveform not right aligned: %v", ctrl[60:65])
	}
	for i, v := range ctrl {
		if (i < 61 || i >= 64) && v != 0 {
			t.Fatalf("expected zero padding at %d got %v", i, v)
		}
	}
	slot := req.Cap["RQ00"].Slots[0]
	if slot.PrevBlank != 128 || slot.Duration != 512 || slot.PostBlank != 0 {
		t.Fatalf("unexpected capture slot %+v", slot)
	}
	if req.Interval != BackendInterval(float64(req.Length)*SamplingPeriod, DefaultInterval) {
		t.Fatalf("unexpected interval %d", req.Interval)
	}
	if got := req.Targets(); len(got) != 2 || got[0] != "Q00" || got[1] != "RQ00" {
		t.Fatalf("unexpected targets %v", got)
	}
}

func TestBuild_ControlLengthRoundsUpToBlocks(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	req, err := b.Build(map[string]Waveform{
		"Q00":    {Samples: make([]complex128, 65)},
		"Q00-ef": {Samples: make([]complex128, 10)},
	}, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.ControlLength != 128 {
		t.Fatalf("expected two blocks got %d", req.ControlLength)
	}
	if len(req.Cap) != 1 {
		t.Fatalf("expected one readout per qubit got %d", len(req.Cap))
	}
}

func TestBuild_ReadoutPhasePreRotation(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	req, err := b.Build(map[string]Waveform{
		"Q00": {Samples: []complex128{1}},
		"Q01": {Samples: []complex128{1}},
	}, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t0 := float64(req.ReadoutStart) * SamplingPeriod
	flat := req.ReadoutStart + 100
	want := complex(core.DefaultReadoutAmplitude, 0) * cmplx.Exp(complex(0, -2*math.Pi*0.001*t0))
	if got := req.Gen["RQ00"].Samples[flat]; !approx(got, want) {
		t.Fatalf("expected rotated sample %v got %v", want, got)
	}
	if got := req.Gen["RQ01"].Samples[flat]; !approx(got, complex(core.DefaultReadoutAmplitude, 0)) {
		t.Fatalf("expected unrotated sample got %v", got)
	}
	if got := req.Gen["RQ00"].Samples[req.ReadoutStart-1]; got != 0 {
		t.Fatalf("readout must start at readout start, got %v", got)
	}
}

func TestBuild_Invalid(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	cases := map[string]struct {
		waves map[string]Waveform
		opts  Options
	}{
		"empty":           {waves: map[string]Waveform{}},
		"mismatched dt":   {waves: map[string]Waveform{"Q00": {Samples: []complex128{1}}, "Q01": {Samples: []complex128{1}, SamplingPeriod: 1}}},
		"window overflow": {waves: map[string]Waveform{"Q00": {Samples: make([]complex128, 70)}}, opts: Options{ControlWindow: 128}},
		"odd window":      {waves: map[string]Waveform{"Q00": {Samples: []complex128{1}}}, opts: Options{ControlWindow: 129}},
		"readout target":  {waves: map[string]Waveform{"RQ00": {Samples: []complex128{1}}}},
		"long readout":    {waves: map[string]Waveform{"Q00": {Samples: []complex128{1}}}, opts: Options{ReadoutDuration: 2048}},
	}
	for name, tc := range cases {
		if _, err := b.Build(tc.waves, tc.opts); !errors.Is(err, ErrInvalidSequence) {
			t.Fatalf("%s: expected invalid sequence got %v", name, err)
		}
	}
	if _, err := b.Build(map[string]Waveform{"Q09": {Samples: []complex128{1}}}, Options{}); !errors.Is(err, core.ErrTargetNotFound) {
		t.Fatalf("expected unknown target got %v", err)
	}
}

func TestBuild_RejectsUnboundChannels(t *testing.T) {
	sys := newFakeSystem()
	sys.unbound["Q00-ef"] = true
	sys.unbound["cap:RQ01"] = true
	b := NewBuilder(sys)

	_, err := b.Build(map[string]Waveform{"Q00-ef": {Samples: make([]complex128, 3)}}, Options{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Target != "Q00-ef" {
		t.Fatalf("expected unbound control target rejected, got %v", err)
	}
	if _, err := b.Build(map[string]Waveform{"Q01": {Samples: []complex128{1}}}, Options{}); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected readout without capture rejected, got %v", err)
	}
	if _, err := b.BuildNoise([]string{"Q01"}, 2048); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected noise capture without channel rejected, got %v", err)
	}
	if _, err := b.Build(map[string]Waveform{"Q00": {Samples: []complex128{1}}}, Options{}); err != nil {
		t.Fatalf("bound targets should still build: %v", err)
	}
}

func TestBuild_ExplicitControlWindow(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	req, err := b.Build(map[string]Waveform{"Q00": {Samples: []complex128{1}}}, Options{ControlWindow: 400, CaptureMargin: 64, CaptureWindow: 2048})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.ControlLength != 200 || req.ReadoutStart != 232 || req.Length != 232+1024 {
		t.Fatalf("unexpected layout %+v", req)
	}
	if req.Gen["Q00"].Samples[199] != 1 {
		t.Fatalf("waveform should end at the control window")
	}
	if post := req.Cap["RQ00"].Slots[0].PostBlank; post != 0 {
		t.Fatalf("unexpected post blank %d", post)
	}
}

func TestBuildNoise(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	req, err := b.BuildNoise([]string{"Q00", "RQ01"}, 2048)
	if err != nil {
		t.Fatalf("noise: %v", err)
	}
	if len(req.Gen) != 0 || len(req.Cap) != 2 || req.Length != 1024 {
		t.Fatalf("unexpected noise request %+v", req)
	}
	if slot := req.Cap["RQ00"].Slots[0]; slot.Duration != 1024 || slot.PrevBlank != 0 {
		t.Fatalf("unexpected slot %+v", slot)
	}
	if _, err := b.BuildNoise(nil, 2048); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected invalid for empty targets got %v", err)
	}
	if _, err := b.BuildNoise([]string{"Q00"}, 3); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("expected invalid duration got %v", err)
	}
}

func TestBuildBatch_PreservesOrder(t *testing.T) {
	b := NewBuilder(newFakeSystem())
	batch, err := b.BuildBatch([]Shot{
		{Waveforms: map[string]Waveform{"Q00": {Samples: []complex128{1}}}},
		{Waveforms: map[string]Waveform{"Q01": {Samples: make([]complex128, 200)}}, Options: Options{Interval: 1024}},
		{Waveforms: map[string]Waveform{"Q00-ef": {Samples: []complex128{1}}}},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if batch.Len() != 3 {
		t.Fatalf("expected three queued got %d", batch.Len())
	}
	reqs := batch.Requests()
	if _, ok := reqs[0].Gen["Q00"]; !ok {
		t.Fatalf("first request out of order")
	}
	if _, ok := reqs[1].Gen["Q01"]; !ok || reqs[1].Interval != BackendInterval(float64(reqs[1].Length)*SamplingPeriod, 1024) {
		t.Fatalf("second request out of order or interval shared: %+v", reqs[1].Interval)
	}
	if _, ok := reqs[2].Gen["Q00-ef"]; !ok {
		t.Fatalf("third request out of order")
	}
	if batch.Len() != 0 {
		t.Fatalf("expected drained queue")
	}
	if _, err := b.BuildBatch([]Shot{{Waveforms: map[string]Waveform{}}}); err == nil {
		t.Fatalf("expected invalid batch")
	}
}

func TestRaisedCosFlatTop(t *testing.T) {
	p := RaisedCosFlatTop(10, 2, 3)
	if real(p[0]) != 0 || real(p[9]) != 0 || real(p[5]) != 2 {
		t.Fatalf("unexpected pulse %v", p)
	}
	if RaisedCosFlatTop(0, 1, 1) != nil {
		t.Fatalf("expected nil pulse")
	}
	if got := RaisedCosFlatTop(4, 1, 10); len(got) != 4 || real(got[0]) != 0 {
		t.Fatalf("expected clamped rise got %v", got)
	}
}
