package sequence

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qubecore/internal/core"
	"qubecore/pkg/topology"
)

// System is the view of the experiment system the builder needs.
type System interface {
	Target(label string) (topology.Target, error)
	GenChannel(label string) (*topology.GenPort, *topology.GenChannel, error)
	CapChannel(label string) (*topology.CapPort, *topology.CapChannel, error)
	DiffFrequency(label string) (float64, error)
	Params() core.ControlParams
}

// Options tunes the shot layout. Durations are in ns; zero selects the default.
type Options struct {
	ControlWindow   float64
	CaptureWindow   float64
	CaptureMargin   float64
	ReadoutDuration float64
	Interval        float64
}

func (o Options) withDefaults() Options {
	if o.CaptureWindow == 0 {
		o.CaptureWindow = DefaultCaptureWindow
	}
	if o.CaptureMargin == 0 {
		o.CaptureMargin = DefaultCaptureMargin
	}
	if o.ReadoutDuration == 0 {
		o.ReadoutDuration = DefaultReadoutDuration
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Shot pairs the waveforms and options of one queued measurement.
type Shot struct {
	Waveforms map[string]Waveform
	Options   Options
}

// Builder lays out shots against one experiment system.
type Builder struct {
	sys    System
	dt     float64
	logger *zap.Logger
	newID  func() uuid.UUID
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithIDGenerator replaces the request id source.
func WithIDGenerator(fn func() uuid.UUID) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// WithSamplingPeriod overrides the hardware sampling period in ns.
func WithSamplingPeriod(dt float64) BuilderOption {
	return func(b *Builder) {
		if dt > 0 {
			b.dt = dt
		}
	}
}

// NewBuilder returns a builder bound to sys.
func NewBuilder(sys System, opts ...BuilderOption) *Builder {
	b := &Builder{sys: sys, dt: SamplingPeriod, logger: zap.NewNop(), newID: uuid.New}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SamplingPeriod returns the sample spacing in ns.
func (b *Builder) SamplingPeriod() float64 { return b.dt }

type controlWave struct {
	target  topology.Target
	samples []complex128
}

// Build lays out one shot. Every waveform key must name a control target; the
// readout of each involved qubit is synthesized.
func (b *Builder) Build(waveforms map[string]Waveform, opts Options) (*Request, error) {
	req, err := b.build(waveforms, opts.withDefaults())
	if err != nil {
		b.logger.Debug("sequence rejected", zap.String("state", string(StateInvalid)), zap.Error(err))
		return nil, err
	}
	b.logger.Debug("sequence built",
		zap.String("id", req.ID.String()),
		zap.Int("length", req.Length),
		zap.Int("interval", req.Interval),
		zap.Strings("targets", req.Targets()),
	)
	return req, nil
}

func (b *Builder) build(waveforms map[string]Waveform, opts Options) (*Request, error) {
	if len(waveforms) == 0 {
		return nil, invalid("", "no waveforms")
	}
	labels := make([]string, 0, len(waveforms))
	for label := range waveforms {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	waves := make([]controlWave, 0, len(labels))
	longest := 0
	for _, label := range labels {
		w := waveforms[label]
		dt := w.SamplingPeriod
		if dt == 0 {
			dt = b.dt
		}
		if math.Abs(dt-b.dt) > sampleTolerance {
			return nil, invalid(label, "sampling period %v ns does not match %v ns", dt, b.dt)
		}
		target, err := b.sys.Target(label)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", label, err)
		}
		if target.IsRead() {
			return nil, invalid(label, "readout targets are synthesized and cannot carry waveforms")
		}
		if _, _, err := b.sys.GenChannel(label); err != nil {
			return nil, invalid(label, "no generator channel bound: %v", err)
		}
		if len(w.Samples) > longest {
			longest = len(w.Samples)
		}
		waves = append(waves, controlWave{target: target, samples: w.Samples})
	}

	block, err := NumberOfSamples(MinDuration, b.dt)
	if err != nil {
		return nil, err
	}
	var controlLength int
	if opts.ControlWindow != 0 {
		if controlLength, err = NumberOfSamples(opts.ControlWindow, b.dt); err != nil {
			return nil, err
		}
		if longest > controlLength {
			return nil, invalid("", "waveform of %d samples exceeds control window of %d samples", longest, controlLength)
		}
	} else {
		blocks := (longest + block - 1) / block
		if blocks < 1 {
			blocks = 1
		}
		controlLength = blocks * block
	}

	marginLength, err := NumberOfSamples(opts.CaptureMargin, b.dt)
	if err != nil {
		return nil, err
	}
	captureLength, err := NumberOfSamples(opts.CaptureWindow, b.dt)
	if err != nil {
		return nil, err
	}
	readoutLength, err := NumberOfSamples(opts.ReadoutDuration, b.dt)
	if err != nil {
		return nil, err
	}
	if readoutLength > captureLength {
		return nil, invalid("", "readout of %d samples exceeds capture window of %d samples", readoutLength, captureLength)
	}
	if opts.Interval < 0 {
		return nil, invalid("", "interval must not be negative, got %v ns", opts.Interval)
	}
	rise, err := NumberOfSamples(ReadoutRiseTime, b.dt)
	if err != nil {
		return nil, err
	}

	total := controlLength + marginLength + captureLength
	readoutStart := controlLength + marginLength

	req := &Request{
		ID:             b.newID(),
		State:          StateBuilt,
		Gen:            make(map[string]GenSequence, 2*len(waves)),
		Cap:            make(map[string]CapSequence),
		Length:         total,
		ControlLength:  controlLength,
		ReadoutStart:   readoutStart,
		Interval:       BackendInterval(float64(total)*b.dt, opts.Interval),
		SamplingPeriod: b.dt,
	}

	qubits := make(map[string]struct{})
	for _, w := range waves {
		buf := make([]complex128, total)
		copy(buf[controlLength-len(w.samples):controlLength], w.samples)
		req.Gen[w.target.Label] = GenSequence{Target: w.target.Label, Samples: buf}
		qubits[w.target.Qubit] = struct{}{}
	}

	params := b.sys.Params()
	t0 := float64(readoutStart) * b.dt
	for _, q := range sortedKeys(qubits) {
		label := topology.TargetKey{Type: topology.TargetRead, Qubit: q}.Label()
		if _, err := b.sys.Target(label); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", label, err)
		}
		if err := b.checkReadout(label); err != nil {
			return nil, err
		}
		diff, err := b.sys.DiffFrequency(label)
		if err != nil {
			return nil, fmt.Errorf("diff frequency %s: %w", label, err)
		}
		rot := phaseRotation(diff, t0)
		pulse := RaisedCosFlatTop(readoutLength, params.ReadoutAmplitudeOf(q), rise)
		buf := make([]complex128, total)
		for i, v := range pulse {
			buf[readoutStart+i] = v * rot
		}
		req.Gen[label] = GenSequence{Target: label, Samples: buf}
		req.Cap[label] = CapSequence{Target: label, Slots: []CaptureSlot{{
			PrevBlank: readoutStart,
			Duration:  captureLength,
			PostBlank: total - readoutStart - captureLength,
		}}}
	}
	return req, nil
}

// checkReadout requires both halves of a readout target to be wired.
func (b *Builder) checkReadout(label string) error {
	if _, _, err := b.sys.GenChannel(label); err != nil {
		return invalid(label, "no generator channel bound: %v", err)
	}
	if _, _, err := b.sys.CapChannel(label); err != nil {
		return invalid(label, "no capture channel bound: %v", err)
	}
	return nil
}

// BuildNoise returns a capture-only request over duration ns. Targets may be
// qubit or readout labels.
func (b *Builder) BuildNoise(targets []string, duration float64) (*Request, error) {
	if len(targets) == 0 {
		return nil, invalid("", "no targets")
	}
	n, err := NumberOfSamples(duration, b.dt)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, invalid("", "noise capture needs a positive duration")
	}
	req := &Request{
		ID:             b.newID(),
		State:          StateBuilt,
		Gen:            map[string]GenSequence{},
		Cap:            make(map[string]CapSequence, len(targets)),
		Length:         n,
		Interval:       BackendInterval(duration, DefaultInterval),
		SamplingPeriod: b.dt,
	}
	for _, label := range targets {
		target, err := b.sys.Target(label)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", label, err)
		}
		if !target.IsRead() {
			readLabel := topology.TargetKey{Type: topology.TargetRead, Qubit: target.Qubit}.Label()
			if target, err = b.sys.Target(readLabel); err != nil {
				return nil, fmt.Errorf("resolve %s: %w", readLabel, err)
			}
		}
		if _, _, err := b.sys.CapChannel(target.Label); err != nil {
			return nil, invalid(target.Label, "no capture channel bound: %v", err)
		}
		req.Cap[target.Label] = CapSequence{Target: target.Label, Slots: []CaptureSlot{{Duration: n}}}
	}
	b.logger.Debug("noise sequence built", zap.String("id", req.ID.String()), zap.Int("length", n))
	return req, nil
}

// BuildBatch lays out every shot and queues them in order. No request is
// queued when any shot is invalid.
func (b *Builder) BuildBatch(shots []Shot) (*Batch, error) {
	built := make([]*Request, 0, len(shots))
	for i, shot := range shots {
		req, err := b.Build(shot.Waveforms, shot.Options)
		if err != nil {
			return nil, fmt.Errorf("shot %d: %w", i, err)
		}
		built = append(built, req)
	}
	batch := &Batch{}
	for _, req := range built {
		batch.Add(req)
	}
	return batch, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
