// Package measurement drives the device layer with sequences laid out by the
// timing builder and reduces the captured data.
package measurement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"qubecore/internal/core"
	"qubecore/internal/sequence"
)

// DefaultShots is the repetition count used when none is given.
const DefaultShots = 1024

// ErrLinkDown is returned when a box reports a port without link.
var ErrLinkDown = errors.New("link down")

// Options tunes a single measurement.
type Options struct {
	Mode     Mode
	Shots    int
	Sequence sequence.Options
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeAvg
	}
	if o.Shots == 0 {
		o.Shots = DefaultShots
	}
	return o
}

// Measurement runs measurements of one experiment system on one device.
type Measurement struct {
	system  *core.ExperimentSystem
	device  DeviceController
	builder *sequence.Builder
	logger  *zap.Logger
	metrics core.MetricsRecorder
}

// Option configures a Measurement.
type Option func(*Measurement)

// WithLogger sets the logger used by the measurement and its builder.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Measurement) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetricsRecorder records one observation per device operation.
func WithMetricsRecorder(rec core.MetricsRecorder) Option {
	return func(m *Measurement) {
		m.metrics = rec
	}
}

// WithBuilder replaces the sequence builder.
func WithBuilder(b *sequence.Builder) Option {
	return func(m *Measurement) {
		if b != nil {
			m.builder = b
		}
	}
}

// New returns a Measurement for system on device.
func New(system *core.ExperimentSystem, device DeviceController, opts ...Option) *Measurement {
	m := &Measurement{system: system, device: device, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.builder == nil {
		m.builder = sequence.NewBuilder(system, sequence.WithLogger(m.logger))
	}
	return m
}

// ChipID returns the chip the measurement targets.
func (m *Measurement) ChipID() string { return m.system.ChipID() }

// Builder returns the sequence builder.
func (m *Measurement) Builder() *sequence.Builder { return m.builder }

func (m *Measurement) observe(ctx context.Context, op string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.Observe(core.ContextWithChip(ctx, m.system.ChipID()), op, err == nil, time.Since(start))
}

// Measure builds one shot from waveforms and executes it.
func (m *Measurement) Measure(ctx context.Context, waveforms map[string]sequence.Waveform, opts Options) (res *Result, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "measure", start, err) }()

	opts = opts.withDefaults()
	if opts.Shots < 0 {
		return nil, fmt.Errorf("shots must not be negative, got %d", opts.Shots)
	}
	req, err := m.builder.Build(waveforms, opts.Sequence)
	if err != nil {
		return nil, err
	}
	if err := m.attachResources(ctx, req); err != nil {
		return nil, err
	}
	raw, err := m.device.ExecuteSequence(ctx, req, opts.Shots, req.Interval, opts.Mode.IntegralMode())
	if err != nil {
		return nil, fmt.Errorf("execute sequence %s: %w", req.ID, err)
	}
	m.logger.Debug("sequence executed",
		zap.String("id", req.ID.String()),
		zap.Int("shots", opts.Shots),
		zap.String("mode", string(opts.Mode)),
	)
	return newResult(req.ID.String(), raw, opts.Mode)
}

// MeasureBatch queues every shot and executes them in a single flush. Results
// follow the shot order.
func (m *Measurement) MeasureBatch(ctx context.Context, shots []sequence.Shot, mode Mode, repeats int) (out []*Result, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "measure_batch", start, err) }()

	if mode == "" {
		mode = ModeAvg
	}
	if repeats == 0 {
		repeats = DefaultShots
	}
	batch, err := m.builder.BuildBatch(shots)
	if err != nil {
		return nil, err
	}
	reqs := batch.Requests()
	for _, req := range reqs {
		if err := m.attachResources(ctx, req); err != nil {
			return nil, err
		}
	}
	raws, err := m.device.ExecuteBatch(ctx, reqs, repeats, mode.IntegralMode())
	if err != nil {
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	if len(raws) != len(reqs) {
		return nil, fmt.Errorf("execute batch: %d results for %d requests", len(raws), len(reqs))
	}
	out = make([]*Result, len(reqs))
	for i, raw := range raws {
		if out[i], err = newResult(reqs[i].ID.String(), raw, mode); err != nil {
			return nil, err
		}
	}
	m.logger.Debug("batch executed", zap.Int("requests", len(reqs)), zap.Int("shots", repeats))
	return out, nil
}

// MeasureNoise captures the readout lines of targets without driving them.
func (m *Measurement) MeasureNoise(ctx context.Context, targets []string, duration float64) (res *Result, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "measure_noise", start, err) }()

	req, err := m.builder.BuildNoise(targets, duration)
	if err != nil {
		return nil, err
	}
	if err := m.attachResources(ctx, req); err != nil {
		return nil, err
	}
	raw, err := m.device.ExecuteSequence(ctx, req, 1, sequence.DefaultInterval, IntegralSingle)
	if err != nil {
		return nil, fmt.Errorf("execute noise sequence %s: %w", req.ID, err)
	}
	return newResult(req.ID.String(), raw, ModeSingle)
}

// ModifiedFrequencies runs fn with the given target frequencies (GHz) applied
// to both the experiment system and the device. The previous values are put
// back when fn returns, fails or panics.
func (m *Measurement) ModifiedFrequencies(ctx context.Context, freqs map[string]float64, fn func(context.Context) error) (err error) {
	originals := make(map[string]float64, len(freqs))
	for label := range freqs {
		target, terr := m.system.Target(label)
		if terr != nil {
			return terr
		}
		originals[label] = target.Frequency
	}
	restore, err := m.system.OverrideTargetFrequencies(freqs)
	if err != nil {
		return err
	}
	defer restore()

	if err := m.device.ModifyTargetFrequencies(ctx, freqs); err != nil {
		return fmt.Errorf("modify target frequencies: %w", err)
	}
	defer func() {
		if rerr := m.device.ModifyTargetFrequencies(context.WithoutCancel(ctx), originals); rerr != nil {
			m.logger.Error("restore target frequencies", zap.Error(rerr))
			if err == nil {
				err = fmt.Errorf("restore target frequencies: %w", rerr)
			}
		}
	}()
	return fn(ctx)
}

// attachResources resolves the hardware location of every target of req.
func (m *Measurement) attachResources(ctx context.Context, req *sequence.Request) error {
	res, err := m.device.ResourceMap(ctx, req.Targets())
	if err != nil {
		return fmt.Errorf("resource map %s: %w", req.ID, err)
	}
	req.Resources = res
	if missing := req.MissingResources(); len(missing) > 0 {
		return fmt.Errorf("resource map %s: no entry for %v", req.ID, missing)
	}
	return nil
}

// Resources returns the hardware location of every label.
func (m *Measurement) Resources(ctx context.Context, labels []string) (map[string]sequence.Resource, error) {
	for _, label := range labels {
		if _, err := m.system.Target(label); err != nil {
			return nil, err
		}
	}
	return m.device.ResourceMap(ctx, labels)
}

// LinkReport is the link state of a set of boxes.
type LinkReport struct {
	Up    bool
	Links map[string]map[int]bool
}

// Down lists the boxes with at least one port without link.
func (r LinkReport) Down() []string {
	var out []string
	for box, links := range r.Links {
		for _, up := range links {
			if !up {
				out = append(out, box)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// CheckLinkStatus queries every box in boxIDs.
func (m *Measurement) CheckLinkStatus(ctx context.Context, boxIDs []string) (_ LinkReport, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "link_status", start, err) }()

	report := LinkReport{Up: true, Links: make(map[string]map[int]bool, len(boxIDs))}
	for _, id := range boxIDs {
		if _, ok := m.system.ControlSystem().Box(id); !ok {
			return LinkReport{}, core.ErrNotFound{Entity: core.EntityBox, ID: id}
		}
		links, err := m.device.LinkStatus(ctx, id)
		if err != nil {
			return LinkReport{}, fmt.Errorf("link status %s: %w", id, err)
		}
		report.Links[id] = links
	}
	report.Up = len(report.Down()) == 0
	return report, nil
}

// Linkup verifies the links of boxIDs and synchronizes their clocks.
func (m *Measurement) Linkup(ctx context.Context, boxIDs []string) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "linkup", start, err) }()

	report, err := m.CheckLinkStatus(ctx, boxIDs)
	if err != nil {
		return err
	}
	if !report.Up {
		return fmt.Errorf("boxes %v: %w", report.Down(), ErrLinkDown)
	}
	if err := m.device.SyncClocks(ctx, boxIDs); err != nil {
		return fmt.Errorf("sync clocks: %w", err)
	}
	m.logger.Info("boxes linked up", zap.Strings("boxes", boxIDs))
	return nil
}
