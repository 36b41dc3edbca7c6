// Package loopback provides an in-process device controller that routes every
// readout drive straight back into its capture channel.
package loopback

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"qubecore/internal/core"
	"qubecore/internal/measurement"
	"qubecore/internal/sequence"
)

// gain matches the fixed-point scale of real capture units.
var gain = complex(math.Ldexp(1, 32), 0)

// Device is a DeviceController without hardware.
type Device struct {
	system *core.ExperimentSystem
	logger *zap.Logger

	mu          sync.Mutex
	frequencies map[string]float64
	linkDown    map[string]map[int]bool
	synced      []string
	executed    int
}

var _ measurement.DeviceController = (*Device)(nil)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a loopback device for system.
func New(system *core.ExperimentSystem, opts ...Option) *Device {
	d := &Device{
		system:      system,
		logger:      zap.NewNop(),
		frequencies: map[string]float64{},
		linkDown:    map[string]map[int]bool{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLinkDown marks a port of a box as unlinked.
func (d *Device) SetLinkDown(boxID string, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.linkDown[boxID] == nil {
		d.linkDown[boxID] = map[int]bool{}
	}
	d.linkDown[boxID][port] = true
}

// Frequencies returns the frequencies last programmed per target.
func (d *Device) Frequencies() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.frequencies))
	for k, v := range d.frequencies {
		out[k] = v
	}
	return out
}

// Synced returns the boxes of the last clock synchronization.
func (d *Device) Synced() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.synced...)
}

// Executed returns the number of requests run so far.
func (d *Device) Executed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.executed
}

// ExecuteSequence loops the readout drive of every capture target back.
func (d *Device) ExecuteSequence(ctx context.Context, req *sequence.Request, repeats, interval int, mode measurement.IntegralMode) (measurement.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return measurement.RawResult{}, err
	}
	if repeats <= 0 {
		return measurement.RawResult{}, fmt.Errorf("repeats must be positive, got %d", repeats)
	}
	if float64(interval) < float64(req.Length)*req.SamplingPeriod {
		return measurement.RawResult{}, fmt.Errorf("interval %d ns shorter than sequence", interval)
	}
	if missing := req.MissingResources(); len(missing) > 0 {
		return measurement.RawResult{}, fmt.Errorf("request %s has no resources for %v", req.ID, missing)
	}
	for label := range req.Gen {
		if _, _, err := d.system.GenChannel(label); err != nil {
			return measurement.RawResult{}, fmt.Errorf("target %s has no generator: %w", label, err)
		}
	}
	out := measurement.RawResult{Mode: mode, Data: make(map[string][][]complex128, len(req.Cap))}
	for label, cs := range req.Cap {
		if _, _, err := d.system.CapChannel(label); err != nil {
			return measurement.RawResult{}, fmt.Errorf("target %s has no capture unit: %w", label, err)
		}
		drive := req.Gen[label].Samples
		series := make([][]complex128, 0, len(cs.Slots))
		offset := 0
		for _, slot := range cs.Slots {
			offset += slot.PrevBlank
			window := make([]complex128, slot.Duration)
			for i := range window {
				if j := offset + i; j < len(drive) {
					window[i] = drive[j] * gain
				}
			}
			offset += slot.Duration + slot.PostBlank
			if mode == measurement.IntegralSingle {
				series = append(series, repeat(average(window), repeats))
			} else {
				series = append(series, window)
			}
		}
		out.Data[label] = series
	}

	d.mu.Lock()
	d.executed++
	d.mu.Unlock()
	d.logger.Debug("loopback executed", zap.String("id", req.ID.String()), zap.Int("repeats", repeats), zap.Int("interval", interval))
	return out, nil
}

// ExecuteBatch runs the requests in order, each with its own interval.
func (d *Device) ExecuteBatch(ctx context.Context, reqs []*sequence.Request, repeats int, mode measurement.IntegralMode) ([]measurement.RawResult, error) {
	out := make([]measurement.RawResult, 0, len(reqs))
	for i, req := range reqs {
		raw, err := d.ExecuteSequence(ctx, req, repeats, req.Interval, mode)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// ResourceMap resolves every label to its bound channels.
func (d *Device) ResourceMap(_ context.Context, labels []string) (map[string]sequence.Resource, error) {
	out := make(map[string]sequence.Resource, len(labels))
	for _, label := range labels {
		target, err := d.system.Target(label)
		if err != nil {
			return nil, err
		}
		port, ch, err := d.system.GenChannel(label)
		if err != nil {
			return nil, err
		}
		r := sequence.Resource{
			Target:    label,
			Box:       port.BoxID(),
			Port:      port.Number(),
			PortID:    port.PortID(),
			Channel:   ch.ID,
			Frequency: target.Frequency,
		}
		if target.IsRead() {
			capPort, capCh, err := d.system.CapChannel(label)
			if err != nil {
				return nil, err
			}
			r.CapPortID = capPort.PortID()
			r.CapChannel = capCh.ID
		}
		out[label] = r
	}
	return out, nil
}

// ModifyTargetFrequencies records the frequencies as programmed.
func (d *Device) ModifyTargetFrequencies(_ context.Context, freqs map[string]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for label, f := range freqs {
		d.frequencies[label] = f
	}
	return nil
}

// LinkStatus reports every port of the box as linked unless marked down.
func (d *Device) LinkStatus(_ context.Context, boxID string) (map[int]bool, error) {
	box, ok := d.system.ControlSystem().Box(boxID)
	if !ok {
		return nil, core.ErrNotFound{Entity: core.EntityBox, ID: boxID}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int]bool, len(box.Ports))
	for _, p := range box.Ports {
		out[p.Number()] = !d.linkDown[boxID][p.Number()]
	}
	return out, nil
}

// SyncClocks records the synchronized boxes.
func (d *Device) SyncClocks(_ context.Context, boxIDs []string) error {
	for _, id := range boxIDs {
		if _, ok := d.system.ControlSystem().Box(id); !ok {
			return core.ErrNotFound{Entity: core.EntityBox, ID: id}
		}
	}
	synced := append([]string(nil), boxIDs...)
	sort.Strings(synced)
	d.mu.Lock()
	d.synced = synced
	d.mu.Unlock()
	d.logger.Info("clocks synchronized", zap.Strings("boxes", synced), zap.String("master", d.system.ControlSystem().ClockMasterAddress()))
	return nil
}

func average(xs []complex128) complex128 {
	if len(xs) == 0 {
		return 0
	}
	var sum complex128
	for _, x := range xs {
		sum += x
	}
	return sum / complex(float64(len(xs)), 0)
}

func repeat(v complex128, n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = v
	}
	return out
}
