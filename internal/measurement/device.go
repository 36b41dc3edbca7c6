package measurement

import (
	"context"

	"qubecore/internal/sequence"
)

// IntegralMode selects how the capture units reduce samples.
type IntegralMode string

const (
	// IntegralSingle integrates each shot and returns one value per shot.
	IntegralSingle IntegralMode = "single"
	// IntegralAverage averages the sampled waveform over all shots.
	IntegralAverage IntegralMode = "integral"
)

// RawResult is what the device returns for one request. Data holds, per
// readout target, one series per capture slot: shot values in single mode,
// averaged samples otherwise.
type RawResult struct {
	Mode IntegralMode              `json:"mode"`
	Data map[string][][]complex128 `json:"-"`
}

// DeviceController is the physical device layer. Every call may block for a
// hardware round trip. Requests reach ExecuteSequence and ExecuteBatch with
// their Resources filled from ResourceMap.
type DeviceController interface {
	ExecuteSequence(ctx context.Context, req *sequence.Request, repeats, interval int, mode IntegralMode) (RawResult, error)
	ExecuteBatch(ctx context.Context, reqs []*sequence.Request, repeats int, mode IntegralMode) ([]RawResult, error)
	ResourceMap(ctx context.Context, labels []string) (map[string]sequence.Resource, error)
	ModifyTargetFrequencies(ctx context.Context, freqs map[string]float64) error
	LinkStatus(ctx context.Context, boxID string) (map[int]bool, error)
	SyncClocks(ctx context.Context, boxIDs []string) error
}
