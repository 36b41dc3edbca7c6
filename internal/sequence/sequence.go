// Package sequence lays out control and readout waveforms on the hardware
// sample grid and packages them as requests for the device layer.
//
// A shot is laid out as
//
//	|<- control ->|<- margin ->|<- capture ->|
//
// Control waveforms end exactly at the control/margin boundary; readout
// pulses and capture windows start at the end of the margin.
package sequence

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Timing defaults in ns.
const (
	SamplingPeriod         = 2.0
	MinDuration            = 128.0
	DefaultCaptureMargin   = 128.0
	DefaultCaptureWindow   = 1024.0
	DefaultReadoutDuration = 512.0
	DefaultInterval        = 150 * 1024.0
	ReadoutRiseTime        = 32.0
	IntervalStep           = 10240

	sampleTolerance = 1e-9
)

// ErrInvalidSequence is matched by every *ValidationError.
var ErrInvalidSequence = errors.New("invalid sequence")

// ValidationError rejects a request before anything is built.
type ValidationError struct {
	Target string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("invalid sequence: %s", e.Reason)
	}
	return fmt.Sprintf("invalid sequence: %s: %s", e.Target, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSequence }

func invalid(target, format string, args ...any) error {
	return &ValidationError{Target: target, Reason: fmt.Sprintf(format, args...)}
}

// NumberOfSamples converts a duration in ns into a sample count. The duration
// must be non-negative and within 1e-9 of a multiple of dt.
func NumberOfSamples(duration, dt float64) (int, error) {
	if dt <= 0 {
		return 0, invalid("", "sampling period must be positive, got %v", dt)
	}
	if duration < 0 {
		return 0, invalid("", "duration must not be negative, got %v ns", duration)
	}
	frac := duration / dt
	n := math.Round(frac)
	if math.Abs(frac-n) > sampleTolerance {
		return 0, invalid("", "duration %v ns is not a multiple of the sampling period %v ns", duration, dt)
	}
	return int(n), nil
}

// BackendInterval rounds the repetition spacing of a shot up to the interval
// step grid. Both arguments are in ns.
func BackendInterval(totalNS, intervalNS float64) int {
	return (int(math.Floor((totalNS+intervalNS)/IntervalStep)) + 1) * IntervalStep
}

// State is the terminal state of a build.
type State string

const (
	StateBuilt   State = "built"
	StateInvalid State = "invalid"
)

// Waveform is a complex I/Q sample buffer. A zero SamplingPeriod means the
// hardware sampling period.
type Waveform struct {
	Samples        []complex128
	SamplingPeriod float64
}

// GenSequence is the padded drive buffer of one target.
type GenSequence struct {
	Target  string       `json:"target"`
	Samples []complex128 `json:"-"`
}

// CaptureSlot describes one capture window in samples.
type CaptureSlot struct {
	PrevBlank int `json:"prev_blank"`
	Duration  int `json:"duration"`
	PostBlank int `json:"post_blank"`
}

// CapSequence lists the capture windows of one readout target.
type CapSequence struct {
	Target string        `json:"target"`
	Slots  []CaptureSlot `json:"slots"`
}

// Resource locates a target on the hardware. The capture fields are set for
// readout targets only.
type Resource struct {
	Target     string  `json:"target"`
	Box        string  `json:"box"`
	Port       int     `json:"port"`
	PortID     string  `json:"port_id"`
	Channel    string  `json:"channel"`
	CapPortID  string  `json:"cap_port_id,omitempty"`
	CapChannel string  `json:"cap_channel,omitempty"`
	Frequency  float64 `json:"frequency"`
}

// Request is one shot ready for the device layer. Lengths are in samples,
// Interval in ns. Resources is filled by the measurement layer before the
// request is handed to a device.
type Request struct {
	ID             uuid.UUID              `json:"id"`
	State          State                  `json:"state"`
	Gen            map[string]GenSequence `json:"gen"`
	Cap            map[string]CapSequence `json:"cap"`
	Resources      map[string]Resource    `json:"resources,omitempty"`
	Length         int                    `json:"length"`
	ControlLength  int                    `json:"control_length"`
	ReadoutStart   int                    `json:"readout_start"`
	Interval       int                    `json:"interval"`
	SamplingPeriod float64                `json:"sampling_period"`
}

// Targets returns every target label the request drives or captures.
func (r *Request) Targets() []string {
	set := make(map[string]struct{}, len(r.Gen)+len(r.Cap))
	for k := range r.Gen {
		set[k] = struct{}{}
	}
	for k := range r.Cap {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MissingResources lists the targets without an entry in Resources.
func (r *Request) MissingResources() []string {
	var out []string
	for _, label := range r.Targets() {
		if _, ok := r.Resources[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}

// Batch queues requests for a single flush. Order is preserved.
type Batch struct {
	mu    sync.Mutex
	queue []*Request
}

// Add appends a request to the queue.
func (b *Batch) Add(r *Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, r)
}

// Len returns the number of queued requests.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Requests hands the queued requests to the caller in FIFO order and empties the queue.
func (b *Batch) Requests() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}
