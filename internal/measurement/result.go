package measurement

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Mode is the user facing measurement mode.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeAvg    Mode = "avg"
)

// ParseMode accepts "single" and "avg".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSingle, ModeAvg:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown measure mode %q", s)
	}
}

// IntegralMode maps the measurement mode onto the capture unit mode.
func (m Mode) IntegralMode() IntegralMode {
	if m == ModeSingle {
		return IntegralSingle
	}
	return IntegralAverage
}

// kernelScale undoes the fixed-point gain of the capture units.
var kernelScale = math.Ldexp(1, -32)

// Data is the processed capture of one readout target.
type Data struct {
	Target   string
	Qubit    string
	Mode     Mode
	Raw      []complex128
	Kerneled []complex128
}

// Result groups the data of one request by qubit label.
type Result struct {
	ID   string
	Mode Mode
	Data map[string]Data
}

// Qubits returns the measured qubit labels in order.
func (r *Result) Qubits() []string {
	out := make([]string, 0, len(r.Data))
	for q := range r.Data {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// newResult reduces the first capture slot of every target. Single mode keeps
// one kerneled value per shot, avg mode a single mean.
func newResult(id string, raw RawResult, mode Mode) (*Result, error) {
	res := &Result{ID: id, Mode: mode, Data: make(map[string]Data, len(raw.Data))}
	for target, captures := range raw.Data {
		if len(captures) == 0 {
			return nil, fmt.Errorf("target %s returned no captures", target)
		}
		series := captures[0]
		d := Data{Target: target, Qubit: strings.TrimPrefix(target, "R"), Mode: mode, Raw: series}
		switch mode {
		case ModeSingle:
			d.Kerneled = make([]complex128, len(series))
			for i, v := range series {
				d.Kerneled[i] = v * complex(kernelScale, 0)
			}
		default:
			d.Kerneled = []complex128{mean(series) * complex(kernelScale, 0)}
		}
		res.Data[d.Qubit] = d
	}
	return res, nil
}

func mean(xs []complex128) complex128 {
	if len(xs) == 0 {
		return 0
	}
	var sum complex128
	for _, x := range xs {
		sum += x
	}
	return sum / complex(float64(len(xs)), 0)
}
