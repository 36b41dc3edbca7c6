// Package allocator searches the LO/NCO register grids for the values that
// realise requested drive and readout frequencies.
//
// Inputs are in GHz, results are register values in Hz. The searches are
// exhaustive over small grids; the first minimum in iteration order wins.
package allocator

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoCandidate reports an empty LO or FNCO search range.
	ErrNoCandidate = errors.New("allocator: no candidate in search range")
	// ErrUnsupportedChannelCount reports a control port that has neither 1 nor 3 channels.
	ErrUnsupportedChannelCount = errors.New("allocator: unsupported channel count")
)

// Error annotates an allocation failure with the operation and target.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReadoutGrid bounds the readout search. All values are in Hz.
type ReadoutGrid struct {
	LOMin   int64
	LOMax   int64
	LOStep  int64
	CNCO    int64
	FNCOMin int64
	FNCOMax int64
	NCOStep int64
}

// DefaultReadoutGrid returns the grid of the readout ports.
func DefaultReadoutGrid() ReadoutGrid {
	return ReadoutGrid{
		LOMin:   8_000_000_000,
		LOMax:   11_000_000_000,
		LOStep:  500_000_000,
		CNCO:    1_500_000_000,
		FNCOMin: -234_375_000,
		FNCOMax: 234_375_000,
		NCOStep: 23_437_500,
	}
}

// ControlGrid bounds the control search. All values are in Hz.
type ControlGrid struct {
	LOMin   int64
	LOMax   int64
	LOStep  int64
	CNCO    int64
	FNCOMin int64
	FNCOMax int64
	NCOStep int64
	// MaxDiff is the widest spread of lines one LO image band can center.
	MaxDiff int64
}

// DefaultControlGrid returns the grid of the control ports.
func DefaultControlGrid() ControlGrid {
	return ControlGrid{
		LOMin:   8_000_000_000,
		LOMax:   11_000_000_000,
		LOStep:  500_000_000,
		CNCO:    2_250_000_000,
		FNCOMin: -750_000_000,
		FNCOMax: 750_000_000,
		NCOStep: 23_437_500,
		MaxDiff: 2_000_000_000,
	}
}

// ReadoutResult holds the register values of one readout mux. The sideband is always upper.
type ReadoutResult struct {
	LO     int64
	CNCO   int64
	FNCO   int64
	Target float64 // Hz
}

// ControlResult holds the register values of one control port. FNCO is
// indexed ge, ef, cr; the sideband is always lower.
type ControlResult struct {
	LO     int64
	CNCO   int64
	FNCO   [3]int64
	Target float64 // Hz
}

// gridPoints enumerates min, min+step, ... while <= max. A non-positive step
// or min > max yields nothing.
func gridPoints(min, max, step int64) []int64 {
	if step <= 0 || min > max {
		return nil
	}
	out := make([]int64, 0, (max-min)/step+1)
	for v := min; v <= max; v += step {
		out = append(out, v)
	}
	return out
}

// FindReadoutLONCO centers a readout mux. The target is the midpoint of the
// extreme resonator frequencies.
func FindReadoutLONCO(freqsGHz []float64, grid ReadoutGrid) (ReadoutResult, error) {
	const op = "find readout lo/nco"
	if len(freqsGHz) == 0 {
		return ReadoutResult{}, &Error{Op: op, Err: fmt.Errorf("%w: no resonator frequencies", ErrNoCandidate)}
	}
	fmax, fmin := math.Inf(-1), math.Inf(1)
	for _, f := range freqsGHz {
		hz := f * 1e9
		fmax = math.Max(fmax, hz)
		fmin = math.Min(fmin, hz)
	}
	target := (fmax + fmin) / 2

	los := gridPoints(grid.LOMin, grid.LOMax, grid.LOStep)
	fncos := gridPoints(grid.FNCOMin, grid.FNCOMax, grid.NCOStep)
	if len(los) == 0 || len(fncos) == 0 {
		return ReadoutResult{}, &Error{Op: op, Err: ErrNoCandidate}
	}
	minDiff := math.Inf(1)
	var best ReadoutResult
	for _, lo := range los {
		for _, fnco := range fncos {
			diff := math.Abs(float64(lo+grid.CNCO+fnco) - target)
			if diff < minDiff {
				minDiff = diff
				best = ReadoutResult{LO: lo, CNCO: grid.CNCO, FNCO: fnco}
			}
		}
	}
	best.Target = target
	return best, nil
}

// ControlCenterFrequency returns the frequency in Hz the LO of a control port
// is centered on. Inputs are in GHz; non-positive lines are undefined.
func ControlCenterFrequency(ge, ef, cr float64, nChannels int, maxDiff int64) (float64, error) {
	fge, fef, fcr := ge*1e9, ef*1e9, cr*1e9
	switch nChannels {
	case 1:
		if fge > 0 {
			return fge, nil
		}
		return fcr, nil
	case 3:
		var present []float64
		for _, f := range []float64{fge, fef, fcr} {
			if f > 0 {
				present = append(present, f)
			}
		}
		if len(present) == 0 {
			return 0, nil
		}
		fmax, fmin := present[0], present[0]
		for _, f := range present[1:] {
			fmax = math.Max(fmax, f)
			fmin = math.Min(fmin, f)
		}
		if fmax-fmin > float64(maxDiff) {
			// Only two lines fit in one image band: ge/cr when cr sits just above ge, else ge/ef.
			if fge < fcr && fcr < fge+float64(maxDiff) {
				return (fge + fcr) / 2, nil
			}
			return (fge + fef) / 2, nil
		}
		return (fmax + fmin) / 2, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, nChannels)
	}
}

// FindControlLONCO selects the shared LO of a control port and one FNCO per
// line. One-channel ports only carry ge and return zero ef and cr FNCOs.
func FindControlLONCO(ge, ef, cr float64, nChannels int, grid ControlGrid) (ControlResult, error) {
	const op = "find control lo/nco"
	target, err := ControlCenterFrequency(ge, ef, cr, nChannels, grid.MaxDiff)
	if err != nil {
		return ControlResult{}, &Error{Op: op, Err: err}
	}

	los := gridPoints(grid.LOMin, grid.LOMax, grid.LOStep)
	if len(los) == 0 {
		return ControlResult{}, &Error{Op: op, Err: fmt.Errorf("%w: lo", ErrNoCandidate)}
	}
	minDiff := math.Inf(1)
	var bestLO int64
	for _, lo := range los {
		diff := math.Abs(float64(lo-grid.CNCO) - target)
		if diff < minDiff {
			minDiff = diff
			bestLO = lo
		}
	}

	fncos := gridPoints(grid.FNCOMin, grid.FNCOMax, grid.NCOStep)
	if len(fncos) == 0 {
		return ControlResult{}, &Error{Op: op, Err: fmt.Errorf("%w: fnco", ErrNoCandidate)}
	}
	findFNCO := func(f float64) int64 {
		minDiff := math.Inf(1)
		var best int64
		for _, fnco := range fncos {
			value := math.Abs(float64(bestLO - grid.CNCO - fnco))
			diff := math.Abs(value - f)
			if diff < minDiff {
				minDiff = diff
				best = fnco
			}
		}
		return best
	}

	res := ControlResult{LO: bestLO, CNCO: grid.CNCO, Target: target}
	res.FNCO[0] = findFNCO(ge * 1e9)
	if nChannels == 1 {
		return res, nil
	}
	res.FNCO[1] = findFNCO(ef * 1e9)
	res.FNCO[2] = findFNCO(cr * 1e9)
	return res, nil
}
