package sequence

import (
	"math"
	"math/cmplx"
)

// RaisedCosFlatTop returns an n-sample real pulse of the given amplitude with
// raised-cosine edges of rise samples each. Rise is clamped to n/2.
func RaisedCosFlatTop(n int, amplitude float64, rise int) []complex128 {
	if n <= 0 {
		return nil
	}
	if rise < 0 {
		rise = 0
	}
	if 2*rise > n {
		rise = n / 2
	}
	out := make([]complex128, n)
	for i := range out {
		var v float64
		switch {
		case i < rise:
			v = 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(rise)))
		case i >= n-rise:
			v = 0.5 * (1 - math.Cos(math.Pi*float64(n-1-i)/float64(rise)))
		default:
			v = 1
		}
		out[i] = complex(amplitude*v, 0)
	}
	return out
}

// phaseRotation returns exp(-i*2*pi*df*t0) for df in GHz and t0 in ns.
func phaseRotation(dfGHz, t0NS float64) complex128 {
	return cmplx.Exp(complex(0, -2*math.Pi*dfGHz*t0NS))
}
