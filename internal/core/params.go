package core

// Control parameter defaults.
const (
	DefaultControlAmplitude = 0.03
	DefaultReadoutAmplitude = 0.01
	DefaultControlVATT      = 3072
	DefaultReadoutVATT      = 2048
	DefaultControlFSC       = 40527
	DefaultReadoutFSC       = 40527
	DefaultCaptureDelay     = 7
)

// ControlParams carries per-qubit and per-mux drive settings. Missing entries
// fall back to the package defaults.
type ControlParams struct {
	ControlAmplitude map[string]float64 `json:"control_amplitude,omitempty"`
	ReadoutAmplitude map[string]float64 `json:"readout_amplitude,omitempty"`
	ControlVATT      map[string]int     `json:"control_vatt,omitempty"`
	ReadoutVATT      map[int]int        `json:"readout_vatt,omitempty"`
	ControlFSC       map[string]int     `json:"control_fsc,omitempty"`
	ReadoutFSC       map[int]int        `json:"readout_fsc,omitempty"`
	CaptureDelay     map[int]int        `json:"capture_delay,omitempty"`
}

func lookup[K comparable, V any](m map[K]V, k K, def V) V {
	if v, ok := m[k]; ok {
		return v
	}
	return def
}

// ControlAmplitudeOf returns the control amplitude of a qubit.
func (p ControlParams) ControlAmplitudeOf(qubit string) float64 {
	return lookup(p.ControlAmplitude, qubit, DefaultControlAmplitude)
}

// ReadoutAmplitudeOf returns the readout amplitude of a qubit.
func (p ControlParams) ReadoutAmplitudeOf(qubit string) float64 {
	return lookup(p.ReadoutAmplitude, qubit, DefaultReadoutAmplitude)
}

// ControlVATTOf returns the control port attenuator setting of a qubit.
func (p ControlParams) ControlVATTOf(qubit string) int {
	return lookup(p.ControlVATT, qubit, DefaultControlVATT)
}

// ReadoutVATTOf returns the readout port attenuator setting of a mux.
func (p ControlParams) ReadoutVATTOf(mux int) int {
	return lookup(p.ReadoutVATT, mux, DefaultReadoutVATT)
}

// ControlFSCOf returns the control port full-scale current of a qubit.
func (p ControlParams) ControlFSCOf(qubit string) int {
	return lookup(p.ControlFSC, qubit, DefaultControlFSC)
}

// ReadoutFSCOf returns the readout port full-scale current of a mux.
func (p ControlParams) ReadoutFSCOf(mux int) int {
	return lookup(p.ReadoutFSC, mux, DefaultReadoutFSC)
}

// CaptureDelayOf returns the capture delay in words of a mux.
func (p ControlParams) CaptureDelayOf(mux int) int {
	return lookup(p.CaptureDelay, mux, DefaultCaptureDelay)
}
