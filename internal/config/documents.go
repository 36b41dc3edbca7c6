package config

// ChipDocument is one entry of the chip document, keyed by chip id.
type ChipDocument struct {
	Name        string     `yaml:"name" toml:"name"`
	NQubits     int        `yaml:"n_qubits" toml:"n_qubits"`
	ClockMaster string     `yaml:"clock_master,omitempty" toml:"clock_master"`
	Coupling    [][]string `yaml:"coupling,omitempty" toml:"coupling"`
}

// BoxDocument is one entry of the box document, keyed by box id.
type BoxDocument struct {
	Name    string `yaml:"name" toml:"name"`
	Type    string `yaml:"type" toml:"type"`
	Address string `yaml:"address" toml:"address"`
	Adapter string `yaml:"adapter" toml:"adapter"`
}

// WiringDocument is one mux row of the wiring document. Ports are written as
// "BOX-number".
type WiringDocument struct {
	Mux     int      `yaml:"mux" toml:"mux"`
	Ctrl    []string `yaml:"ctrl" toml:"ctrl"`
	ReadOut string   `yaml:"read_out" toml:"read_out"`
	ReadIn  string   `yaml:"read_in" toml:"read_in"`
}

// PropsDocument carries measured chip properties in GHz, keyed by qubit label.
type PropsDocument struct {
	ResonatorFrequency map[string]float64 `yaml:"resonator_frequency" toml:"resonator_frequency"`
	QubitFrequency     map[string]float64 `yaml:"qubit_frequency" toml:"qubit_frequency"`
	Anharmonicity      map[string]float64 `yaml:"anharmonicity" toml:"anharmonicity"`
}

// ParamsDocument carries drive settings. Qubit maps are keyed by label, mux
// maps by the decimal mux index.
type ParamsDocument struct {
	ControlAmplitude map[string]float64 `yaml:"control_amplitude" toml:"control_amplitude"`
	ReadoutAmplitude map[string]float64 `yaml:"readout_amplitude" toml:"readout_amplitude"`
	ControlVATT      map[string]int     `yaml:"control_vatt" toml:"control_vatt"`
	ReadoutVATT      map[string]int     `yaml:"readout_vatt" toml:"readout_vatt"`
	ControlFSC       map[string]int     `yaml:"control_fsc" toml:"control_fsc"`
	ReadoutFSC       map[string]int     `yaml:"readout_fsc" toml:"readout_fsc"`
	CaptureDelay     map[string]int     `yaml:"capture_delay" toml:"capture_delay"`
}
