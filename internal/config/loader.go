// Package config loads chip, box, wiring, props and params documents from a
// directory and assembles experiment systems from them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v2"

	"qubecore/internal/core"
	"qubecore/pkg/topology"
)

// DefaultDir is used when QUBECORE_CONFIG_DIR is unset.
const DefaultDir = "./config"

// Document kinds, also the base names of the files.
const (
	KindChip   = "chip"
	KindBox    = "box"
	KindWiring = "wiring"
	KindProps  = "props"
	KindParams = "params"
)

var extensions = []string{".yaml", ".yml", ".toml"}

// NotFoundError reports a missing key in one of the documents.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in configuration", e.Kind, e.ID)
}

// DirFromEnv returns QUBECORE_CONFIG_DIR or DefaultDir.
func DirFromEnv() string {
	if dir := os.Getenv("QUBECORE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return DefaultDir
}

// Loader holds the decoded documents of one configuration directory.
type Loader struct {
	dir    string
	logger *zap.Logger

	chips  map[string]ChipDocument
	boxes  map[string]BoxDocument
	wiring map[string][]WiringDocument
	props  map[string]PropsDocument
	params map[string]ParamsDocument
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Load decodes every document in dir. The params document is optional.
func Load(dir string, opts ...Option) (*Loader, error) {
	l := &Loader{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.decode(KindChip, true, &l.chips); err != nil {
		return nil, err
	}
	if err := l.decode(KindBox, true, &l.boxes); err != nil {
		return nil, err
	}
	if err := l.decode(KindWiring, true, &l.wiring); err != nil {
		return nil, err
	}
	if err := l.decode(KindProps, true, &l.props); err != nil {
		return nil, err
	}
	if err := l.decode(KindParams, false, &l.params); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the configuration directory.
func (l *Loader) Dir() string { return l.dir }

func (l *Loader) locate(kind string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(l.dir, kind+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fs.ErrNotExist
}

func (l *Loader) decode(kind string, required bool, out any) error {
	path, err := l.locate(kind)
	if errors.Is(err, fs.ErrNotExist) {
		if required {
			return fmt.Errorf("%s document missing in %s: %w", kind, l.dir, err)
		}
		l.logger.Debug("optional document missing", zap.String("kind", kind), zap.String("dir", l.dir))
		return nil
	}
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".toml") {
		md, err := toml.DecodeFile(path, out)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.UnmarshalStrict(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	l.logger.Debug("document loaded", zap.String("kind", kind), zap.String("path", path))
	return nil
}

// ChipIDs returns every chip id in the chip document.
func (l *Loader) ChipIDs() []string {
	ids := make([]string, 0, len(l.chips))
	for id := range l.chips {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Chip returns the chip definition.
func (l *Loader) Chip(id string) (topology.Chip, error) {
	doc, ok := l.chips[id]
	if !ok {
		return topology.Chip{}, &NotFoundError{Kind: KindChip, ID: id}
	}
	return topology.Chip{ID: id, Name: doc.Name, NQubits: doc.NQubits}, nil
}

// Box builds a fresh box with default hardware values.
func (l *Loader) Box(id string) (*topology.Box, error) {
	doc, ok := l.boxes[id]
	if !ok {
		return nil, &NotFoundError{Kind: KindBox, ID: id}
	}
	bt, err := topology.ParseBoxType(doc.Type)
	if err != nil {
		return nil, &core.ConfigError{Subject: "box " + id, Reason: "invalid type", Err: err}
	}
	return topology.NewBox(id, doc.Name, bt, doc.Address, doc.Adapter)
}

// QuantumSystem builds the qubits and resonators of a chip from its props.
// Qubits without a measured value get frequency 0, which marks them undefined.
func (l *Loader) QuantumSystem(chipID string) (*topology.QuantumSystem, error) {
	chip, err := l.Chip(chipID)
	if err != nil {
		return nil, err
	}
	props, ok := l.props[chipID]
	if !ok {
		return nil, &NotFoundError{Kind: KindProps, ID: chipID}
	}
	qubits := make([]topology.Qubit, 0, chip.NQubits)
	resonators := make([]topology.Resonator, 0, chip.NQubits)
	for i := 0; i < chip.NQubits; i++ {
		label := core.QubitLabel(i)
		qubits = append(qubits, topology.Qubit{
			Label:         label,
			Index:         i,
			Frequency:     props.QubitFrequency[label],
			Anharmonicity: props.Anharmonicity[label],
		})
		resonators = append(resonators, topology.Resonator{
			Label:     "R" + label,
			Frequency: props.ResonatorFrequency[label],
			Qubit:     label,
		})
	}
	var edges []topology.Edge
	for _, pair := range l.chips[chipID].Coupling {
		if len(pair) != 2 {
			return nil, &core.ConfigError{Subject: "chip " + chipID, Reason: fmt.Sprintf("coupling %v must name two qubits", pair)}
		}
		edges = append(edges, topology.Edge{A: pair[0], B: pair[1]})
	}
	return topology.NewQuantumSystem(chip, qubits, resonators, edges)
}

// Wiring returns the resolved wiring rows of a chip.
func (l *Loader) Wiring(chipID string) (core.WiringInfo, error) {
	rows, err := l.muxWiring(chipID)
	if err != nil {
		return core.WiringInfo{}, err
	}
	return core.NewWiringInfo(rows)
}

func (l *Loader) muxWiring(chipID string) ([]core.MuxWiring, error) {
	docs, ok := l.wiring[chipID]
	if !ok {
		return nil, &NotFoundError{Kind: KindWiring, ID: chipID}
	}
	rows := make([]core.MuxWiring, 0, len(docs))
	for _, doc := range docs {
		row := core.MuxWiring{Mux: doc.Mux}
		for _, spec := range doc.Ctrl {
			ref, err := core.ParsePortRef(spec)
			if err != nil {
				return nil, err
			}
			row.Ctrl = append(row.Ctrl, ref)
		}
		var err error
		if row.ReadOut, err = core.ParsePortRef(doc.ReadOut); err != nil {
			return nil, err
		}
		if row.ReadIn, err = core.ParsePortRef(doc.ReadIn); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BoxIDs returns the boxes referenced by the wiring of a chip.
func (l *Loader) BoxIDs(chipID string) ([]string, error) {
	rows, err := l.muxWiring(chipID)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	add := func(ref core.PortRef) { seen[ref.Box] = struct{}{} }
	for _, row := range rows {
		for _, ref := range row.Ctrl {
			add(ref)
		}
		add(row.ReadOut)
		add(row.ReadIn)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ControlSystem builds the boxes wired to a chip.
func (l *Loader) ControlSystem(chipID string) (*topology.ControlSystem, error) {
	chip, ok := l.chips[chipID]
	if !ok {
		return nil, &NotFoundError{Kind: KindChip, ID: chipID}
	}
	ids, err := l.BoxIDs(chipID)
	if err != nil {
		return nil, err
	}
	boxes := make([]*topology.Box, 0, len(ids))
	for _, id := range ids {
		box, err := l.Box(id)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return topology.NewControlSystem(boxes, chip.ClockMaster)
}

// Params converts the params document of a chip. A chip without params uses
// the defaults.
func (l *Loader) Params(chipID string) (core.ControlParams, error) {
	doc, ok := l.params[chipID]
	if !ok {
		return core.ControlParams{}, nil
	}
	readoutVATT, err := muxKeys(chipID, "readout_vatt", doc.ReadoutVATT)
	if err != nil {
		return core.ControlParams{}, err
	}
	readoutFSC, err := muxKeys(chipID, "readout_fsc", doc.ReadoutFSC)
	if err != nil {
		return core.ControlParams{}, err
	}
	captureDelay, err := muxKeys(chipID, "capture_delay", doc.CaptureDelay)
	if err != nil {
		return core.ControlParams{}, err
	}
	return core.ControlParams{
		ControlAmplitude: doc.ControlAmplitude,
		ReadoutAmplitude: doc.ReadoutAmplitude,
		ControlVATT:      doc.ControlVATT,
		ReadoutVATT:      readoutVATT,
		ControlFSC:       doc.ControlFSC,
		ReadoutFSC:       readoutFSC,
		CaptureDelay:     captureDelay,
	}, nil
}

func muxKeys(chipID, field string, in map[string]int) (map[int]int, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[int]int, len(in))
	for k, v := range in {
		mux, err := strconv.Atoi(k)
		if err != nil || mux < 0 {
			return nil, &core.ConfigError{Subject: "params " + chipID, Reason: fmt.Sprintf("%s key %q is not a mux index", field, k)}
		}
		out[mux] = v
	}
	return out, nil
}

// ExperimentSystem assembles the wired, unallocated system of a chip.
func (l *Loader) ExperimentSystem(chipID string, opts ...core.SystemOption) (*core.ExperimentSystem, error) {
	qs, err := l.QuantumSystem(chipID)
	if err != nil {
		return nil, err
	}
	cs, err := l.ControlSystem(chipID)
	if err != nil {
		return nil, err
	}
	wiring, err := l.Wiring(chipID)
	if err != nil {
		return nil, err
	}
	params, err := l.Params(chipID)
	if err != nil {
		return nil, err
	}
	sys, err := core.NewExperimentSystem(qs, cs, wiring, params, opts...)
	if err != nil {
		return nil, err
	}
	l.logger.Info("experiment system loaded",
		zap.String("chip", chipID),
		zap.Int("qubits", len(qs.Qubits())),
		zap.Strings("boxes", cs.BoxIDs()),
	)
	return sys, nil
}
