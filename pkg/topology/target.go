package topology

import (
	"fmt"
	"strings"
)

// TargetType is the kind of drive line a target represents.
type TargetType string

const (
	TargetCtrlGE TargetType = "CTRL_GE"
	TargetCtrlEF TargetType = "CTRL_EF"
	TargetCtrlCR TargetType = "CTRL_CR"
	TargetRead   TargetType = "READ"
)

// TargetKey identifies a target without string concatenation.
type TargetKey struct {
	Type  TargetType
	Qubit string
}

// Label renders the canonical target label for the key.
func (k TargetKey) Label() string {
	switch k.Type {
	case TargetCtrlEF:
		return k.Qubit + "-ef"
	case TargetCtrlCR:
		return k.Qubit + "-CR"
	case TargetRead:
		return "R" + k.Qubit
	default:
		return k.Qubit
	}
}

func (k TargetKey) String() string { return k.Label() }

// ParseTargetLabel inverts TargetKey.Label.
func ParseTargetLabel(label string) (TargetKey, error) {
	switch {
	case label == "":
		return TargetKey{}, fmt.Errorf("empty target label")
	case strings.HasSuffix(label, "-ef"):
		return TargetKey{Type: TargetCtrlEF, Qubit: strings.TrimSuffix(label, "-ef")}, nil
	case strings.HasSuffix(label, "-CR"):
		return TargetKey{Type: TargetCtrlCR, Qubit: strings.TrimSuffix(label, "-CR")}, nil
	case strings.HasPrefix(label, "RQ"):
		return TargetKey{Type: TargetRead, Qubit: label[1:]}, nil
	default:
		return TargetKey{Type: TargetCtrlGE, Qubit: label}, nil
	}
}

// Target is a logical drive or readout line. Frequency is in GHz.
type Target struct {
	Label     string     `json:"label"`
	Frequency float64    `json:"frequency"`
	Type      TargetType `json:"type"`
	Qubit     string     `json:"qubit"`
}

// Key returns the struct key of the target.
func (t Target) Key() TargetKey { return TargetKey{Type: t.Type, Qubit: t.Qubit} }

// IsRead reports whether the target is a readout line.
func (t Target) IsRead() bool { return t.Type == TargetRead }

// IsCtrl reports whether the target is a control line.
func (t Target) IsCtrl() bool { return t.Type != TargetRead }

// NewGETarget builds the ge drive target of a qubit.
func NewGETarget(q Qubit) Target {
	return Target{Label: q.Label, Frequency: q.Frequency, Type: TargetCtrlGE, Qubit: q.Label}
}

// NewEFTarget builds the ef drive target of a qubit.
func NewEFTarget(q Qubit) Target {
	return Target{Label: q.Label + "-ef", Frequency: q.EFFrequency(), Type: TargetCtrlEF, Qubit: q.Label}
}

// NewCRTarget builds the cross-resonance target of a qubit. The frequency is
// the mean of the defined spectator ge frequencies, falling back to the
// qubit's own ge frequency.
func NewCRTarget(q Qubit, spectators []Qubit) Target {
	var sum float64
	var n int
	for _, s := range spectators {
		if s.Frequency > 0 {
			sum += s.Frequency
			n++
		}
	}
	freq := q.Frequency
	if n > 0 {
		freq = sum / float64(n)
	}
	return Target{Label: q.Label + "-CR", Frequency: freq, Type: TargetCtrlCR, Qubit: q.Label}
}

// NewReadTarget builds the readout target of a qubit's resonator.
func NewReadTarget(r Resonator) Target {
	return Target{Label: r.Label, Frequency: r.Frequency, Type: TargetRead, Qubit: r.Qubit}
}
