package core

import (
	"context"
	"fmt"
	"time"

	"qubecore/pkg/topology"
)

// ChannelSettings is the persisted hardware state of one channel.
type ChannelSettings struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	FNCOFreq int64  `json:"fnco_freq"`
	NWait    int    `json:"nwait,omitempty"`
	NDelay   int    `json:"ndelay,omitempty"`
}

// PortSettings is the persisted hardware state of one port.
type PortSettings struct {
	ID               string            `json:"id"`
	Number           int               `json:"number"`
	Type             topology.PortType `json:"type"`
	Sideband         topology.Sideband `json:"sideband,omitempty"`
	LOFreq           int64             `json:"lo_freq,omitempty"`
	CNCOFreq         int64             `json:"cnco_freq,omitempty"`
	VATT             int               `json:"vatt,omitempty"`
	FullscaleCurrent int               `json:"fullscale_current,omitempty"`
	RFSwitch         string            `json:"rfswitch,omitempty"`
	Channels         []ChannelSettings `json:"channels,omitempty"`
}

// BoxSettings is the persisted definition and state of one box.
type BoxSettings struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Type    topology.BoxType `json:"type"`
	Address string           `json:"address"`
	Adapter string           `json:"adapter"`
	Ports   []PortSettings   `json:"ports"`
}

// TargetSettings records a target, its channel and the realised frequency.
type TargetSettings struct {
	Label         string              `json:"label"`
	Type          topology.TargetType `json:"type"`
	Qubit         string              `json:"qubit"`
	Frequency     float64             `json:"frequency"`
	Channel       string              `json:"channel,omitempty"`
	BaseFrequency float64             `json:"base_frequency,omitempty"`
}

// SystemSettings is the snapshot persisted after a configuration pass, keyed by chip id.
type SystemSettings struct {
	ChipID      string           `json:"chip_id"`
	State       SystemState      `json:"state"`
	ClockMaster string           `json:"clock_master"`
	Boxes       []BoxSettings    `json:"boxes"`
	Targets     []TargetSettings `json:"targets"`
	SavedAt     time.Time        `json:"saved_at"`
}

// SettingsStore persists SystemSettings snapshots. LoadSettings returns
// ErrNotFound{Entity: EntitySettings} when no snapshot exists for the chip.
type SettingsStore interface {
	LoadSettings(ctx context.Context, chipID string) (SystemSettings, error)
	SaveSettings(ctx context.Context, settings SystemSettings) error
	ListSettings(ctx context.Context) ([]string, error)
}

// Settings captures the current hardware values as a snapshot.
func (s *ExperimentSystem) Settings() SystemSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := SystemSettings{
		ChipID:      s.ChipID(),
		State:       s.state,
		ClockMaster: s.cs.ClockMasterAddress(),
	}
	for _, box := range s.cs.Boxes() {
		bs := BoxSettings{ID: box.ID, Name: box.Name, Type: box.Type, Address: box.Address, Adapter: box.Adapter}
		for _, port := range box.Ports {
			ps := PortSettings{ID: port.PortID(), Number: port.Number(), Type: port.Type()}
			switch p := port.(type) {
			case *topology.GenPort:
				ps.Sideband = p.Sideband
				ps.LOFreq = p.LOFreq
				ps.CNCOFreq = p.CNCOFreq
				ps.VATT = p.VATT
				ps.FullscaleCurrent = p.FullscaleCurrent
				ps.RFSwitch = p.RFSwitch
				for _, ch := range p.Channels {
					ps.Channels = append(ps.Channels, ChannelSettings{ID: ch.ID, Number: ch.Number, FNCOFreq: ch.FNCOFreq, NWait: ch.NWait})
				}
			case *topology.CapPort:
				ps.LOFreq = p.LOFreq
				ps.CNCOFreq = p.CNCOFreq
				ps.RFSwitch = p.RFSwitch
				for _, ch := range p.Channels {
					ps.Channels = append(ps.Channels, ChannelSettings{ID: ch.ID, Number: ch.Number, FNCOFreq: ch.FNCOFreq, NDelay: ch.NDelay})
				}
			}
			bs.Ports = append(bs.Ports, ps)
		}
		out.Boxes = append(out.Boxes, bs)
	}
	for _, t := range s.targets {
		ts := TargetSettings{Label: t.Label, Type: t.Type, Qubit: t.Qubit, Frequency: t.Frequency}
		if b, ok := s.genMap[t.Key()]; ok {
			ts.Channel = b.channel.ID
			ts.BaseFrequency = float64(b.port.BaseFrequency(b.channel)) * 1e-9
		}
		out.Targets = append(out.Targets, ts)
	}
	return out
}

// ApplySettings restores hardware values from a snapshot. Snapshots taken
// from a different system definition are rejected with ErrStaleSettings.
func (s *ExperimentSystem) ApplySettings(settings SystemSettings) error {
	if settings.ChipID != s.ChipID() || !settings.State.Matches(s.state) {
		return fmt.Errorf("chip %s: %w", settings.ChipID, ErrStaleSettings)
	}
	ports := make(map[string]PortSettings)
	for _, b := range settings.Boxes {
		for _, p := range b.Ports {
			ports[p.ID] = p
		}
	}
	// Validate every port first so a bad snapshot changes nothing.
	for _, box := range s.cs.Boxes() {
		for _, port := range box.Ports {
			if _, ok := port.(*topology.NAPort); ok {
				continue
			}
			ps, ok := ports[port.PortID()]
			if !ok {
				return configErrorf(port.PortID(), "missing from settings snapshot")
			}
			want := 0
			switch p := port.(type) {
			case *topology.GenPort:
				want = len(p.Channels)
			case *topology.CapPort:
				want = len(p.Channels)
			}
			if len(ps.Channels) != want || ps.Type != port.Type() {
				return configErrorf(port.PortID(), "settings snapshot does not match port layout")
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, box := range s.cs.Boxes() {
		for _, port := range box.Ports {
			ps := ports[port.PortID()]
			switch p := port.(type) {
			case *topology.GenPort:
				p.Sideband = ps.Sideband
				p.LOFreq = ps.LOFreq
				p.CNCOFreq = ps.CNCOFreq
				p.VATT = ps.VATT
				p.FullscaleCurrent = ps.FullscaleCurrent
				p.RFSwitch = ps.RFSwitch
				for i, ch := range p.Channels {
					ch.FNCOFreq = ps.Channels[i].FNCOFreq
					ch.NWait = ps.Channels[i].NWait
				}
			case *topology.CapPort:
				p.LOFreq = ps.LOFreq
				p.CNCOFreq = ps.CNCOFreq
				p.RFSwitch = ps.RFSwitch
				for i, ch := range p.Channels {
					ch.FNCOFreq = ps.Channels[i].FNCOFreq
					ch.NDelay = ps.Channels[i].NDelay
				}
			}
		}
	}
	return nil
}
