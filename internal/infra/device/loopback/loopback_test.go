package loopback

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"qubecore/internal/core"
	"qubecore/internal/core/coretest"
	"qubecore/internal/measurement"
	"qubecore/internal/sequence"
)

func newRequest(t *testing.T, d *Device, sys *core.ExperimentSystem) *sequence.Request {
	t.Helper()
	req, err := sequence.NewBuilder(sys).Build(map[string]sequence.Waveform{
		"Q00": {Samples: []complex128{1}},
	}, sequence.Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Resources, err = d.ResourceMap(context.Background(), req.Targets()); err != nil {
		t.Fatalf("resource map: %v", err)
	}
	return req
}

func TestExecuteSequenceValidatesArguments(t *testing.T) {
	sys := coretest.NewAllocatedSystem(t)
	d := New(sys)
	req := newRequest(t, d, sys)
	ctx := context.Background()

	if _, err := d.ExecuteSequence(ctx, req, 0, req.Interval, measurement.IntegralAverage); err == nil {
		t.Fatalf("expected repeats error")
	}
	if _, err := d.ExecuteSequence(ctx, req, 1, 1, measurement.IntegralAverage); err == nil {
		t.Fatalf("expected interval error")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.ExecuteSequence(cancelled, req, 1, req.Interval, measurement.IntegralAverage); err == nil {
		t.Fatalf("expected context error")
	}
	bare := *req
	bare.Resources = nil
	if _, err := d.ExecuteSequence(ctx, &bare, 1, req.Interval, measurement.IntegralAverage); err == nil {
		t.Fatalf("expected missing resources error")
	}
	if d.Executed() != 0 {
		t.Fatalf("rejected requests must not count as executed")
	}

	raw, err := d.ExecuteSequence(ctx, req, 3, req.Interval, measurement.IntegralSingle)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := raw.Data["RQ00"]; len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("expected one slot with three shots, got %v", got)
	}
	if d.Executed() != 1 {
		t.Fatalf("expected one execution, got %d", d.Executed())
	}
}

func TestLinksAndClocks(t *testing.T) {
	ctx := context.Background()
	d := New(coretest.NewAllocatedSystem(t))
	d.SetLinkDown("A", 1)

	links, err := d.LinkStatus(ctx, "A")
	if err != nil {
		t.Fatalf("link status: %v", err)
	}
	if links[1] || !links[2] {
		t.Fatalf("unexpected links %v", links)
	}
	if _, err := d.LinkStatus(ctx, "Z"); !core.IsNotFound(err, core.EntityBox) {
		t.Fatalf("expected box not found, got %v", err)
	}
	if err := d.SyncClocks(ctx, []string{"B", "A"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !reflect.DeepEqual(d.Synced(), []string{"A", "B"}) {
		t.Fatalf("unexpected synced boxes %v", d.Synced())
	}
	if err := d.SyncClocks(ctx, []string{"Z"}); err == nil {
		t.Fatalf("expected unknown box error")
	}
}

func TestResourceMapCoversReadoutCapture(t *testing.T) {
	d := New(coretest.NewAllocatedSystem(t))
	res, err := d.ResourceMap(context.Background(), []string{"Q00", "RQ00"})
	if err != nil {
		t.Fatalf("resource map: %v", err)
	}
	if r := res["Q00"]; r.Box != "A" || r.Port != 2 || r.CapPortID != "" {
		t.Fatalf("unexpected ctrl resource %+v", r)
	}
	if r := res["RQ00"]; r.Port != 1 || r.CapPortID == "" || r.CapChannel == "" {
		t.Fatalf("readout resource should name its capture channel: %+v", r)
	}
	if _, err := d.ResourceMap(context.Background(), []string{"Q05-ef"}); !errors.Is(err, core.ErrTargetNotFound) {
		t.Fatalf("expected unbound target error, got %v", err)
	}
}

func TestModifyTargetFrequenciesIsCopied(t *testing.T) {
	d := New(coretest.NewAllocatedSystem(t))
	if err := d.ModifyTargetFrequencies(context.Background(), map[string]float64{"Q00": 7.6}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	got := d.Frequencies()
	got["Q00"] = 0
	if d.Frequencies()["Q00"] != 7.6 {
		t.Fatalf("frequencies map leaked to callers")
	}
}
