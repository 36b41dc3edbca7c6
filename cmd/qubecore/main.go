// Command qubecore configures control hardware for a chip, shows the stored
// system settings and checks box links.
//
//	qubecore configure [-config dir] [-chip id] [-force] [-trace] [-metrics kind] [-v]
//	qubecore show      [-chip id | -list] [-v]
//	qubecore check     [-config dir] [-chip id] [-sync] [-metrics kind] [-v]
//
// The settings backend is chosen by QUBECORE_SETTINGS_DRIVER (see internal/settings).
// With -metrics expvar or -metrics prometheus the recorded operations are
// written to stderr when the command ends.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"qubecore/internal/config"
	"qubecore/internal/core"
	"qubecore/internal/infra/device/loopback"
	"qubecore/internal/measurement"
	"qubecore/internal/settings"
)

var exitFunc = os.Exit

const usage = "usage: qubecore <configure|show|check> [flags]"

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type flags struct {
	configDir string
	chipID    string
	verbose   bool
	force     bool
	list      bool
	sync      bool
	trace     bool
	metrics   string
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd := args[0]
	fs := flag.NewFlagSet("qubecore "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f flags
	fs.StringVar(&f.chipID, "chip", "", "chip id (optional when the configuration holds a single chip)")
	fs.BoolVar(&f.verbose, "v", false, "verbose development logging")
	switch cmd {
	case "configure":
		fs.StringVar(&f.configDir, "config", config.DirFromEnv(), "configuration directory")
		fs.BoolVar(&f.force, "force", false, "reallocate even when stored settings match")
		fs.BoolVar(&f.trace, "trace", false, "write JSON trace spans to stderr")
		fs.StringVar(&f.metrics, "metrics", "", "dump operation metrics to stderr: expvar or prometheus")
	case "show":
		fs.BoolVar(&f.list, "list", false, "list chip ids with stored settings")
	case "check":
		fs.StringVar(&f.configDir, "config", config.DirFromEnv(), "configuration directory")
		fs.BoolVar(&f.sync, "sync", false, "synchronize clocks when every link is up")
		fs.StringVar(&f.metrics, "metrics", "", "dump operation metrics to stderr: expvar or prometheus")
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s\n", cmd, usage)
		return 2
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	rec, flush, err := newMetrics(f.metrics, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "qubecore %s: %v\n", cmd, err)
		return 2
	}

	logger := newLogger(stderr, f.verbose)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	switch cmd {
	case "configure":
		err = configure(ctx, f, rec, stdout, stderr, logger)
	case "show":
		err = show(ctx, f, stdout, logger)
	case "check":
		err = check(ctx, f, rec, stdout, logger)
	}
	if ferr := flush(); ferr != nil && err == nil {
		err = fmt.Errorf("write metrics: %w", ferr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "qubecore %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

// newLogger mirrors zap.NewProduction / zap.NewDevelopment but writes to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	enc := zapcore.NewJSONEncoder(encCfg)
	if verbose {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

// newMetrics returns the recorder selected by kind and a flush that writes
// its contents to w. An empty kind records nothing.
func newMetrics(kind string, w io.Writer) (core.MetricsRecorder, func() error, error) {
	switch kind {
	case "":
		return nil, func() error { return nil }, nil
	case "expvar":
		rec := core.NewExpvarMetricsRecorder("")
		return rec, func() error {
			return json.NewEncoder(w).Encode(map[string]core.ExpvarMetricsSnapshot{rec.Name(): rec.Snapshot()})
		}, nil
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return rec, func() error {
			families, err := reg.Gather()
			if err != nil {
				return err
			}
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
					return err
				}
			}
			return nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %q", kind)
	}
}

func loadSystem(f flags, logger *zap.Logger) (*config.Loader, *core.ExperimentSystem, string, error) {
	loader, err := config.Load(f.configDir, config.WithLogger(logger))
	if err != nil {
		return nil, nil, "", err
	}
	chipID := f.chipID
	if chipID == "" {
		ids := loader.ChipIDs()
		if len(ids) != 1 {
			return nil, nil, "", fmt.Errorf("-chip required: configuration defines %d chips", len(ids))
		}
		chipID = ids[0]
	}
	system, err := loader.ExperimentSystem(chipID)
	if err != nil {
		return nil, nil, "", err
	}
	return loader, system, chipID, nil
}

func configure(ctx context.Context, f flags, rec core.MetricsRecorder, stdout, stderr io.Writer, logger *zap.Logger) error {
	_, system, chipID, err := loadSystem(f, logger)
	if err != nil {
		return err
	}
	store, err := settings.Open(ctx, settings.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svcOpts := []core.ServiceOption{core.WithLogger(logger)}
	if f.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	if rec != nil {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
	}
	svc := core.NewService(system, store, svcOpts...)
	var (
		snapshot core.SystemSettings
		loaded   bool
	)
	if f.force {
		snapshot, err = svc.Allocate(ctx)
	} else {
		snapshot, loaded, err = svc.LoadOrAllocate(ctx)
	}
	if err != nil {
		return err
	}
	source := "allocated"
	if loaded {
		source = "restored"
	}
	_, _ = fmt.Fprintf(stdout, "chip %s: settings %s\n", chipID, source)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TARGET\tTYPE\tFREQUENCY\tCHANNEL\tBASE")
	for _, t := range snapshot.Targets {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.6f\t%s\t%.6f\n", t.Label, t.Type, t.Frequency, t.Channel, t.BaseFrequency)
	}
	return tw.Flush()
}

func show(ctx context.Context, f flags, stdout io.Writer, logger *zap.Logger) error {
	store, err := settings.Open(ctx, settings.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if f.list {
		ids, err := store.ListSettings(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(stdout, id)
		}
		return nil
	}
	if f.chipID == "" {
		return errors.New("-chip or -list required")
	}
	snapshot, err := store.LoadSettings(ctx, f.chipID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// check reports link state through the loopback controller, which stands in
// for box hardware until a network driver exists.
func check(ctx context.Context, f flags, rec core.MetricsRecorder, stdout io.Writer, logger *zap.Logger) error {
	loader, system, chipID, err := loadSystem(f, logger)
	if err != nil {
		return err
	}
	boxIDs, err := loader.BoxIDs(chipID)
	if err != nil {
		return err
	}
	opts := []measurement.Option{measurement.WithLogger(logger)}
	if rec != nil {
		opts = append(opts, measurement.WithMetricsRecorder(rec))
	}
	m := measurement.New(system, loopback.New(system, loopback.WithLogger(logger)), opts...)
	report, err := m.CheckLinkStatus(ctx, boxIDs)
	if err != nil {
		return err
	}
	for _, id := range boxIDs {
		state := "up"
		for _, up := range report.Links[id] {
			if !up {
				state = "down"
				break
			}
		}
		_, _ = fmt.Fprintf(stdout, "%s\t%s\n", id, state)
	}
	if !report.Up {
		return fmt.Errorf("boxes %v: %w", report.Down(), measurement.ErrLinkDown)
	}
	if f.sync {
		if err := m.Linkup(ctx, boxIDs); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "clocks synchronized for %d boxes\n", len(boxIDs))
	}
	return nil
}
