package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service runs configuration passes for one ExperimentSystem and persists the
// resulting settings snapshot.
type Service struct {
	system  *ExperimentSystem
	store   SettingsStore
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wraps a system. A nil store disables persistence.
func NewService(system *ExperimentSystem, store SettingsStore, opts ...ServiceOption) *Service {
	s := &Service{
		system:  system,
		store:   store,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// System returns the managed experiment system.
func (s *Service) System() *ExperimentSystem { return s.system }

// Logger returns the service logger.
func (s *Service) Logger() *zap.Logger { return s.logger }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx = ContextWithChip(ctx, s.system.ChipID())
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Warn("operation failed", zap.String("op", op), zap.String("chip", s.system.ChipID()), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		s.logger.Debug("operation completed", zap.String("op", op), zap.String("chip", s.system.ChipID()), zap.Duration("elapsed", elapsed))
	}
	return err
}

// Allocate runs the allocation pass and saves the snapshot.
func (s *Service) Allocate(ctx context.Context) (SystemSettings, error) {
	var out SystemSettings
	err := s.run(ctx, "allocate", func(ctx context.Context) error {
		var err error
		out, err = s.allocate(ctx)
		return err
	})
	return out, err
}

func (s *Service) allocate(ctx context.Context) (SystemSettings, error) {
	if err := s.system.AllocateFrequencies(); err != nil {
		return SystemSettings{}, fmt.Errorf("allocate frequencies: %w", err)
	}
	settings := s.system.Settings()
	settings.SavedAt = s.now()
	if s.store != nil {
		if err := s.store.SaveSettings(ctx, settings); err != nil {
			return SystemSettings{}, fmt.Errorf("save settings: %w", err)
		}
	}
	s.logger.Info("frequencies allocated", zap.String("chip", settings.ChipID), zap.Int("boxes", len(settings.Boxes)))
	return settings, nil
}

// LoadOrAllocate restores the stored snapshot when it was taken from the
// current system definition, otherwise allocates and saves a new one. The
// boolean reports whether the stored snapshot was used.
func (s *Service) LoadOrAllocate(ctx context.Context) (SystemSettings, bool, error) {
	var (
		out    SystemSettings
		loaded bool
	)
	err := s.run(ctx, "load_or_allocate", func(ctx context.Context) error {
		if s.store != nil {
			stored, err := s.store.LoadSettings(ctx, s.system.ChipID())
			switch {
			case err == nil:
				applyErr := s.system.ApplySettings(stored)
				if applyErr == nil {
					s.logger.Info("system settings restored", zap.String("chip", stored.ChipID), zap.Time("saved_at", stored.SavedAt))
					out, loaded = stored, true
					return nil
				}
				if !errors.Is(applyErr, ErrStaleSettings) {
					return fmt.Errorf("apply settings: %w", applyErr)
				}
				s.logger.Info("stored system settings are stale", zap.String("chip", stored.ChipID))
			case IsNotFound(err, EntitySettings):
				s.logger.Debug("no stored system settings", zap.String("chip", s.system.ChipID()))
			default:
				return fmt.Errorf("load settings: %w", err)
			}
		}
		var err error
		out, err = s.allocate(ctx)
		return err
	})
	return out, loaded, err
}

// StoredSettings returns the persisted snapshot of the chip without applying it.
func (s *Service) StoredSettings(ctx context.Context) (SystemSettings, error) {
	var out SystemSettings
	err := s.run(ctx, "stored_settings", func(ctx context.Context) error {
		if s.store == nil {
			return ErrNotFound{Entity: EntitySettings, ID: s.system.ChipID()}
		}
		var err error
		out, err = s.store.LoadSettings(ctx, s.system.ChipID())
		return err
	})
	return out, err
}
