package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures continuous profiling of batch runs
type ProfilerConfig struct {
	ApplicationName string
	ServerAddress   string
	Tags            map[string]string
	// Mutex and block profiles are opt-in
	MutexProfiles bool
	BlockProfiles bool
}

// Profiler pushes profiles to a Pyroscope server
type Profiler struct {
	profiler *pyroscope.Profiler
	cfg      ProfilerConfig
	logger   *zap.Logger
}

// NewProfiler starts a Pyroscope profiler
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiling server address is required")
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "utility-billing"
	}

	if cfg.MutexProfiles {
		runtime.SetMutexProfileFraction(5)
	}
	if cfg.BlockProfiles {
		runtime.SetBlockProfileRate(5)
	}

	p := &Profiler{cfg: cfg, logger: logger.Named("profiler")}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          pyroscopeLogger{l: p.logger.Sugar()},
		Tags:            cfg.Tags,
		ProfileTypes:    profileTypes(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}
	p.profiler = profiler

	p.logger.Info("Profiler started",
		zap.String("server", cfg.ServerAddress),
		zap.String("application", cfg.ApplicationName),
	)
	return p, nil
}

func profileTypes(cfg ProfilerConfig) []pyroscope.ProfileType {
	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if cfg.MutexProfiles {
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if cfg.BlockProfiles {
		types = append(types, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return types
}

// Stop flushes pending profiles and stops the profiler
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.profiler = nil
	if p.cfg.MutexProfiles {
		runtime.SetMutexProfileFraction(0)
	}
	if p.cfg.BlockProfiles {
		runtime.SetBlockProfileRate(0)
	}
	p.logger.Info("Profiler stopped")
	return nil
}

type pyroscopeLogger struct {
	l *zap.SugaredLogger
}

func (p pyroscopeLogger) Infof(format string, args ...any)  { p.l.Debugf(format, args...) }
func (p pyroscopeLogger) Debugf(format string, args ...any) { p.l.Debugf(format, args...) }
func (p pyroscopeLogger) Errorf(format string, args ...any) { p.l.Errorf(format, args...) }
