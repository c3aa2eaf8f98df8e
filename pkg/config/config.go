// Package config loads a pipeline topology and its profiler settings from
// a file or reader via github.com/spf13/viper (spec.md §6 "Config format").
package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/cnstream-go/cnstream/pkg/profiler"
)

// StageConfig is one stage's entry in the topology file.
type StageConfig struct {
	Parallelism       int               `mapstructure:"parallelism"`
	MaxInputQueueSize int               `mapstructure:"max_input_queue_size"`
	Next              []string          `mapstructure:"next"`
	Params            map[string]string `mapstructure:"params"`
}

// ProfilerConfig mirrors profiler.PipelineConfig's on-disk shape.
type ProfilerConfig struct {
	EnableProfiling bool   `mapstructure:"enable_profiling"`
	EnableTracing   bool   `mapstructure:"enable_tracing"`
	TracerCapacity  uint64 `mapstructure:"tracer_capacity"`
	MaxDPBSize      uint64 `mapstructure:"max_dpb_size"`
}

// PipelineConfig is the root of a topology file (spec.md §6): per-stage
// knobs keyed by stage name, plus the pipeline-wide profiler and capacity
// settings.
type PipelineConfig struct {
	ProfilerConfig  ProfilerConfig         `mapstructure:"profiler_config"`
	MaxStreamNumber int                    `mapstructure:"max_stream_number"`
	MaxModuleNumber int                    `mapstructure:"max_module_number"`
	Stages          map[string]StageConfig `mapstructure:"stages"`
}

// maxModuleNumberLimit matches the 64-bit mask width enforced at build
// time (spec.md §6 "max_module_number ≤ 64").
const maxModuleNumberLimit = 64

// Load reads a topology file (format inferred from its extension: yaml,
// json, toml, ...) at path into a PipelineConfig.
func Load(path string) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return decode(v)
}

// LoadBytes parses raw config content of the given format (e.g. "yaml",
// "json") without touching the filesystem, used by tests and by callers
// that already have the content in memory.
func LoadBytes(format string, content []byte) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("config: parsing inline %s config: %w", format, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if cfg.MaxModuleNumber == 0 {
		cfg.MaxModuleNumber = maxModuleNumberLimit
	}
	if cfg.MaxModuleNumber > maxModuleNumberLimit {
		return nil, fmt.Errorf("config: max_module_number %d exceeds the %d-stage mask limit",
			cfg.MaxModuleNumber, maxModuleNumberLimit)
	}
	for name, s := range cfg.Stages {
		if s.Parallelism < 0 || s.MaxInputQueueSize < 0 {
			return nil, fmt.Errorf("config: stage %q has a negative parallelism or max_input_queue_size", name)
		}
	}
	return &cfg, nil
}

// ToProfilerConfig converts the on-disk profiler block to the runtime
// type the pipeline builder expects.
func (c *PipelineConfig) ToProfilerConfig() profiler.PipelineConfig {
	return profiler.PipelineConfig{
		EnableProfiling: c.ProfilerConfig.EnableProfiling,
		EnableTracing:   c.ProfilerConfig.EnableTracing,
		TracerCapacity:  c.ProfilerConfig.TracerCapacity,
		MaxDPBSize:      c.ProfilerConfig.MaxDPBSize,
	}
}
