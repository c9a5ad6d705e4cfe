// Package config loads polydrum settings from defaults, an optional YAML
// file and POLYDRUM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/render"
	"github.com/james-see/polydrum/pkg/scheduler"
	"github.com/james-see/polydrum/pkg/synth"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POLYDRUM_"

// SchedulerConfig holds the lookahead loop timing.
type SchedulerConfig struct {
	LookaheadMS   int     `yaml:"lookahead_ms"`
	ScheduleAhead float64 `yaml:"schedule_ahead"`
	StartEpsilon  float64 `yaml:"start_epsilon"`
}

// ExportConfig holds offline render settings.
type ExportConfig struct {
	TailSeconds float64 `yaml:"tail_seconds"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config is the complete application configuration.
type Config struct {
	SampleRate int     `yaml:"sample_rate"`
	Kit        string  `yaml:"kit"`
	SamplesDir string  `yaml:"samples_dir"`
	MasterGain float64 `yaml:"master_gain"`
	Seed       uint64  `yaml:"seed"`
	BufferMS   int     `yaml:"buffer_ms"`
	LogLevel   string  `yaml:"log_level"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Export    ExportConfig    `yaml:"export"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SampleRate: 44100,
		Kit:        string(pattern.Acoustic),
		MasterGain: 0.8,
		Seed:       1,
		BufferMS:   50,
		LogLevel:   "info",
		Scheduler: SchedulerConfig{
			LookaheadMS:   25,
			ScheduleAhead: scheduler.DefaultScheduleAhead,
			StartEpsilon:  scheduler.DefaultStartEpsilon,
		},
		Export: ExportConfig{TailSeconds: render.DefaultTail},
		Server: ServerConfig{Port: 8080},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return c.Parse(data)
}

// Parse merges YAML data into c.
func (c *Config) Parse(data []byte) error {
	if err := yaml.UnmarshalWithOptions(data, c, yaml.Strict()); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ApplyEnv overrides fields from POLYDRUM_* variables. Values that do not
// parse are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("SAMPLE_RATE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.SampleRate = n
		}
	}
	if v, ok := get("KIT"); ok {
		c.Kit = v
	}
	if v, ok := get("SAMPLES_DIR"); ok {
		c.SamplesDir = v
	}
	if v, ok := get("MASTER_GAIN"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MasterGain = f
		}
	}
	if v, ok := get("SEED"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v, ok := get("BUFFER_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.BufferMS = n
		}
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("LOOKAHEAD_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.LookaheadMS = n
		}
	}
	if v, ok := get("TAIL_SECONDS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Export.TailSeconds = f
		}
	}
	if v, ok := get("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate %d out of range 8000-192000", c.SampleRate))
	}
	if _, err := pattern.ParseKit(c.Kit); err != nil {
		errs = append(errs, err)
	}
	if c.MasterGain <= 0 || c.MasterGain > 1 {
		errs = append(errs, fmt.Errorf("master_gain %v must be in (0, 1]", c.MasterGain))
	}
	if c.BufferMS <= 0 {
		errs = append(errs, fmt.Errorf("buffer_ms %d must be positive", c.BufferMS))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.LookaheadMS <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.lookahead_ms %d must be positive", c.Scheduler.LookaheadMS))
	}
	if c.Scheduler.ScheduleAhead <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.schedule_ahead %v must be positive", c.Scheduler.ScheduleAhead))
	}
	if c.Scheduler.StartEpsilon < 0 {
		errs = append(errs, fmt.Errorf("scheduler.start_epsilon %v must not be negative", c.Scheduler.StartEpsilon))
	}
	if c.Export.TailSeconds < 0 {
		errs = append(errs, fmt.Errorf("export.tail_seconds %v must not be negative", c.Export.TailSeconds))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// KitValue returns the configured kit, defaulting to ACOUSTIC.
func (c *Config) KitValue() pattern.Kit {
	k, err := pattern.ParseKit(c.Kit)
	if err != nil {
		return pattern.Acoustic
	}
	return k
}

// SamplesFS returns the sample directory, or nil when none is configured.
func (c *Config) SamplesFS() fs.FS {
	if c.SamplesDir == "" {
		return nil
	}
	return os.DirFS(c.SamplesDir)
}

// Buffer returns the speaker buffer length.
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.BufferMS) * time.Millisecond
}

// EngineOptions returns the live engine settings.
func (c *Config) EngineOptions(logger *slog.Logger) synth.Options {
	return synth.Options{
		SampleRate: c.SampleRate,
		MasterGain: c.MasterGain,
		Seed:       c.Seed,
		Samples:    c.SamplesFS(),
		Logger:     logger,
	}
}

// RenderOptions returns the offline export settings. They match the live
// engine so exports sound like playback.
func (c *Config) RenderOptions(logger *slog.Logger) render.Options {
	return render.Options{
		SampleRate: c.SampleRate,
		Tail:       c.Export.TailSeconds,
		MasterGain: c.MasterGain,
		Seed:       c.Seed,
		Samples:    c.SamplesFS(),
		Logger:     logger,
	}
}

// SchedulerOptions returns the lookahead loop settings.
func (c *Config) SchedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithLookahead(time.Duration(c.Scheduler.LookaheadMS) * time.Millisecond),
		scheduler.WithScheduleAhead(c.Scheduler.ScheduleAhead),
		scheduler.WithStartEpsilon(c.Scheduler.StartEpsilon),
	}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
