// Package synth renders drum hits. Voices are small node graphs (oscillators,
// noise, filters, waveshapers, compressors) mixed sample by sample, so the
// same code drives the live speaker and offline export.
package synth

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/pattern"
)

// Streamer is pulled by a backend for the next block of stereo frames.
type Streamer interface {
	Stream(samples [][2]float64)
}

// Backend is an audio output device.
type Backend interface {
	Open(sampleRate int, src Streamer) error
	Close() error
}

// Options configures an Engine.
type Options struct {
	SampleRate int
	MasterGain float64
	Seed       uint64
	// Samples holds the acoustic kit recordings. Nil leaves that kit silent.
	Samples fs.FS
	Logger  *slog.Logger
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		SampleRate: 44100,
		MasterGain: 0.8,
		Seed:       1,
	}
}

// Engine is the live sound engine. It owns the current kit, the sample bank
// and the active mixer; all access goes through its methods.
type Engine struct {
	mu      sync.RWMutex
	opts    Options
	logger  *slog.Logger
	backend Backend
	bank    *SampleBank

	kit     pattern.Kit
	mixer   *Mixer
	synth   *Synth
	running bool
}

// NewEngine creates a stopped engine. bank may be shared with an offline
// renderer; if nil, a new one is created.
func NewEngine(opts Options, backend Backend, bank *SampleBank) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultOptions().SampleRate
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if bank == nil {
		bank = NewSampleBank(opts.SampleRate, logger)
	}
	return &Engine{
		opts:    opts,
		logger:  logger,
		backend: backend,
		bank:    bank,
		kit:     pattern.Acoustic,
	}
}

// Init opens the audio backend and starts loading samples in the
// background. It returns once the destination exists; samples may still be
// loading. Calling Init on a running engine is a no-op.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	if e.backend == nil {
		return errkind.AudioInit(errors.New("no audio backend"), "failed to initialize audio")
	}

	mixer := NewMixer(e.opts.SampleRate, e.opts.MasterGain)
	if err := e.backend.Open(e.opts.SampleRate, mixer); err != nil {
		return errkind.AudioInit(err, "failed to open audio backend")
	}

	e.mixer = mixer
	e.synth = NewSynth(e.opts.SampleRate, e.opts.Seed, e.bank)
	e.running = true
	// The bank loads once and may be shared, so teardown must not abort it.
	e.bank.Load(context.WithoutCancel(ctx), e.opts.Samples)

	e.logger.Info("audio engine started", "sample_rate", e.opts.SampleRate, "kit", e.kit)
	return nil
}

// Teardown closes the backend. It is safe to call more than once.
func (e *Engine) Teardown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	e.mixer = nil
	e.synth = nil
	e.logger.Info("audio engine stopped")
	return e.backend.Close()
}

// SetKit selects the kit used for subsequent triggers.
func (e *Engine) SetKit(kit pattern.Kit) {
	e.mu.Lock()
	e.kit = kit
	e.mu.Unlock()
	e.logger.Debug("kit selected", "kit", kit)
}

// Kit returns the selected kit.
func (e *Engine) Kit() pattern.Kit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.kit
}

// Bank returns the engine's sample bank.
func (e *Engine) Bank() *SampleBank {
	return e.bank
}

// Running reports whether Init succeeded and Teardown has not been called.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Trigger plays inst at the absolute audio time at. It is a no-op before
// Init and for acoustic samples that have not loaded yet.
func (e *Engine) Trigger(inst pattern.Instrument, at, velocity float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		return
	}
	e.synth.Render(e.mixer, inst, e.kit, at, velocity)
}

// CurrentTime returns the audio clock in seconds, or 0 before Init.
func (e *Engine) CurrentTime() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.mixer == nil {
		return 0
	}
	return e.mixer.CurrentTime()
}
