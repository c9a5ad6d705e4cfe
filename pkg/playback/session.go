package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/scheduler"
	"github.com/james-see/polydrum/pkg/synth"
)

// Session plays patterns live: the engine is both the scheduler's clock and
// its trigger target.
type Session struct {
	engine *synth.Engine
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// NewSession creates a stopped session. The engine is initialized on the
// first Play.
func NewSession(engine *synth.Engine, logger *slog.Logger, opts ...scheduler.Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]scheduler.Option{scheduler.WithLogger(logger)}, opts...)
	return &Session{
		engine: engine,
		sched:  scheduler.New(engine, engine, opts...),
		logger: logger,
	}
}

// Engine returns the session's engine.
func (s *Session) Engine() *synth.Engine {
	return s.engine
}

// Play starts p from its first step. It fails with an AudioInitError if the
// audio device cannot be opened.
func (s *Session) Play(ctx context.Context, p *pattern.Pattern) error {
	if p == nil {
		return errors.New("no pattern to play")
	}
	if err := s.engine.Init(ctx); err != nil {
		return err
	}
	s.sched.SetPattern(p)
	s.sched.Start()
	s.logger.Info("playback started",
		"bpm", p.BPM,
		"time_signature", p.TimeSignature,
		"steps", p.TotalSteps,
		"kit", s.engine.Kit(),
	)
	return nil
}

// SetPattern swaps the pattern without restarting playback.
func (s *Session) SetPattern(p *pattern.Pattern) {
	s.sched.SetPattern(p)
}

// Stop halts scheduling. Hits already queued on the audio clock still sound.
func (s *Session) Stop() {
	s.sched.Stop()
}

// Playing reports whether the scheduler is running.
func (s *Session) Playing() bool {
	return s.sched.State() == scheduler.Playing
}

// SetKit changes the kit for subsequent hits.
func (s *Session) SetKit(kit pattern.Kit) {
	s.engine.SetKit(kit)
}

// Kit returns the current kit.
func (s *Session) Kit() pattern.Kit {
	return s.engine.Kit()
}

// StepNow returns the step currently audible, or -1 when stopped.
func (s *Session) StepNow() int {
	if !s.Playing() {
		return -1
	}
	return s.sched.StepAt(s.engine.CurrentTime())
}

// SamplesReady reports whether acoustic sample loading has finished.
func (s *Session) SamplesReady() bool {
	return s.engine.Bank().Ready()
}

// Close stops playback and releases the audio device.
func (s *Session) Close() error {
	s.sched.Stop()
	return s.engine.Teardown()
}
