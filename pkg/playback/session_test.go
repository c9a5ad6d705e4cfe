package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/scheduler"
	"github.com/james-see/polydrum/pkg/synth"
)

// mockBackend implements synth.Backend for testing
type mockBackend struct {
	openErr error
	src     synth.Streamer
	closed  bool
}

func (m *mockBackend) Open(_ int, src synth.Streamer) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.src = src
	return nil
}

func (m *mockBackend) Close() error {
	m.closed = true
	return nil
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

type timers struct{ pending []func() }

func (tm *timers) after(_ time.Duration, f func()) scheduler.Timer {
	tm.pending = append(tm.pending, f)
	return manualTimer{}
}

func (tm *timers) fire() {
	tm.pending[len(tm.pending)-1]()
}

func testPattern() *pattern.Pattern {
	return &pattern.Pattern{
		BPM:                 120,
		TimeSignature:       "4/4",
		SubdivisionsPerBeat: 4,
		TotalSteps:          16,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.Snare, Step: 4, Velocity: 0.9},
		},
	}
}

func newTestSession(backend synth.Backend) (*Session, *timers) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := synth.DefaultOptions()
	opts.SampleRate = 8000
	opts.Logger = logger
	engine := synth.NewEngine(opts, backend, nil)
	tm := &timers{}
	return NewSession(engine, logger, scheduler.WithAfterFunc(tm.after)), tm
}

func TestSessionPlayback(t *testing.T) {
	backend := &mockBackend{}
	s, tm := newTestSession(backend)
	s.SetKit(pattern.Electronic)

	if s.StepNow() != -1 {
		t.Errorf("StepNow() before Play = %d, want -1", s.StepNow())
	}
	if err := s.Play(context.Background(), testPattern()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !s.Playing() {
		t.Fatal("Playing() = false after Play")
	}

	// The first step sits 100ms ahead, beyond the initial horizon, so it is
	// queued by the first timer wake-up.
	backend.src.Stream(make([][2]float64, 400))
	tm.fire()
	frames := make([][2]float64, 800)
	backend.src.Stream(frames)
	if got := s.StepNow(); got != 0 {
		t.Errorf("StepNow() = %d, want 0", got)
	}

	var peak float64
	for _, f := range frames[400:] {
		peak = max(peak, f[0], -f[0])
	}
	if peak == 0 {
		t.Error("kick at step 0 is silent")
	}

	tm.fire()
	backend.src.Stream(make([][2]float64, 800))
	if got := s.StepNow(); got != 1 {
		t.Errorf("StepNow() after 250ms = %d, want 1", got)
	}

	s.Stop()
	if s.Playing() || s.StepNow() != -1 {
		t.Error("session still playing after Stop")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !backend.closed {
		t.Error("backend not closed")
	}
}

func TestSessionAudioInitFailure(t *testing.T) {
	s, _ := newTestSession(&mockBackend{openErr: errors.New("device busy")})
	err := s.Play(context.Background(), testPattern())
	if !errkind.Is(err, errkind.KindAudioInit) {
		t.Fatalf("Play() error = %v, want audio init error", err)
	}
	if s.Playing() {
		t.Error("Playing() after failed Play")
	}
}

func TestSessionNilPattern(t *testing.T) {
	s, _ := newTestSession(&mockBackend{})
	if err := s.Play(context.Background(), nil); err == nil {
		t.Error("Play(nil) error = nil")
	}
}

func TestSessionKit(t *testing.T) {
	s, _ := newTestSession(&mockBackend{})
	if s.Kit() != pattern.Acoustic {
		t.Errorf("default kit = %v, want ACOUSTIC", s.Kit())
	}
	s.SetKit(pattern.Industrial)
	if s.Kit() != pattern.Industrial {
		t.Errorf("Kit() = %v, want INDUSTRIAL", s.Kit())
	}
}
