// Package render renders whole patterns offline and packages them as export
// artifacts. Offline rendering uses the same voices and master bus as live
// playback, driven by a virtual clock instead of the speaker.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/midi"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/synth"
	"github.com/james-see/polydrum/pkg/wav"
)

// Defaults for offline rendering.
const (
	DefaultSampleRate = 44100
	DefaultTail       = 2.0
	blockFrames       = 4096
)

// Options configures a Renderer.
type Options struct {
	SampleRate int
	// Tail is appended after the last step so decays ring out.
	Tail       float64
	MasterGain float64
	Seed       uint64
	Samples    fs.FS
	Logger     *slog.Logger
}

// DefaultOptions returns the standard export settings.
func DefaultOptions() Options {
	return Options{
		SampleRate: DefaultSampleRate,
		Tail:       DefaultTail,
		MasterGain: 0.8,
		Seed:       1,
	}
}

// Renderer renders patterns to audio buffers and export files.
type Renderer struct {
	opts   Options
	bank   *synth.SampleBank
	midi   *midi.Encoder
	logger *slog.Logger
}

// New creates a renderer. bank may be shared with a live engine running at
// the same sample rate; if nil, the renderer loads its own.
func New(opts Options, bank *synth.SampleBank) *Renderer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Tail < 0 {
		opts.Tail = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if bank == nil {
		bank = synth.NewSampleBank(opts.SampleRate, logger)
	}
	return &Renderer{
		opts:   opts,
		bank:   bank,
		midi:   midi.NewEncoder(),
		logger: logger,
	}
}

// SampleRate returns the output sample rate.
func (r *Renderer) SampleRate() int {
	return r.opts.SampleRate
}

// Frames returns the rendered length of p in frames: the loop plus the tail.
func (r *Renderer) Frames(p *pattern.Pattern) int {
	seconds := p.Duration() + r.opts.Tail
	return int(math.Ceil(seconds * float64(r.opts.SampleRate)))
}

// RenderPattern renders one pass of p with kit into a stereo buffer. The
// acoustic kit waits for every sample and fails if any could not be loaded.
func (r *Renderer) RenderPattern(ctx context.Context, p *pattern.Pattern, kit pattern.Kit) (*wav.Buffer, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	if !kit.Procedural() {
		r.bank.Load(context.WithoutCancel(ctx), r.opts.Samples)
		if err := r.bank.Wait(ctx); err != nil {
			if errkind.Is(err, errkind.KindResourceLoad) {
				return nil, err
			}
			return nil, fmt.Errorf("failed waiting for samples: %w", err)
		}
	}

	sr := r.opts.SampleRate
	mixer := synth.NewMixer(sr, r.opts.MasterGain)
	voices := synth.NewSynth(sr, r.opts.Seed, r.bank)
	stepDur := p.StepDuration()
	for _, n := range p.Notes {
		voices.Render(mixer, n.Instrument, kit, float64(n.Step)*stepDur, n.Velocity)
	}

	frames := r.Frames(p)
	buf := wav.NewBuffer(sr, 2, frames)
	left, right := buf.Channels[0], buf.Channels[1]
	for off := 0; off < frames; off += blockFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(off+blockFrames, frames)
		mixer.Render(left[off:end], right[off:end])
	}

	r.logger.Debug("pattern rendered",
		"kit", kit,
		"notes", len(p.Notes),
		"seconds", buf.Duration(),
	)
	return buf, nil
}

// ExportWAV renders p and encodes it as a 16-bit PCM WAV file.
func (r *Renderer) ExportWAV(ctx context.Context, p *pattern.Pattern, kit pattern.Kit) ([]byte, error) {
	buf, err := r.RenderPattern(ctx, p, kit)
	if err != nil {
		return nil, err
	}
	data, err := wav.Encode(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}
	return data, nil
}

// ExportMIDI encodes p as a Standard MIDI File.
func (r *Renderer) ExportMIDI(p *pattern.Pattern) ([]byte, error) {
	return r.midi.Encode(p)
}

func validate(p *pattern.Pattern) error {
	switch {
	case p == nil:
		return errors.New("nil pattern")
	case p.BPM <= 0 || math.IsNaN(p.BPM) || math.IsInf(p.BPM, 0):
		return fmt.Errorf("invalid bpm %v", p.BPM)
	case p.SubdivisionsPerBeat <= 0:
		return fmt.Errorf("invalid subdivisions %d", p.SubdivisionsPerBeat)
	case p.TotalSteps <= 0:
		return fmt.Errorf("invalid total steps %d", p.TotalSteps)
	}
	return nil
}
