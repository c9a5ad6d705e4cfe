package synth

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/james-see/polydrum/pkg/pattern"
)

const (
	noiseSeconds = 2.0
	// voiceTail lets filters ring out after the sources stop.
	voiceTail = 0.05

	detuneCents     = 10.0
	sampleAttack    = 0.002
	sampleRelease   = 3.0
	distortionDrive = 400.0
)

// Synth builds voice graphs for notes. Its noise buffer and detune
// generator are seeded, so two Synths with the same seed render identical
// audio for identical triggers.
type Synth struct {
	sampleRate int
	bank       *SampleBank
	noise      []float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynth creates a synth. bank may be nil, in which case the acoustic kit
// is silent.
func NewSynth(sampleRate int, seed uint64, bank *SampleBank) *Synth {
	noiseRng := rand.New(rand.NewPCG(seed, 0x6e6f697365))
	noise := make([]float32, int(float64(sampleRate)*noiseSeconds))
	for i := range noise {
		noise[i] = float32(noiseRng.Float64()*2 - 1)
	}
	return &Synth{
		sampleRate: sampleRate,
		bank:       bank,
		noise:      noise,
		rng:        rand.New(rand.NewPCG(seed, 0x646574756e65)),
	}
}

// Render connects the voice for one note to g. Hits scheduled in the past
// play immediately.
func (s *Synth) Render(g Graph, inst pattern.Instrument, kit pattern.Kit, at, velocity float64) {
	if now := g.CurrentTime(); at < now {
		at = now
	}
	var v *Voice
	if kit.Procedural() {
		v = s.procedural(inst, kit, at, velocity)
	} else {
		v = s.sampled(g, inst, at, velocity)
	}
	if v != nil {
		g.Connect(v)
	}
}

// sampled plays the recorded sample for inst, or nothing when it has not
// loaded yet.
func (s *Synth) sampled(g Graph, inst pattern.Instrument, at, velocity float64) *Voice {
	if s.bank == nil {
		return nil
	}
	smp := s.bank.Get(inst)
	if smp == nil || len(smp.Data) == 0 {
		return nil
	}

	rate := float64(smp.SampleRate) / float64(g.SampleRate())
	if inst != pattern.Kick && inst != pattern.Snare {
		rate *= math.Pow(2, s.detune()/1200)
	}

	env := NewParam(0).
		SetValueAtTime(0, 0).
		LinearRampToValueAtTime(velocity*velocity, sampleAttack).
		ExponentialRampToValueAtTime(Floor, sampleRelease)

	length := float64(len(smp.Data)) / float64(g.SampleRate()) / rate
	return &Voice{
		Start:  at,
		Length: length,
		Out:    NewGain(env, NewBufferSource(smp.Data, rate, math.Inf(1))),
	}
}

func (s *Synth) detune() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()*2*detuneCents - detuneCents
}

func decay(from, until float64) *Param {
	return NewParam(from).SetValueAtTime(from, 0).ExponentialRampToValueAtTime(Floor, until)
}

func sweep(from, to, until float64) *Param {
	return NewParam(from).SetValueAtTime(from, 0).ExponentialRampToValueAtTime(to, until)
}

// procedural synthesizes inst through the kit's effects chain.
func (s *Synth) procedural(inst pattern.Instrument, kit pattern.Kit, at, velocity float64) *Voice {
	sr := s.sampleRate
	industrial := kit == pattern.Industrial

	voice := NewGain(NewParam(1))
	var out Node = voice
	if industrial {
		out = NewShaper(out, DistortionCurve(distortionDrive), 4)
		out = NewFilter(out, Lowpass, 3000+2000*velocity, sr)
		out = NewCompressor(out, sr, -30, 12, 0.003, 0.25)
	} else {
		out = NewCompressor(out, sr, -20, 4, 0.001, 0.25)
	}

	var length float64
	switch inst {
	case pattern.Kick:
		f0 := 150.0
		if industrial {
			f0 = 120
		}
		length = 0.5
		voice.Inputs = []Node{NewOscillator(sr, Sine, sweep(f0, 40, length), length)}
		voice.Gain = decay(velocity, length)

	case pattern.Snare:
		tone := NewGain(decay(velocity*0.5, 0.2),
			NewOscillator(sr, Triangle, NewParam(200), 0.2))
		snap := velocity * 0.8
		if industrial {
			snap = velocity * 1.5
		}
		noise := NewGain(decay(snap, 0.25),
			NewFilter(NewBufferSource(s.noise, 1, 0.3), Highpass, 1000, sr))
		length = 0.3
		voice.Inputs = []Node{tone, noise}

	case pattern.HihatClosed, pattern.HihatOpen:
		cutoff := 7000.0
		if industrial {
			cutoff = 3000
		}
		length = 0.05
		if inst == pattern.HihatOpen {
			length = 0.3
		}
		voice.Inputs = []Node{NewFilter(NewBufferSource(s.noise, 1, length), Highpass, cutoff, sr)}
		voice.Gain = decay(velocity*0.4, length)

	default:
		freq := 200.0
		if inst == pattern.TomLow {
			freq = 80
		}
		length = 0.3
		voice.Inputs = []Node{NewOscillator(sr, Sine, sweep(freq, freq*0.5, length), length)}
		voice.Gain = decay(velocity, length)
	}

	return &Voice{Start: at, Length: length + voiceTail, Out: out}
}
