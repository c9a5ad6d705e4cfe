package synth

import (
	"math"
	"sync"
)

// Graph is an audio destination that voices are connected to. The mixer
// implements it for both live and offline rendering.
type Graph interface {
	SampleRate() int
	// CurrentTime is the absolute audio clock in seconds.
	CurrentTime() float64
	Connect(v *Voice)
}

// Voice is one triggered drum hit: a node graph that starts at an absolute
// time and is discarded after Length seconds.
type Voice struct {
	Start  float64
	Length float64
	Out    Node
}

type activeVoice struct {
	voice      *Voice
	start, end int64
}

// Master bus settings.
const (
	busHighpass   = 30.0
	busOversample = 4
)

type masterBus struct {
	highpass biquad
	clip     shaper
	gain     float64
}

func (b *masterBus) apply(x float64) float64 {
	return b.clip.apply(b.highpass.apply(x)) * b.gain
}

// Mixer sums voices frame by frame into a stereo stream. Its frame counter
// is the audio clock.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64
	voices     []activeVoice
	bus        masterBus
}

// NewMixer creates a mixer whose clock starts at zero.
func NewMixer(sampleRate int, masterGain float64) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		bus: masterBus{
			highpass: newBiquad(Highpass, busHighpass, DefaultQ, sampleRate),
			clip:     shaper{curve: SoftClip, oversample: busOversample},
			gain:     masterGain,
		},
	}
}

func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / float64(m.sampleRate)
}

// Connect schedules v. Its first frame is the nearest frame to v.Start.
func (m *Mixer) Connect(v *Voice) {
	if v == nil || v.Out == nil {
		return
	}
	sr := float64(m.sampleRate)
	start := int64(math.Round(v.Start * sr))
	end := start + int64(math.Ceil(v.Length*sr))

	m.mu.Lock()
	m.voices = append(m.voices, activeVoice{voice: v, start: start, end: end})
	m.mu.Unlock()
}

// Active returns the number of voices not yet finished.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Stream fills samples with the next frames. The [][2]float64 layout matches
// beep.Streamer.
func (m *Mixer) Stream(samples [][2]float64) {
	m.render(len(samples), func(i int, v float64) {
		samples[i][0] = v
		samples[i][1] = v
	})
}

// Render fills left and right (same length) with the next frames.
func (m *Mixer) Render(left, right []float32) {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	m.render(n, func(i int, v float64) {
		left[i] = float32(v)
		right[i] = float32(v)
	})
}

func (m *Mixer) render(n int, out func(i int, v float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr := float64(m.sampleRate)
	for i := 0; i < n; i++ {
		f := m.frame + int64(i)
		var sum float64
		for _, av := range m.voices {
			if f < av.start || f >= av.end {
				continue
			}
			sum += av.voice.Out.Process(float64(f-av.start) / sr)
		}
		out(i, m.bus.apply(sum))
	}
	m.frame += int64(n)

	kept := m.voices[:0]
	for _, av := range m.voices {
		if av.end > m.frame {
			kept = append(kept, av)
		}
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = activeVoice{}
	}
	m.voices = kept
}
