package synth

import "math"

// Node is one stage of a voice graph. Process is called once per frame, in
// increasing t, with t in seconds since the voice started.
type Node interface {
	Process(t float64) float64
}

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
)

// Oscillator is a periodic source with an automated frequency.
type Oscillator struct {
	Type      Waveform
	Frequency *Param
	Stop      float64

	sampleRate float64
	phase      float64
}

// NewOscillator creates an oscillator that falls silent at stop.
func NewOscillator(sampleRate int, typ Waveform, freq *Param, stop float64) *Oscillator {
	return &Oscillator{Type: typ, Frequency: freq, Stop: stop, sampleRate: float64(sampleRate)}
}

func (o *Oscillator) Process(t float64) float64 {
	if t >= o.Stop {
		return 0
	}
	var v float64
	switch o.Type {
	case Triangle:
		switch {
		case o.phase < 0.25:
			v = 4 * o.phase
		case o.phase < 0.75:
			v = 2 - 4*o.phase
		default:
			v = 4*o.phase - 4
		}
	default:
		v = math.Sin(2 * math.Pi * o.phase)
	}
	o.phase += o.Frequency.At(t) / o.sampleRate
	o.phase -= math.Floor(o.phase)
	return v
}

// BufferSource plays a mono buffer at a playback rate.
type BufferSource struct {
	Data []float32
	Rate float64
	Stop float64

	pos float64
}

// NewBufferSource plays data from its start until stop (seconds) or the end
// of the buffer.
func NewBufferSource(data []float32, rate, stop float64) *BufferSource {
	return &BufferSource{Data: data, Rate: rate, Stop: stop}
}

func (b *BufferSource) Process(t float64) float64 {
	if t >= b.Stop {
		return 0
	}
	i := int(b.pos)
	if i >= len(b.Data) {
		return 0
	}
	a := float64(b.Data[i])
	next := 0.0
	if i+1 < len(b.Data) {
		next = float64(b.Data[i+1])
	}
	frac := b.pos - float64(i)
	b.pos += b.Rate
	return a + (next-a)*frac
}

// Gain sums its inputs and scales them by an automated gain.
type Gain struct {
	Inputs []Node
	Gain   *Param
}

// NewGain creates a gain stage.
func NewGain(gain *Param, inputs ...Node) *Gain {
	return &Gain{Inputs: inputs, Gain: gain}
}

func (g *Gain) Process(t float64) float64 {
	var sum float64
	for _, in := range g.Inputs {
		sum += in.Process(t)
	}
	return sum * g.Gain.At(t)
}

// FilterType selects the biquad response.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
)

// biquad is a direct form I filter using the RBJ cookbook coefficients.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func newBiquad(typ FilterType, cutoff, q float64, sampleRate int) biquad {
	nyquist := float64(sampleRate) / 2
	if cutoff > nyquist*0.98 {
		cutoff = nyquist * 0.98
	}
	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * q)
	a0 := 1 + alpha

	var f biquad
	switch typ {
	case Highpass:
		f.b0 = (1 + cos) / 2
		f.b1 = -(1 + cos)
		f.b2 = (1 + cos) / 2
	default:
		f.b0 = (1 - cos) / 2
		f.b1 = 1 - cos
		f.b2 = (1 - cos) / 2
	}
	f.b0 /= a0
	f.b1 /= a0
	f.b2 /= a0
	f.a1 = -2 * cos / a0
	f.a2 = (1 - alpha) / a0
	return f
}

func (f *biquad) apply(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// DefaultQ is a Butterworth response.
var DefaultQ = 1 / math.Sqrt2

// Filter is a biquad lowpass or highpass stage.
type Filter struct {
	In Node
	bq biquad
}

// NewFilter wraps in with a biquad filter.
func NewFilter(in Node, typ FilterType, cutoff float64, sampleRate int) *Filter {
	return &Filter{In: in, bq: newBiquad(typ, cutoff, DefaultQ, sampleRate)}
}

func (f *Filter) Process(t float64) float64 {
	return f.bq.apply(f.In.Process(t))
}

// Curve maps an input in [-1, 1] to an output sample.
type Curve func(x float64) float64

// SoftClip is a tanh saturation curve.
func SoftClip(x float64) float64 {
	return math.Tanh(x)
}

// DistortionCurve returns the classic waveshaper curve
// (3+k)·x·20° / (π + k·|x|).
func DistortionCurve(amount float64) Curve {
	deg := math.Pi / 180
	return func(x float64) float64 {
		return (3 + amount) * x * 20 * deg / (math.Pi + amount*math.Abs(x))
	}
}

// shaper applies a curve with linear-interpolation oversampling.
type shaper struct {
	curve      Curve
	oversample int
	prev       float64
}

func (s *shaper) apply(x float64) float64 {
	if s.oversample <= 1 {
		return s.curve(clampUnit(x))
	}
	var sum float64
	n := float64(s.oversample)
	for k := 1; k <= s.oversample; k++ {
		sum += s.curve(clampUnit(s.prev + (x-s.prev)*float64(k)/n))
	}
	s.prev = x
	return sum / n
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// Shaper is a nonlinear waveshaping stage.
type Shaper struct {
	In Node
	sh shaper
}

// NewShaper wraps in with curve, oversampled by factor.
func NewShaper(in Node, curve Curve, oversample int) *Shaper {
	return &Shaper{In: in, sh: shaper{curve: curve, oversample: oversample}}
}

func (s *Shaper) Process(t float64) float64 {
	return s.sh.apply(s.In.Process(t))
}

// Compressor is a feed-forward peak compressor without knee or makeup gain.
type Compressor struct {
	In Node

	threshold float64
	ratio     float64
	attack    float64
	release   float64
	env       float64
}

// NewCompressor creates a compressor. thresholdDB is in dBFS, attack and
// release in seconds.
func NewCompressor(in Node, sampleRate int, thresholdDB, ratio, attack, release float64) *Compressor {
	sr := float64(sampleRate)
	return &Compressor{
		In:        in,
		threshold: math.Pow(10, thresholdDB/20),
		ratio:     ratio,
		attack:    1 - math.Exp(-1/(attack*sr)),
		release:   1 - math.Exp(-1/(release*sr)),
	}
}

func (c *Compressor) Process(t float64) float64 {
	x := c.In.Process(t)
	a := math.Abs(x)
	if a > c.env {
		c.env += c.attack * (a - c.env)
	} else {
		c.env += c.release * (a - c.env)
	}
	if c.env <= c.threshold || c.ratio <= 1 {
		return x
	}
	return x * math.Pow(c.env/c.threshold, 1/c.ratio-1)
}
