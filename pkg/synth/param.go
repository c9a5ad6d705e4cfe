package synth

import "math"

// Floor is the smallest target for exponential ramps, which cannot reach 0.
const Floor = 0.001

type automation int

const (
	setValue automation = iota
	linearRamp
	exponentialRamp
)

type paramEvent struct {
	kind  automation
	value float64
	time  float64
}

// Param is a value automated over voice-local time in seconds. Events must
// be added in ascending time order.
type Param struct {
	initial float64
	events  []paramEvent
}

// NewParam returns a parameter holding v until the first event.
func NewParam(v float64) *Param {
	return &Param{initial: v}
}

// SetValueAtTime jumps to v at t.
func (p *Param) SetValueAtTime(v, t float64) *Param {
	p.events = append(p.events, paramEvent{kind: setValue, value: v, time: t})
	return p
}

// LinearRampToValueAtTime ramps linearly from the previous event to v at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) *Param {
	p.events = append(p.events, paramEvent{kind: linearRamp, value: v, time: t})
	return p
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event to
// v at t. Both ends must be positive; otherwise the previous value is held.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) *Param {
	p.events = append(p.events, paramEvent{kind: exponentialRamp, value: v, time: t})
	return p
}

// At returns the value at time t.
func (p *Param) At(t float64) float64 {
	prevT, prevV := 0.0, p.initial
	for _, ev := range p.events {
		if t < ev.time {
			span := ev.time - prevT
			if span <= 0 {
				return prevV
			}
			frac := (t - prevT) / span
			switch ev.kind {
			case linearRamp:
				return prevV + (ev.value-prevV)*frac
			case exponentialRamp:
				if prevV <= 0 || ev.value <= 0 {
					return prevV
				}
				return prevV * math.Pow(ev.value/prevV, frac)
			default:
				return prevV
			}
		}
		prevT, prevV = ev.time, ev.value
	}
	return prevV
}
