package pattern

import (
	"math"
	"sort"
)

// Velocity bounds after sanitizing.
const (
	MinVelocity = 0.1
	MaxVelocity = 1.0
)

type noteKey struct {
	step       int
	instrument Instrument
}

// Sanitize repairs generator output: steps are rounded to the nearest
// integer, notes outside [0, totalSteps) or with an unknown instrument are
// dropped, velocities are clamped into [MinVelocity, MaxVelocity], and
// duplicate (step, instrument) pairs collapse to the loudest hit (the first
// one wins on equal velocity). The result is ordered by step, ties in
// first-encounter order. Sanitize is pure and idempotent.
func Sanitize(raw []RawNote, totalSteps int) []Note {
	index := make(map[noteKey]int, len(raw))
	kept := make([]Note, 0, len(raw))

	for _, rn := range raw {
		if !rn.Instrument.Valid() || math.IsNaN(rn.Step) || math.IsInf(rn.Step, 0) || math.IsNaN(rn.Velocity) {
			continue
		}
		step := roundHalfUp(rn.Step)
		if step < 0 || step >= totalSteps {
			continue
		}
		n := Note{
			Instrument: rn.Instrument,
			Step:       step,
			Velocity:   math.Max(MinVelocity, math.Min(MaxVelocity, rn.Velocity)),
		}

		key := noteKey{step: step, instrument: n.Instrument}
		if at, ok := index[key]; ok {
			if n.Velocity > kept[at].Velocity {
				kept[at] = n
			}
			continue
		}
		index[key] = len(kept)
		kept = append(kept, n)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Step < kept[j].Step
	})
	return kept
}

// Raw converts sanitized notes back into the generator shape.
func Raw(notes []Note) []RawNote {
	out := make([]RawNote, len(notes))
	for i, n := range notes {
		out[i] = RawNote{Instrument: n.Instrument, Step: float64(n.Step), Velocity: n.Velocity}
	}
	return out
}
