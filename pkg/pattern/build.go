package pattern

import (
	"context"
	"fmt"
	"math"

	"github.com/james-see/polydrum/pkg/errkind"
)

// Practical tempo range accepted from generators.
const (
	MinBPM = 40
	MaxBPM = 300
)

// Request describes what the user asked a generator for.
type Request struct {
	Prompt        string  `json:"prompt"`
	TimeSignature string  `json:"timeSignature"`
	BPM           float64 `json:"bpm"`
	Bars          int     `json:"bars"`
}

// Generator produces raw patterns, typically by calling a language model.
// Implementations may be slow, rate limited or return malformed data; the
// result always goes through FromRequest or Build.
type Generator interface {
	Generate(ctx context.Context, req Request) (*RawPattern, error)
}

// Build validates raw, derives TotalSteps from the time signature and bar
// count, and sanitizes the notes. Failures are GenerationDataErrors.
func Build(raw RawPattern) (*Pattern, error) {
	if math.IsNaN(raw.BPM) || raw.BPM < MinBPM || raw.BPM > MaxBPM {
		return nil, errkind.GenerationData(
			fmt.Sprintf("bpm %v out of range", raw.BPM),
			fmt.Sprintf("Tempo must be between %d and %d BPM.", MinBPM, MaxBPM),
		)
	}
	ts, err := ParseTimeSignature(raw.TimeSignature)
	if err != nil {
		return nil, errkind.GenerationData(err.Error(), "Use a time signature like 7/8 with a power-of-two denominator.")
	}
	if raw.Bars < 1 {
		return nil, errkind.GenerationData(
			fmt.Sprintf("bars %d must be positive", raw.Bars),
			"The pattern needs at least one bar.",
		)
	}
	sub := raw.SubdivisionsPerBeat
	if sub <= 0 {
		sub = DefaultSubdivisions
	}
	totalSteps := raw.Bars * ts.StepsPerBar(sub)
	if totalSteps < 1 {
		return nil, errkind.GenerationData(
			fmt.Sprintf("time signature %s yields no steps", ts),
			"Choose a longer time signature or a finer subdivision.",
		)
	}

	notes := Sanitize(raw.Notes, totalSteps)
	if len(notes) == 0 {
		return nil, errkind.GenerationData(
			"pattern has no playable notes",
			"The generator returned an empty pattern. Try again or rephrase the prompt.",
		)
	}

	return &Pattern{
		BPM:                 raw.BPM,
		TimeSignature:       ts.String(),
		SubdivisionsPerBeat: sub,
		TotalSteps:          totalSteps,
		Bars:                raw.Bars,
		Notes:               notes,
		Description:         raw.Description,
	}, nil
}

// FromRequest builds a pattern from generator output, taking tempo, meter
// and length from the request rather than trusting the generator's copy.
func FromRequest(req Request, raw *RawPattern) (*Pattern, error) {
	if raw == nil {
		return nil, errkind.GenerationData("generator returned nothing", "The generator returned an empty response. Try again.")
	}
	r := *raw
	r.BPM = req.BPM
	r.TimeSignature = req.TimeSignature
	r.Bars = req.Bars
	r.SubdivisionsPerBeat = DefaultSubdivisions
	return Build(r)
}
