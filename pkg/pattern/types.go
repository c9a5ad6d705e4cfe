// Package pattern provides the drum pattern data model and the sanitizer that
// repairs patterns coming from an untrusted generator.
package pattern

import (
	"fmt"
	"strings"
)

// Instrument is one of the eight fixed percussion voices.
type Instrument string

const (
	Kick        Instrument = "KICK"
	Snare       Instrument = "SNARE"
	HihatClosed Instrument = "HIHAT_CLOSED"
	HihatOpen   Instrument = "HIHAT_OPEN"
	TomLow      Instrument = "TOM_LOW"
	TomHigh     Instrument = "TOM_HIGH"
	Crash       Instrument = "CRASH"
	Ride        Instrument = "RIDE"
)

// NumInstruments is the size of the instrument enumeration.
const NumInstruments = 8

// Instruments lists every instrument in display order.
var Instruments = [NumInstruments]Instrument{
	Kick, Snare, HihatClosed, HihatOpen, TomLow, TomHigh, Crash, Ride,
}

// Index returns the dense index of i, or -1 for an unknown instrument.
func (i Instrument) Index() int {
	for n, inst := range Instruments {
		if inst == i {
			return n
		}
	}
	return -1
}

// Valid reports whether i is a known instrument
func (i Instrument) Valid() bool {
	return i.Index() >= 0
}

// Kit selects the rendering strategy for every note.
type Kit string

const (
	Acoustic   Kit = "ACOUSTIC"   // sample playback
	Electronic Kit = "ELECTRONIC" // clean procedural synthesis
	Industrial Kit = "INDUSTRIAL" // procedural synthesis with distortion
)

// Kits lists the available kits.
var Kits = []Kit{Acoustic, Electronic, Industrial}

// ParseKit parses a kit name in any letter case.
func ParseKit(s string) (Kit, error) {
	k := Kit(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kits {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kit %q", s)
}

// Procedural reports whether k is rendered by oscillators rather than samples.
func (k Kit) Procedural() bool {
	return k == Electronic || k == Industrial
}

// Note is a single sanitized hit.
type Note struct {
	Instrument Instrument `json:"instrument"`
	Step       int        `json:"step"`
	Velocity   float64    `json:"velocity"`
}

// RawNote is a hit as produced by the generator, before sanitizing.
type RawNote struct {
	Instrument Instrument `json:"instrument"`
	Step       float64    `json:"step"`
	Velocity   float64    `json:"velocity"`
}

// Pattern is an immutable, sanitized drum pattern.
type Pattern struct {
	BPM                 float64 `json:"bpm"`
	TimeSignature       string  `json:"timeSignature"`
	SubdivisionsPerBeat int     `json:"subdivisionsPerBeat"`
	TotalSteps          int     `json:"totalSteps"`
	Bars                int     `json:"bars"`
	Notes               []Note  `json:"notes"`
	Description         string  `json:"description"`
}

// RawPattern is the untrusted generator output.
type RawPattern struct {
	BPM                 float64   `json:"bpm"`
	TimeSignature       string    `json:"timeSignature"`
	SubdivisionsPerBeat int       `json:"subdivisionsPerBeat"`
	TotalSteps          int       `json:"totalSteps"`
	Bars                int       `json:"bars"`
	Notes               []RawNote `json:"notes"`
	Description         string    `json:"description"`
}

// StepDuration returns the length of one step in seconds.
func (p *Pattern) StepDuration() float64 {
	return 60.0 / (p.BPM * float64(p.SubdivisionsPerBeat))
}

// Duration returns the length of one loop in seconds.
func (p *Pattern) Duration() float64 {
	return float64(p.TotalSteps) * p.StepDuration()
}

// NotesAt returns the notes on step in pattern order.
func (p *Pattern) NotesAt(step int) []Note {
	var out []Note
	for _, n := range p.Notes {
		if n.Step == step {
			out = append(out, n)
		} else if n.Step > step {
			break
		}
	}
	return out
}

// Meter returns the parsed time signature.
func (p *Pattern) Meter() (TimeSignature, error) {
	return ParseTimeSignature(p.TimeSignature)
}
