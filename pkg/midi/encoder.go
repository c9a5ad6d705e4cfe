// Package midi writes drum patterns as Standard MIDI Files and reads them
// back.
package midi

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/polydrum/pkg/pattern"
)

// TicksPerQuarter is the file division.
const TicksPerQuarter = 480

// percussionChannel is GM channel 10, zero-indexed.
const percussionChannel uint8 = 9

// maxTempo is the largest microseconds-per-quarter a tempo event can hold.
const maxTempo = 0xFFFFFF

// DefaultKey is used for instruments missing from the key map.
const DefaultKey uint8 = 38

// GMKeys maps each instrument to its General MIDI percussion key.
var GMKeys = map[pattern.Instrument]uint8{
	pattern.Kick:        36,
	pattern.Snare:       38,
	pattern.HihatClosed: 42,
	pattern.HihatOpen:   46,
	pattern.TomLow:      43,
	pattern.TomHigh:     50,
	pattern.Crash:       49,
	pattern.Ride:        51,
}

// Key returns the GM percussion key for inst.
func Key(inst pattern.Instrument) uint8 {
	if k, ok := GMKeys[inst]; ok {
		return k
	}
	return DefaultKey
}

type noteEvent struct {
	tick     uint32
	on       bool
	key      uint8
	velocity uint8
}

// Encoder writes single-track, format 0 MIDI files.
type Encoder struct {
	ticksPerQuarter uint16
}

// NewEncoder creates an encoder at 480 ticks per quarter note.
func NewEncoder() *Encoder {
	return &Encoder{ticksPerQuarter: TicksPerQuarter}
}

// TicksPerStep returns round(division / subdivisions).
func (e *Encoder) TicksPerStep(subdivisions int) uint32 {
	if subdivisions <= 0 {
		subdivisions = pattern.DefaultSubdivisions
	}
	return uint32(math.Floor(float64(e.ticksPerQuarter)/float64(subdivisions) + 0.5))
}

// NoteLength is the sounding length of every note in ticks: short enough
// never to overlap the next hit on the same key at the densest grid.
func NoteLength(subdivisions int) uint32 {
	if subdivisions >= 8 {
		return 30
	}
	return 60
}

// Encode renders p as a Standard MIDI File.
func (e *Encoder) Encode(p *pattern.Pattern) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil pattern")
	}
	if math.IsNaN(p.BPM) || math.IsInf(p.BPM, 0) || p.BPM <= 0 {
		return nil, fmt.Errorf("invalid bpm %v", p.BPM)
	}
	if math.Round(60_000_000/p.BPM) > maxTempo {
		return nil, fmt.Errorf("bpm %v too slow for a MIDI tempo event", p.BPM)
	}
	ts, err := p.Meter()
	if err != nil {
		return nil, fmt.Errorf("failed to read time signature: %w", err)
	}
	if ts.Denominator > 128 {
		return nil, fmt.Errorf("time signature %s does not fit a MIDI meter event", ts)
	}
	sub := p.SubdivisionsPerBeat
	if sub <= 0 {
		sub = pattern.DefaultSubdivisions
	}

	ticksPerStep := e.TicksPerStep(sub)
	length := NoteLength(sub)
	events := make([]noteEvent, 0, 2*len(p.Notes))
	for _, n := range p.Notes {
		if n.Velocity <= 0 || n.Step < 0 {
			continue
		}
		start := uint32(n.Step) * ticksPerStep
		key := Key(n.Instrument)
		vel := uint8(math.Min(math.Floor(n.Velocity*127), 127))
		events = append(events,
			noteEvent{tick: start, on: true, key: key, velocity: vel},
			noteEvent{tick: start + length, on: false, key: key},
		)
	}

	// Offs sort before ons at the same tick so a retrigger is never cut short.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	var track smf.Track
	// 24 MIDI clocks per click, 8 32nds per quarter.
	track.Add(0, smf.MetaTimeSig(uint8(ts.Numerator), uint8(ts.Denominator), 24, 8))
	track.Add(0, smf.MetaTempo(p.BPM))

	var last uint32
	for _, ev := range events {
		msg := midi.NoteOff(percussionChannel, ev.key)
		if ev.on {
			msg = midi.NoteOn(percussionChannel, ev.key, ev.velocity)
		}
		track.Add(ev.tick-last, msg)
		last = ev.tick
	}
	track.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(e.ticksPerQuarter)
	// Every event carries its own status byte.
	s.NoRunningStatus = true
	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var out bytes.Buffer
	if _, err := s.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile encodes p to filename.
func (e *Encoder) WriteFile(p *pattern.Pattern, filename string) error {
	data, err := e.Encode(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write MIDI file: %w", err)
	}
	return nil
}
