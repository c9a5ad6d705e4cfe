package midi

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/polydrum/pkg/pattern"
)

// keyInstruments maps GM percussion keys, including common alternates, back
// to instruments.
var keyInstruments = map[uint8]pattern.Instrument{
	35: pattern.Kick, 36: pattern.Kick,
	37: pattern.Snare, 38: pattern.Snare, 39: pattern.Snare, 40: pattern.Snare,
	42: pattern.HihatClosed, 44: pattern.HihatClosed,
	46: pattern.HihatOpen,
	41: pattern.TomLow, 43: pattern.TomLow, 45: pattern.TomLow,
	47: pattern.TomHigh, 48: pattern.TomHigh, 50: pattern.TomHigh,
	49: pattern.Crash, 52: pattern.Crash, 55: pattern.Crash, 57: pattern.Crash,
	51: pattern.Ride, 53: pattern.Ride, 59: pattern.Ride,
}

// Instrument returns the instrument for a GM percussion key.
func Instrument(key uint8) (pattern.Instrument, bool) {
	inst, ok := keyInstruments[key]
	return inst, ok
}

// Event is one decoded track event, for display.
type Event struct {
	Track   int
	Tick    int64
	Kind    string
	Channel uint8
	Key     uint8
	Value   uint8
	Detail  string

	bpm float64
}

func (e Event) String() string {
	switch e.Kind {
	case "note-on", "note-off":
		return fmt.Sprintf("%6d  %-10s ch=%-2d key=%-3d vel=%d %s", e.Tick, e.Kind, e.Channel+1, e.Key, e.Value, e.Detail)
	default:
		return fmt.Sprintf("%6d  %-10s %s", e.Tick, e.Kind, e.Detail)
	}
}

// file is a parsed SMF with absolute tick times.
type file struct {
	resolution uint16
	events     []Event
}

func parse(data []byte) (*file, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	f := &file{resolution: TicksPerQuarter}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		f.resolution = mt.Resolution()
	}

	for ti, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			if e, ok := decodeMessage(ev.Message); ok {
				e.Track = ti
				e.Tick = tick
				f.events = append(f.events, e)
			}
		}
	}
	return f, nil
}

func decodeMessage(msg smf.Message) (Event, bool) {
	if len(msg) == 0 {
		return Event{}, false
	}

	if msg[0] == 0xFF && len(msg) >= 3 {
		body := msg[3:]
		switch msg[1] {
		case 0x51:
			if len(body) >= 3 {
				us := uint32(body[0])<<16 | uint32(body[1])<<8 | uint32(body[2])
				if us > 0 {
					bpm := 60_000_000 / float64(us)
					return Event{Kind: "tempo", Detail: fmt.Sprintf("%.2f bpm", bpm), bpm: bpm}, true
				}
			}
		case 0x58:
			if len(body) >= 2 && body[1] < 8 {
				return Event{Kind: "meter", Detail: fmt.Sprintf("%d/%d", body[0], 1<<body[1])}, true
			}
		case 0x2F:
			return Event{Kind: "end", Detail: "end of track"}, true
		case 0x03:
			return Event{Kind: "name", Detail: string(body)}, true
		}
		return Event{Kind: "meta", Detail: fmt.Sprintf("type 0x%02X", msg[1])}, true
	}

	if len(msg) < 3 {
		return Event{}, false
	}
	status, key, vel := msg[0], msg[1], msg[2]
	ch := status & 0x0F
	switch {
	case status&0xF0 == 0x90 && vel > 0:
		e := Event{Kind: "note-on", Channel: ch, Key: key, Value: vel}
		if inst, ok := Instrument(key); ok {
			e.Detail = string(inst)
		}
		return e, true
	case status&0xF0 == 0x80, status&0xF0 == 0x90:
		return Event{Kind: "note-off", Channel: ch, Key: key}, true
	}
	return Event{}, false
}

// Inspect lists the events of a MIDI file in tick order per track.
func Inspect(data []byte) ([]Event, error) {
	f, err := parse(data)
	if err != nil {
		return nil, err
	}
	return f.events, nil
}

// ImportOptions controls how MIDI notes are quantized into steps.
type ImportOptions struct {
	SubdivisionsPerBeat int
	// BPM is used when the file has no tempo event.
	BPM         float64
	Description string
}

// Import quantizes the note-ons of a MIDI file into a sanitized pattern.
// Keys outside the percussion map are ignored. Tempo and time signature
// come from the first meta events of each kind.
func Import(data []byte, opts ImportOptions) (*pattern.Pattern, error) {
	f, err := parse(data)
	if err != nil {
		return nil, err
	}

	sub := opts.SubdivisionsPerBeat
	if sub <= 0 {
		sub = pattern.DefaultSubdivisions
	}
	raw := pattern.RawPattern{
		BPM:                 opts.BPM,
		TimeSignature:       "4/4",
		SubdivisionsPerBeat: sub,
		Description:         opts.Description,
	}
	if raw.Description == "" {
		raw.Description = "imported from MIDI"
	}
	if raw.BPM <= 0 {
		raw.BPM = 120
	}

	ticksPerStep := float64(f.resolution) / float64(sub)
	var haveTempo, haveMeter bool
	maxStep := 0
	for _, ev := range f.events {
		switch ev.Kind {
		case "tempo":
			if !haveTempo {
				raw.BPM = ev.bpm
				haveTempo = true
			}
		case "meter":
			if !haveMeter {
				raw.TimeSignature = ev.Detail
				haveMeter = true
			}
		case "note-on":
			inst, ok := Instrument(ev.Key)
			if !ok {
				continue
			}
			step := float64(ev.Tick) / ticksPerStep
			raw.Notes = append(raw.Notes, pattern.RawNote{
				Instrument: inst,
				Step:       step,
				Velocity:   float64(ev.Value) / 127,
			})
			if s := int(math.Floor(step + 0.5)); s > maxStep {
				maxStep = s
			}
		}
	}

	ts, err := pattern.ParseTimeSignature(raw.TimeSignature)
	if err != nil {
		return nil, fmt.Errorf("unsupported time signature: %w", err)
	}
	perBar := ts.StepsPerBar(sub)
	if perBar < 1 {
		perBar = 1
	}
	raw.Bars = maxStep/perBar + 1

	return pattern.Build(raw)
}

// ImportFile reads and imports a MIDI file.
func ImportFile(filename string, opts ImportOptions) (*pattern.Pattern, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Import(data, opts)
}
