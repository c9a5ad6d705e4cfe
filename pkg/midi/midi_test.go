package midi

import (
	"bytes"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/polydrum/pkg/pattern"
)

func TestVarLen(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{0x40, []byte{0x40}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x00}},
		{0x2000, []byte{0xC0, 0x00}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x81, 0x80, 0x00}},
		{2097151, []byte{0xFF, 0xFF, 0x7F}},
		{2097152, []byte{0x81, 0x80, 0x80, 0x00}},
		{MaxVarLen, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		got := EncodeVarLen(tt.value)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeVarLen(%d) = % X, want % X", tt.value, got, tt.want)
			continue
		}
		v, n, err := DecodeVarLen(append(got, 0x55))
		if err != nil {
			t.Errorf("DecodeVarLen(% X) error = %v", got, err)
			continue
		}
		if v != tt.value || n != len(tt.want) {
			t.Errorf("DecodeVarLen(% X) = (%d, %d), want (%d, %d)", got, v, n, tt.value, len(tt.want))
		}
	}
}

func TestDecodeVarLenErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte{0x81, 0x80}},
		{"too long", []byte{0x81, 0x80, 0x80, 0x80, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeVarLen(tt.data); err == nil {
				t.Error("DecodeVarLen() error = nil")
			}
		})
	}
}

func singleKick() *pattern.Pattern {
	return &pattern.Pattern{
		BPM:                 120,
		TimeSignature:       "4/4",
		SubdivisionsPerBeat: 4,
		TotalSteps:          16,
		Bars:                1,
		Notes:               []pattern.Note{{Instrument: pattern.Kick, Step: 0, Velocity: 1}},
	}
}

func TestEncodeSingleKick(t *testing.T) {
	data, err := NewEncoder().Encode(singleKick())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []byte{
		'M', 'T', 'h', 'd', 0x00, 0x00, 0x00, 0x06,
		0x00, 0x00, 0x00, 0x01, 0x01, 0xE0,
		'M', 'T', 'r', 'k', 0x00, 0x00, 0x00, 0x1B,
		0x00, 0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08,
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
		0x00, 0x99, 0x24, 0x7F,
		0x3C, 0x89, 0x24, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() =\n% X\nwant\n% X", data, want)
	}
}

func TestEncodeSimultaneousHits(t *testing.T) {
	p := &pattern.Pattern{
		BPM:                 120,
		TimeSignature:       "7/8",
		SubdivisionsPerBeat: 4,
		TotalSteps:          14,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.Snare, Step: 0, Velocity: 0.8},
			{Instrument: pattern.HihatClosed, Step: 0, Velocity: 0.5},
		},
	}
	data, err := NewEncoder().Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Every event keeps its status byte; offs follow in input order.
	want := []byte{
		'M', 'T', 'h', 'd', 0x00, 0x00, 0x00, 0x06,
		0x00, 0x00, 0x00, 0x01, 0x01, 0xE0,
		'M', 'T', 'r', 'k', 0x00, 0x00, 0x00, 0x2B,
		0x00, 0xFF, 0x58, 0x04, 0x07, 0x03, 0x18, 0x08,
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
		0x00, 0x99, 0x24, 0x7F,
		0x00, 0x99, 0x26, 0x65,
		0x00, 0x99, 0x2A, 0x3F,
		0x3C, 0x89, 0x24, 0x00,
		0x00, 0x89, 0x26, 0x00,
		0x00, 0x89, 0x2A, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() =\n% X\nwant\n% X", data, want)
	}
}

func TestEncodeSkipsNegativeSteps(t *testing.T) {
	p := singleKick()
	p.Notes = append(p.Notes, pattern.Note{Instrument: pattern.Snare, Step: -1, Velocity: 1})

	data, err := NewEncoder().Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want, err := NewEncoder().Encode(singleKick())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("negative step was encoded:\n% X", data)
	}
}

func TestTicksPerStep(t *testing.T) {
	tests := []struct {
		sub  int
		want uint32
	}{
		{4, 120},
		{8, 60},
		{3, 160},
		{6, 80},
		{7, 69},
		{0, 120},
	}
	e := NewEncoder()
	for _, tt := range tests {
		if got := e.TicksPerStep(tt.sub); got != tt.want {
			t.Errorf("TicksPerStep(%d) = %d, want %d", tt.sub, got, tt.want)
		}
	}
}

type noteMsg struct {
	tick uint32
	on   bool
	key  uint8
	vel  uint8
}

// trackNotes decodes the note events of an encoded file with gomidi.
func trackNotes(t *testing.T, data []byte) []noteMsg {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("smf.ReadFrom() error = %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(s.Tracks))
	}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); !ok || mt.Resolution() != TicksPerQuarter {
		t.Fatalf("time format = %v, want %d ticks", s.TimeFormat, TicksPerQuarter)
	}

	var out []noteMsg
	var tick uint32
	for _, ev := range s.Tracks[0] {
		tick += ev.Delta
		msg := ev.Message
		if len(msg) != 3 {
			continue
		}
		switch msg[0] {
		case 0x99:
			out = append(out, noteMsg{tick, msg[2] > 0, msg[1], msg[2]})
		case 0x89:
			out = append(out, noteMsg{tick, false, msg[1], 0})
		}
	}
	return out
}

func TestEncodeNoteTiming(t *testing.T) {
	p := &pattern.Pattern{
		BPM:                 90,
		TimeSignature:       "7/8",
		SubdivisionsPerBeat: 4,
		TotalSteps:          14,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.HihatClosed, Step: 0, Velocity: 0.5},
			{Instrument: pattern.Snare, Step: 2, Velocity: 0.8},
			{Instrument: pattern.Ride, Step: 13, Velocity: 0.1},
		},
	}
	data, err := NewEncoder().Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []noteMsg{
		{0, true, 36, 127},
		{0, true, 42, 63},
		{60, false, 36, 0},
		{60, false, 42, 0},
		{240, true, 38, 101},
		{300, false, 38, 0},
		{1560, true, 51, 12},
		{1620, false, 51, 0},
	}
	got := trackNotes(t, data)
	if len(got) != len(want) {
		t.Fatalf("got %d notes %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("note %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEncodeOffBeforeOnAtSameTick(t *testing.T) {
	// At 8 subdivisions a step is 60 ticks and notes last 30, so use 16
	// subdivisions (30 ticks per step) to make an off land on the next on.
	p := &pattern.Pattern{
		BPM:                 120,
		TimeSignature:       "4/4",
		SubdivisionsPerBeat: 16,
		TotalSteps:          64,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.Kick, Step: 1, Velocity: 1},
		},
	}
	data, err := NewEncoder().Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got := trackNotes(t, data)
	want := []noteMsg{
		{0, true, 36, 127},
		{30, false, 36, 0},
		{30, true, 36, 127},
		{60, false, 36, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	bad := singleKick()
	bad.TimeSignature = "4/3"
	zero := singleKick()
	zero.BPM = 0
	slow := singleKick()
	slow.BPM = 3.5
	wide := singleKick()
	wide.TimeSignature = "3/256"

	tests := []struct {
		name string
		p    *pattern.Pattern
	}{
		{"nil", nil},
		{"bad meter", bad},
		{"zero bpm", zero},
		{"tempo over 24 bits", slow},
		{"denominator over 128", wide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEncoder().Encode(tt.p); err == nil {
				t.Error("Encode() error = nil")
			}
		})
	}
}

func TestKeyFallback(t *testing.T) {
	if got := Key(pattern.Instrument("COWBELL")); got != DefaultKey {
		t.Errorf("Key(COWBELL) = %d, want %d", got, DefaultKey)
	}
	for inst, key := range GMKeys {
		back, ok := Instrument(key)
		if !ok || back != inst {
			t.Errorf("Instrument(%d) = %v, want %v", key, back, inst)
		}
	}
}

func TestImportRoundTrip(t *testing.T) {
	p := &pattern.Pattern{
		BPM:                 100,
		TimeSignature:       "3/4",
		SubdivisionsPerBeat: 4,
		TotalSteps:          12,
		Bars:                1,
		Notes: []pattern.Note{
			{Instrument: pattern.Kick, Step: 0, Velocity: 1},
			{Instrument: pattern.Snare, Step: 6, Velocity: 1},
			{Instrument: pattern.HihatOpen, Step: 11, Velocity: 1},
		},
	}
	data, err := NewEncoder().Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Import(data, ImportOptions{})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if got.BPM != 100 || got.TimeSignature != "3/4" || got.TotalSteps != 12 || got.Bars != 1 {
		t.Errorf("Import() = %+v", got)
	}
	if len(got.Notes) != len(p.Notes) {
		t.Fatalf("notes = %v, want %v", got.Notes, p.Notes)
	}
	for i, n := range p.Notes {
		if got.Notes[i] != n {
			t.Errorf("note %d = %+v, want %+v", i, got.Notes[i], n)
		}
	}
}

func TestImportForeignFile(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)

	var track smf.Track
	track.Add(0, smf.Message([]byte{0xFF, 0x51, 0x03, 0x09, 0x27, 0xC0})) // 100 bpm
	track.Add(0, midi.NoteOn(9, 35, 127))
	track.Add(12, midi.NoteOff(9, 35))
	track.Add(36, midi.NoteOn(9, 40, 64))
	track.Add(12, midi.NoteOff(9, 40))
	track.Add(0, midi.NoteOn(0, 60, 100)) // melodic key, ignored
	track.Add(12, midi.NoteOff(0, 60))
	track.Add(336, midi.NoteOn(9, 59, 127))
	track.Add(12, midi.NoteOff(9, 59))
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	p, err := Import(buf.Bytes(), ImportOptions{})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if math.Abs(p.BPM-100) > 1e-9 {
		t.Errorf("BPM = %v, want 100", p.BPM)
	}
	if p.TotalSteps != 32 || p.Bars != 2 {
		t.Errorf("TotalSteps = %d, Bars = %d, want 32 and 2", p.TotalSteps, p.Bars)
	}

	want := []struct {
		inst pattern.Instrument
		step int
	}{
		{pattern.Kick, 0},
		{pattern.Snare, 2},
		{pattern.Ride, 17},
	}
	if len(p.Notes) != len(want) {
		t.Fatalf("notes = %+v, want %d", p.Notes, len(want))
	}
	for i, w := range want {
		if p.Notes[i].Instrument != w.inst || p.Notes[i].Step != w.step {
			t.Errorf("note %d = %+v, want %v at %d", i, p.Notes[i], w.inst, w.step)
		}
	}
}

func TestInspect(t *testing.T) {
	data, err := NewEncoder().Encode(singleKick())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	events, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	kinds := []string{"meter", "tempo", "note-on", "note-off"}
	if len(events) < len(kinds) {
		t.Fatalf("events = %v, want kinds %v", events, kinds)
	}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %q, want %q", i, events[i].Kind, k)
		}
	}
	if events[0].Detail != "4/4" || events[1].Detail != "120.00 bpm" {
		t.Errorf("meta details = %q, %q", events[0].Detail, events[1].Detail)
	}
	if events[3].Tick != 60 || events[2].Detail != string(pattern.Kick) {
		t.Errorf("note events = %+v, %+v", events[2], events[3])
	}

	if _, err := Inspect([]byte("not midi")); err == nil {
		t.Error("Inspect() of garbage error = nil")
	}
}
