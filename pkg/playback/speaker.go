// Package playback connects the synthesis engine and the lookahead scheduler
// to the system audio device.
package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/james-see/polydrum/pkg/synth"
)

// DefaultBuffer is the speaker buffer length.
const DefaultBuffer = 50 * time.Millisecond

// Speaker is a synth.Backend that plays through the default audio device.
type Speaker struct {
	mu     sync.Mutex
	buffer time.Duration
	open   bool
}

// NewSpeaker creates a speaker backend. Shorter buffers lower latency at the
// cost of more frequent callbacks.
func NewSpeaker(buffer time.Duration) *Speaker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Speaker{buffer: buffer}
}

// Open initializes the device and starts pulling frames from src.
func (s *Speaker) Open(sampleRate int, src synth.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		speaker.Clear()
		speaker.Close()
		s.open = false
	}

	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(s.buffer)); err != nil {
		return err
	}
	speaker.Play(beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		src.Stream(samples)
		return len(samples), true
	}))
	s.open = true
	return nil
}

// Close stops playback and releases the device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	s.open = false
	return nil
}
