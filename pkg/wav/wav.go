// Package wav encodes rendered audio as RIFF/WAVE PCM16 and decodes sample
// files for the acoustic kit.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Buffer is planar float audio, one slice per channel.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

const headerSize = 44

// ScaleSample converts a float sample to signed 16 bit. Negative values use
// the full 32768 range, positive values 32767, truncated toward zero.
// NaN becomes silence.
func ScaleSample(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Encode writes b as a PCM16 little-endian WAV file with interleaved
// channels.
func Encode(b *Buffer) ([]byte, error) {
	if b == nil {
		return nil, errors.New("nil buffer")
	}
	channels := len(b.Channels)
	if channels == 0 {
		return nil, errors.New("buffer has no channels")
	}
	if b.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	frames := len(b.Channels[0])
	for i, ch := range b.Channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d has %d frames, want %d", i, len(ch), frames)
		}
	}

	dataSize := frames * channels * 2
	out := make([]byte, headerSize+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(b.SampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))

	pos := headerSize
	for i := 0; i < frames; i++ {
		for _, ch := range b.Channels {
			binary.LittleEndian.PutUint16(out[pos:], uint16(ScaleSample(ch[i])))
			pos += 2
		}
	}
	return out, nil
}

// WriteFile encodes b and writes it to path.
func WriteFile(b *Buffer, path string) error {
	data, err := Encode(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
