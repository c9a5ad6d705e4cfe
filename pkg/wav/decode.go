package wav

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// DecodeMono decodes a PCM WAV stream, downmixes it to mono and resamples it
// to targetRate.
func DecodeMono(r io.ReadSeeker, targetRate int) ([]float32, error) {
	decoder := wav.NewDecoder(r)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, errors.New("wav has no format chunk")
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("wav has %d channels", channels)
	}
	depth := int(decoder.BitDepth)
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}

	scale := float64(int64(1) << (depth - 1))
	offset := 0.0
	if depth == 8 {
		// 8-bit PCM is unsigned
		offset = 128
	}

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		mono[i] = sum / float64(channels) / scale
	}

	return resample(mono, buf.Format.SampleRate, targetRate), nil
}

// resample converts between sample rates with linear interpolation.
func resample(in []float64, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to {
		out := make([]float32, len(in))
		for i, v := range in {
			out[i] = float32(v)
		}
		return out
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(in)) / ratio)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		a := in[j]
		b := a
		if j+1 < len(in) {
			b = in[j+1]
		}
		out[i] = float32(a + (b-a)*frac)
	}
	return out
}
