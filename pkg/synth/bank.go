package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/wav"
)

// SampleFiles maps each instrument to its file name in a sample directory.
var SampleFiles = map[pattern.Instrument]string{
	pattern.Kick:        "kick.wav",
	pattern.Snare:       "snare.wav",
	pattern.HihatClosed: "hatClosed.wav",
	pattern.HihatOpen:   "hatOpen.wav",
	pattern.TomLow:      "tomLow.wav",
	pattern.TomHigh:     "tomHigh.wav",
	pattern.Crash:       "crash.wav",
	pattern.Ride:        "ride.wav",
}

const loadConcurrency = 4

// Sample is a decoded mono recording.
type Sample struct {
	Data       []float32
	SampleRate int
}

// SampleBank holds one decoded sample per instrument. Each slot is written
// once and published atomically, so readers never lock.
type SampleBank struct {
	sampleRate int
	logger     *slog.Logger

	slots [pattern.NumInstruments]atomic.Pointer[Sample]

	once    sync.Once
	started atomic.Bool
	done    chan struct{}
	err     error
}

// NewSampleBank creates an empty bank that decodes samples at sampleRate.
func NewSampleBank(sampleRate int, logger *slog.Logger) *SampleBank {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleBank{
		sampleRate: sampleRate,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Get returns the sample for inst, or nil if it is not loaded.
func (b *SampleBank) Get(inst pattern.Instrument) *Sample {
	i := inst.Index()
	if i < 0 {
		return nil
	}
	return b.slots[i].Load()
}

// Store publishes s for inst unless a sample is already present. It reports
// whether s was stored.
func (b *SampleBank) Store(inst pattern.Instrument, s *Sample) bool {
	i := inst.Index()
	if i < 0 || s == nil {
		return false
	}
	return b.slots[i].CompareAndSwap(nil, s)
}

// Load starts decoding every instrument sample from fsys in the background.
// Only the first call has an effect.
func (b *SampleBank) Load(ctx context.Context, fsys fs.FS) {
	b.once.Do(func() {
		b.started.Store(true)
		go func() {
			defer close(b.done)
			b.err = b.loadAll(ctx, fsys)
		}()
	})
}

// Ready reports whether loading has finished, successfully or not.
func (b *SampleBank) Ready() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait blocks until loading finishes and returns the combined load errors.
func (b *SampleBank) Wait(ctx context.Context) error {
	if !b.started.Load() {
		return errkind.ResourceLoad(errors.New("sample loading was never started"), "samples unavailable")
	}
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SampleBank) loadAll(ctx context.Context, fsys fs.FS) error {
	if fsys == nil {
		err := errkind.ResourceLoad(errors.New("no sample directory configured"), "samples unavailable")
		b.logger.Warn("acoustic kit has no samples", "err", err)
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, inst := range pattern.Instruments {
		g.Go(func() error {
			if b.Get(inst) != nil {
				return nil
			}
			s, err := b.loadSample(ctx, fsys, SampleFiles[inst])
			if err != nil {
				err = errkind.ResourceLoad(err, fmt.Sprintf("failed to load %s sample", inst))
				b.logger.Warn("sample load failed", "instrument", inst, "file", SampleFiles[inst], "err", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			b.Store(inst, s)
			b.logger.Debug("sample loaded", "instrument", inst, "frames", len(s.Data))
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return errkind.ResourceLoad(errors.Join(errs...), fmt.Sprintf("%d of %d samples failed to load", len(errs), pattern.NumInstruments))
	}
	return nil
}

func (b *SampleBank) loadSample(ctx context.Context, fsys fs.FS, name string) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	mono, err := wav.DecodeMono(bytes.NewReader(data), b.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &Sample{Data: mono, SampleRate: b.sampleRate}, nil
}
