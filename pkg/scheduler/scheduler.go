// Package scheduler turns a Pattern into precisely timed triggers. A coarse,
// jittery timer wakes the loop every few milliseconds; each wake-up queues
// every step whose time falls inside a short horizon on the audio clock, so
// timing precision comes from the audio clock rather than the timer.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/james-see/polydrum/pkg/pattern"
)

// Clock reports the absolute audio time in seconds.
type Clock interface {
	CurrentTime() float64
}

// Target receives scheduled hits.
type Target interface {
	Trigger(inst pattern.Instrument, at, velocity float64)
}

// Timer is a pending wake-up.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// RealTimer arms timers with time.AfterFunc.
func RealTimer(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State is the scheduler run state.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Default timing parameters.
const (
	DefaultLookahead     = 25 * time.Millisecond
	DefaultScheduleAhead = 0.1
	DefaultStartEpsilon  = 0.1
)

// maxPlayhead bounds the queue of scheduled steps kept for StepAt.
const maxPlayhead = 64

type playheadEntry struct {
	step int
	at   float64
}

// Scheduler is the lookahead loop. It is safe for concurrent use.
type Scheduler struct {
	clock     Clock
	target    Target
	afterFunc AfterFunc
	logger    *slog.Logger

	lookahead     time.Duration
	scheduleAhead float64
	startEpsilon  float64

	mu            sync.Mutex
	state         State
	pattern       *pattern.Pattern
	stepPointer   int
	nextEventTime float64
	timer         Timer
	// run identifies the current Start; wake-ups armed by an earlier run
	// are ignored.
	run      uint64
	playhead []playheadEntry
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLookahead sets the timer interval between loop iterations.
func WithLookahead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookahead = d
		}
	}
}

// WithScheduleAhead sets the scheduling horizon in seconds.
func WithScheduleAhead(sec float64) Option {
	return func(s *Scheduler) {
		if sec > 0 {
			s.scheduleAhead = sec
		}
	}
}

// WithStartEpsilon sets the delay between Start and the first step.
func WithStartEpsilon(sec float64) Option {
	return func(s *Scheduler) {
		if sec >= 0 {
			s.startEpsilon = sec
		}
	}
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.afterFunc = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a stopped scheduler.
func New(clock Clock, target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:         clock,
		target:        target,
		afterFunc:     RealTimer,
		logger:        slog.Default(),
		lookahead:     DefaultLookahead,
		scheduleAhead: DefaultScheduleAhead,
		startEpsilon:  DefaultStartEpsilon,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPattern replaces the pattern. Patterns are never mutated, so a swap
// takes effect at the next step. The pointer wraps if the new pattern is
// shorter.
func (s *Scheduler) SetPattern(p *pattern.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = p
	if p != nil && p.TotalSteps > 0 {
		s.stepPointer %= p.TotalSteps
	}
}

// Pattern returns the current pattern.
func (s *Scheduler) Pattern() *pattern.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern
}

// State returns the run state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start rewinds to step 0 and begins playback startEpsilon seconds from now.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.stepPointer = 0
	s.nextEventTime = s.clock.CurrentTime() + s.startEpsilon
	s.playhead = s.playhead[:0]
	s.state = Playing
	s.run++
	run := s.run
	s.mu.Unlock()

	s.logger.Debug("scheduler started")
	s.tick(run)
}

// Stop cancels the pending wake-up. The position is kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == Playing {
		s.logger.Debug("scheduler stopped", "step", s.stepPointer)
	}
	s.state = Stopped
}

// Tick runs one loop iteration: it triggers every step whose time is inside
// the horizon, then re-arms the timer. It is a no-op while stopped or when
// there is no pattern.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	s.tick(run)
}

func (s *Scheduler) tick(run uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pattern
	if run != s.run || s.state != Playing || p == nil || p.TotalSteps <= 0 {
		return
	}

	now := s.clock.CurrentTime()
	stepDur := p.StepDuration()
	for s.nextEventTime < now+s.scheduleAhead {
		for _, n := range p.NotesAt(s.stepPointer) {
			s.target.Trigger(n.Instrument, s.nextEventTime, n.Velocity)
		}
		s.pushPlayhead(s.stepPointer, s.nextEventTime)
		s.nextEventTime += stepDur
		s.stepPointer = (s.stepPointer + 1) % p.TotalSteps
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.afterFunc(s.lookahead, func() { s.tick(run) })
}

func (s *Scheduler) pushPlayhead(step int, at float64) {
	if len(s.playhead) == maxPlayhead {
		copy(s.playhead, s.playhead[1:])
		s.playhead = s.playhead[:maxPlayhead-1]
	}
	s.playhead = append(s.playhead, playheadEntry{step: step, at: at})
}

// StepAt returns the step audible at audio time now: the latest scheduled
// step whose time is not after now, or -1 if none has started.
func (s *Scheduler) StepAt(now float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := -1
	for _, e := range s.playhead {
		if e.at > now {
			break
		}
		step = e.step
	}
	return step
}

// Position returns the next step to schedule and its audio time.
func (s *Scheduler) Position() (step int, at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepPointer, s.nextEventTime
}
