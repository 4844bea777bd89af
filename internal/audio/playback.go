package audio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// drainMargin is how long after the last scheduled end offset the timeline
// waits before declaring the queue drained. Heuristic, not a contract.
const drainMargin = 100 * time.Millisecond

// Scheduler lays decoded audio segments on an output timeline with no gap
// and no overlap. Segment N+1 always starts where segment N ends, or at
// the current clock if the queue already drained. Emptiness is inferred by
// comparing the clock to the last scheduled end offset; there is no
// explicit counter.
type Scheduler struct {
	clk       clock.Clock
	onDrained func()

	mu    sync.Mutex
	epoch time.Time
	end   time.Time
	timer *clock.Timer
}

// NewScheduler creates a scheduler on the given clock. onDrained fires
// once each time the scheduled timeline empties; it may be nil.
func NewScheduler(clk clock.Clock, onDrained func()) *Scheduler {
	return &Scheduler{clk: clk, onDrained: onDrained}
}

// Schedule queues one PCM segment and returns its start offset relative to
// the first segment scheduled since the last reset.
func (s *Scheduler) Schedule(pcm []byte) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if s.epoch.IsZero() {
		s.epoch = now
		s.end = now
	}

	start := now
	if s.end.After(now) {
		start = s.end
	}
	s.end = start.Add(PCMDuration(pcm))
	s.armDrainTimer(now)
	return start.Sub(s.epoch)
}

// PlayOnce plays exactly one buffer, replacing any scheduled timeline, and
// signals completion through done. Used by the turn-based flow.
func (s *Scheduler) PlayOnce(pcm []byte, done func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if s.epoch.IsZero() {
		s.epoch = now
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.end = now.Add(PCMDuration(pcm))
	wait := s.end.Sub(now)
	s.timer = s.clk.AfterFunc(wait, func() {
		if done != nil {
			done()
		}
	})
}

// Draining reports whether scheduled audio is still pending.
func (s *Scheduler) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Before(s.end)
}

// EndOffset returns the last scheduled end offset relative to the epoch.
func (s *Scheduler) EndOffset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.IsZero() {
		return 0
	}
	return s.end.Sub(s.epoch)
}

// Flush stops all pending segments immediately and resets the end offset
// to the current clock. Used on barge-in and logout.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.end = s.clk.Now()
}

// Reset flushes and clears the epoch so the next segment starts a fresh
// timeline.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch = time.Time{}
	s.end = time.Time{}
}

// armDrainTimer re-arms the drained notification for the current end
// offset. Caller holds the lock.
func (s *Scheduler) armDrainTimer(now time.Time) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.onDrained == nil {
		return
	}
	wait := s.end.Sub(now) + drainMargin
	s.timer = s.clk.AfterFunc(wait, func() {
		// Only report drained if nothing was scheduled after this arm.
		if !s.Draining() {
			s.onDrained()
		}
	})
}
