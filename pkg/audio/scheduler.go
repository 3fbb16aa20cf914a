package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Scheduler serializes a stream of independently-arriving decoded buffers
// onto one continuous output timeline with no audible gaps or overlaps, and
// reports when the queue has fully drained.
//
// It keeps a single playback cursor — the earliest device-clock time at
// which the next chunk may begin without overlapping prior audio. Each
// scheduled chunk starts at max(device clock now, cursor) and advances the
// cursor by its own duration. Chunks that arrive faster than real time
// therefore play back-to-back with zero gap; chunks that arrive late
// (network underrun) are clamped forward to "now", producing silence rather
// than corrupted ordering.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	out Output

	onScheduled func()
	onUnderrun  func()

	mu     sync.Mutex
	next   float64 // playback cursor, seconds on the output device clock
	onIdle func()
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPlaybackHooks registers counters fired as the scheduler runs:
// onScheduled after a buffer is accepted for playback, onUnderrun when a
// buffer arrived late and the cursor clamped forward to the device clock.
// Either may be nil. Hooks run on the scheduling goroutine and must not
// call back into the Scheduler.
func WithPlaybackHooks(onScheduled, onUnderrun func()) SchedulerOption {
	return func(s *Scheduler) {
		s.onScheduled = onScheduled
		s.onUnderrun = onUnderrun
	}
}

// NewScheduler creates a Scheduler that plays through out. The cursor starts
// unset; the first chunk plays immediately on arrival.
func NewScheduler(out Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{out: out}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScheduleChunk enqueues buf for playback directly after the last scheduled
// chunk and reports whether the buffer was actually scheduled.
// Zero-duration buffers (empty decode output) are skipped with a warning
// instead of being scheduled: they carry no audio and would only churn the
// completion callbacks.
func (s *Scheduler) ScheduleChunk(buf Buffer) (bool, error) {
	if buf.Duration() <= 0 {
		slog.Warn("playback scheduler: skipping zero-duration buffer",
			"samples", len(buf.Samples),
			"sample_rate", buf.SampleRate,
			"channels", buf.Channels,
		)
		return false, nil
	}

	// Compute the start time and hand the buffer to the device under one
	// lock so that concurrent callers cannot reorder chunks between the
	// cursor update and the device enqueue.
	s.mu.Lock()
	start := s.out.Now()
	underrun := s.next > 0 && start > s.next
	if s.next > start {
		start = s.next
	}
	s.next = start + buf.Duration().Seconds()
	err := s.out.PlayAt(buf, start, s.chunkDone)
	s.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("audio: schedule chunk: %w", err)
	}
	if s.onScheduled != nil {
		s.onScheduled()
	}
	if underrun && s.onUnderrun != nil {
		s.onUnderrun()
	}
	return true, nil
}

// chunkDone runs when a scheduled buffer finishes playing. If no later chunk
// has extended the horizon since, the queue has drained and the idle
// callback fires.
func (s *Scheduler) chunkDone() {
	s.mu.Lock()
	idle := s.out.Now() >= s.next
	cb := s.onIdle
	s.mu.Unlock()

	if idle && cb != nil {
		cb()
	}
}

// OnIdle registers cb to be invoked whenever the playback queue fully
// drains. Only one callback may be registered; subsequent calls replace the
// previous one. The callback runs on the output device's completion
// goroutine and must not block.
func (s *Scheduler) OnIdle(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = cb
}

// Reset re-zeroes the playback cursor. Call this only when a new session
// starts — resetting mid-session would let fresh chunks overlap audio that
// is already scheduled.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// NextStart returns the current playback cursor in device-clock seconds.
// Exposed for tests and metrics.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
