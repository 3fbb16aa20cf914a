package audio_test

import (
	"math"
	"testing"

	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/audio/mock"
)

// monoBuffer returns a mono buffer with the given duration in seconds at
// 24 kHz.
func monoBuffer(seconds float64) audio.Buffer {
	n := int(seconds * 24000)
	return audio.Buffer{
		Samples:    make([]float32, n),
		SampleRate: 24000,
		Channels:   1,
	}
}

// schedule enqueues buf and fails the test on a scheduling error. It returns
// whether the buffer was accepted.
func schedule(t *testing.T, s *audio.Scheduler, buf audio.Buffer) bool {
	t.Helper()
	ok, err := s.ScheduleChunk(buf)
	if err != nil {
		t.Fatalf("ScheduleChunk: %v", err)
	}
	return ok
}

// closeEnough compares two device-clock times with a small float tolerance.
func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScheduler_BackToBackChunks(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	durations := []float64{0.5, 0.25, 1.0}
	for _, d := range durations {
		if !schedule(t, s, monoBuffer(d)) {
			t.Fatal("chunk was not scheduled")
		}
	}

	hist := out.History()
	if len(hist) != 3 {
		t.Fatalf("scheduled %d chunks, want 3", len(hist))
	}

	// Chunks arrived faster than real time: each must start exactly where
	// its predecessor ends — no gap, no overlap.
	if !closeEnough(hist[0].When, 0) {
		t.Errorf("chunk 0 start: got %v, want 0", hist[0].When)
	}
	for i := 1; i < len(hist); i++ {
		prevEnd := hist[i-1].When + hist[i-1].Buf.Duration().Seconds()
		if !closeEnough(hist[i].When, prevEnd) {
			t.Errorf("chunk %d start: got %v, want %v (end of chunk %d)", i, hist[i].When, prevEnd, i-1)
		}
	}
}

func TestScheduler_UnderrunClampsForward(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	schedule(t, s, monoBuffer(0.5))

	// Chunk 1 finishes, then the clock runs on past the cursor before
	// chunk 2 arrives (network underrun).
	out.CompleteNext()
	out.Advance(2.0)

	schedule(t, s, monoBuffer(0.5))

	hist := out.History()
	if got, want := hist[1].When, out.Now(); !closeEnough(got, want) {
		t.Errorf("late chunk start: got %v, want now (%v) — must never schedule in the past", got, want)
	}
	if hist[1].When < hist[0].When+hist[0].Buf.Duration().Seconds() {
		t.Error("late chunk overlaps its predecessor")
	}
}

func TestScheduler_IdleSignal(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	idleCount := 0
	s.OnIdle(func() { idleCount++ })

	schedule(t, s, monoBuffer(0.5))
	schedule(t, s, monoBuffer(0.5))

	// First completion: a second chunk has already extended the horizon, so
	// the queue is not idle yet.
	out.CompleteNext()
	if idleCount != 0 {
		t.Fatalf("idle fired after first completion with a chunk still queued")
	}

	// Second completion drains the queue.
	out.CompleteNext()
	if idleCount != 1 {
		t.Fatalf("idle fired %d times after drain, want 1", idleCount)
	}
}

func TestScheduler_SkipsZeroDurationBuffer(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	if schedule(t, s, audio.Buffer{SampleRate: 24000, Channels: 1}) {
		t.Error("zero-duration buffer reported as scheduled")
	}
	if len(out.History()) != 0 {
		t.Error("zero-duration buffer was scheduled; it should be skipped")
	}
	if s.NextStart() != 0 {
		t.Error("zero-duration buffer advanced the cursor")
	}
}

func TestScheduler_PlaybackHooks(t *testing.T) {
	out := mock.NewOutput()
	scheduledCount, underrunCount := 0, 0
	s := audio.NewScheduler(out, audio.WithPlaybackHooks(
		func() { scheduledCount++ },
		func() { underrunCount++ },
	))

	schedule(t, s, monoBuffer(0.5))
	schedule(t, s, monoBuffer(0.5))
	if scheduledCount != 2 {
		t.Fatalf("scheduled hook fired %d times, want 2", scheduledCount)
	}
	if underrunCount != 0 {
		t.Fatalf("underrun hook fired %d times for on-time chunks, want 0", underrunCount)
	}

	// A skipped buffer is not a scheduled chunk.
	schedule(t, s, audio.Buffer{SampleRate: 24000, Channels: 1})
	if scheduledCount != 2 {
		t.Errorf("scheduled hook fired for a skipped buffer")
	}

	// Let the clock run past the cursor, then deliver a late chunk.
	out.CompleteNext()
	out.CompleteNext()
	out.Advance(3.0)
	schedule(t, s, monoBuffer(0.5))

	if scheduledCount != 3 {
		t.Errorf("scheduled hook fired %d times, want 3", scheduledCount)
	}
	if underrunCount != 1 {
		t.Errorf("underrun hook fired %d times after a late chunk, want 1", underrunCount)
	}
}

func TestScheduler_ResetRezeroesCursor(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	schedule(t, s, monoBuffer(1.0))
	if s.NextStart() == 0 {
		t.Fatal("cursor did not advance")
	}

	s.Reset()
	if s.NextStart() != 0 {
		t.Errorf("cursor after Reset: got %v, want 0", s.NextStart())
	}
}

func TestScheduler_CursorNeverRegresses(t *testing.T) {
	out := mock.NewOutput()
	s := audio.NewScheduler(out)

	last := 0.0
	for i := 0; i < 10; i++ {
		schedule(t, s, monoBuffer(0.1))
		if cur := s.NextStart(); cur < last {
			t.Fatalf("cursor regressed: %v < %v", cur, last)
		} else {
			last = cur
		}
	}
}
