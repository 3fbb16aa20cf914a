package audio

import "context"

// Capture is a platform audio-input device yielding successive frames of
// normalized float32 samples at the rate and frame size it was opened with.
//
// A Capture instance is exclusively owned by at most one live session at a
// time; the owner must call Close to release the underlying device.
type Capture interface {
	// Start begins delivering capture frames on the returned channel. Each
	// frame is a fixed-size slice of mono float32 samples. The channel is
	// closed when ctx is cancelled, Close is called, or the device fails.
	//
	// Start may be called at most once per Capture instance.
	Start(ctx context.Context) (<-chan []float32, error)

	// Close stops capture and releases the device. Safe to call more than
	// once; subsequent calls are no-ops and return nil.
	Close() error
}

// Output is a platform audio-output device with a monotonic device clock.
// Buffers are scheduled against that clock, which lets the [Scheduler] queue
// chunks back-to-back with no gaps or overlaps.
type Output interface {
	// Now returns the current device-clock time in seconds. The clock starts
	// at (or near) zero when the device is opened and advances monotonically.
	Now() float64

	// PlayAt enqueues buf to begin playing at device-clock time `when`. If
	// `when` is already in the past, playback begins immediately. done, if
	// non-nil, is invoked once the buffer has finished playing.
	//
	// done is called from the device's own playback goroutine — never
	// synchronously from within PlayAt — so callers may schedule further
	// buffers while holding their own locks.
	PlayAt(buf Buffer, when float64, done func()) error

	// Close stops playback, discards any queued buffers, and releases the
	// device. Safe to call more than once.
	Close() error
}
