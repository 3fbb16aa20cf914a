package audio

import "time"

// Buffer is a decoded, device-playable chunk of audio: normalized float32
// samples in the range [-1, 1], interleaved when Channels > 1.
//
// Buffers are immutable by convention — once handed to a [Scheduler] or an
// [Output] the caller must not modify Samples.
type Buffer struct {
	// Samples holds the normalized sample data, interleaved per frame.
	Samples []float32

	// SampleRate in Hz (e.g., 24000 for model output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Frames returns the number of sample frames in the buffer.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer. A buffer with no
// samples, or with a non-positive sample rate or channel count, has zero
// duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	frames := b.Frames()
	if frames == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}
