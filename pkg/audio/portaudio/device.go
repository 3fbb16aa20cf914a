// Package portaudio implements the audio.Capture and audio.Output device
// interfaces on top of PortAudio, giving Resona real microphone input and
// speaker output on desktop platforms.
//
// PortAudio's library-level Initialize/Terminate pair is reference-counted
// here so that a capture and an output device can coexist within one
// process.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/resona-ai/resona/pkg/audio"
)

// Compile-time assertions that the devices satisfy the audio interfaces.
var _ audio.Capture = (*Capture)(nil)
var _ audio.Output = (*Output)(nil)

// initMu guards the PortAudio library refcount.
var (
	initMu   sync.Mutex
	initRefs int
)

func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

func release() {
	initMu.Lock()
	defer initMu.Unlock()
	initRefs--
	if initRefs == 0 {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("portaudio: terminate error", "err", err)
		}
	}
}

// ── Capture ────────────────────────────────────────────────────────────────────

// Capture reads mono float32 frames from the default input device.
type Capture struct {
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	started bool
	closed  bool
	stop    chan struct{}
}

// NewCapture opens the default input device for mono capture at the given
// sample rate, delivering frames of frameSize samples.
func NewCapture(sampleRate, frameSize int) (*Capture, error) {
	if err := acquire(); err != nil {
		return nil, err
	}

	c := &Capture{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buf:        make([]float32, frameSize),
		stop:       make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, c.buf)
	if err != nil {
		release()
		return nil, fmt.Errorf("portaudio: open capture stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// Start implements audio.Capture. Frames are read on a dedicated goroutine
// and delivered on the returned channel until ctx is cancelled or Close is
// called.
func (c *Capture) Start(ctx context.Context) (<-chan []float32, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("portaudio: capture closed")
	}
	if c.started {
		c.mu.Unlock()
		return nil, errors.New("portaudio: capture already started")
	}
	c.started = true
	stream := c.stream
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("portaudio: start capture: %w", err)
	}

	out := make(chan []float32, 8)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			default:
			}

			if err := stream.Read(); err != nil {
				slog.Warn("portaudio: capture read error", "err", err)
				return
			}

			frame := make([]float32, len(c.buf))
			copy(frame, c.buf)

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()

	return out, nil
}

// Close implements audio.Capture. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	release()
	return errors.Join(errs...)
}

// ── Output ─────────────────────────────────────────────────────────────────────

// queued is one buffer awaiting its scheduled start time.
type queued struct {
	buf  audio.Buffer
	when float64
	done func()
}

// Output plays scheduled buffers through the default output device. Its
// device clock is the wall-clock time elapsed since the device was opened,
// which is monotonic and shared by every buffer scheduled against it.
type Output struct {
	sampleRate int
	channels   int
	epoch      time.Time

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	queue  []queued
	wake   chan struct{}
	closed bool
	stop   chan struct{}
}

// outputFrameSize is the per-write frame count for the playback stream.
const outputFrameSize = 1024

// NewOutput opens the default output device at the given sample rate and
// channel count and starts the playback goroutine.
func NewOutput(sampleRate, channels int) (*Output, error) {
	if err := acquire(); err != nil {
		return nil, err
	}

	o := &Output{
		sampleRate: sampleRate,
		channels:   channels,
		epoch:      time.Now(),
		buf:        make([]float32, outputFrameSize*channels),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), outputFrameSize, o.buf)
	if err != nil {
		release()
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	o.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		release()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}

	go o.playLoop()
	return o, nil
}

// Now implements audio.Output.
func (o *Output) Now() float64 {
	return time.Since(o.epoch).Seconds()
}

// PlayAt implements audio.Output. Buffers are queued and written to the
// device by the playback goroutine once their start time arrives.
func (o *Output) PlayAt(buf audio.Buffer, when float64, done func()) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("portaudio: output closed")
	}
	o.queue = append(o.queue, queued{buf: buf, when: when, done: done})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// playLoop pops queued buffers in FIFO order, sleeps until each buffer's
// start time, and writes its samples to the device in fixed-size chunks.
func (o *Output) playLoop() {
	for {
		o.mu.Lock()
		var next *queued
		if len(o.queue) > 0 {
			q := o.queue[0]
			o.queue = o.queue[1:]
			next = &q
		}
		stream := o.stream
		o.mu.Unlock()

		if next == nil {
			select {
			case <-o.stop:
				return
			case <-o.wake:
				continue
			}
		}

		// Wait for the scheduled start time.
		if delay := next.when - o.Now(); delay > 0 {
			select {
			case <-o.stop:
				return
			case <-time.After(time.Duration(delay * float64(time.Second))):
			}
		}

		o.writeBuffer(stream, next.buf)

		if next.done != nil {
			next.done()
		}
	}
}

// writeBuffer streams buf's samples to the device, converting mono material
// to the device channel count when they differ.
func (o *Output) writeBuffer(stream *portaudio.Stream, buf audio.Buffer) {
	samples := buf.Samples
	if buf.Channels == 1 && o.channels == 2 {
		samples = audio.MonoToStereo(samples)
	} else if buf.Channels == 2 && o.channels == 1 {
		samples = audio.StereoToMono(samples)
	}

	for off := 0; off < len(samples); off += len(o.buf) {
		select {
		case <-o.stop:
			return
		default:
		}

		n := copy(o.buf, samples[off:])
		for i := n; i < len(o.buf); i++ {
			o.buf[i] = 0 // zero-pad the final partial write
		}
		if err := stream.Write(); err != nil {
			slog.Warn("portaudio: output write error", "err", err)
			return
		}
	}
}

// Close implements audio.Output. Pending buffers are discarded. Idempotent.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.queue = nil
	close(o.stop)
	stream := o.stream
	o.stream = nil
	o.mu.Unlock()

	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	release()
	return errors.Join(errs...)
}
