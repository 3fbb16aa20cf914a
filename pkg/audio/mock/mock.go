// Package mock provides in-memory [audio.Capture] and [audio.Output]
// implementations for tests. The output device uses a manually-advanced
// clock so scheduling behaviour can be asserted deterministically, without
// real time or a real device.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/resona-ai/resona/pkg/audio"
)

// Compile-time assertions that the mocks satisfy the device interfaces.
var _ audio.Capture = (*Capture)(nil)
var _ audio.Output = (*Output)(nil)

// Capture is a scripted audio.Capture. Frames pushed via [Capture.Push] are
// delivered to the consumer returned by Start.
type Capture struct {
	// StartErr, when non-nil, is returned by Start — simulates a denied or
	// unavailable microphone.
	StartErr error

	mu      sync.Mutex
	ch      chan []float32
	started bool
	closed  bool
}

// NewCapture creates an idle mock capture device.
func NewCapture() *Capture {
	return &Capture{}
}

// Start implements audio.Capture.
func (c *Capture) Start(ctx context.Context) (<-chan []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StartErr != nil {
		return nil, c.StartErr
	}
	if c.started {
		return nil, errors.New("mock capture: Start called twice")
	}
	if c.closed {
		return nil, errors.New("mock capture: closed")
	}

	c.started = true
	c.ch = make(chan []float32, 16)

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	return c.ch, nil
}

// Push delivers one capture frame to the consumer. Frames pushed before
// Start or after Close are dropped.
func (c *Capture) Push(frame []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.closed {
		return
	}
	c.ch <- frame
}

// Close implements audio.Capture. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ch != nil {
		close(c.ch)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Scheduled records one buffer handed to the mock output device.
type Scheduled struct {
	Buf  audio.Buffer
	When float64
	done func()
}

// Output is an audio.Output with a manual clock. Tests advance the clock
// with [Output.Advance] and fire completion callbacks with
// [Output.CompleteNext].
type Output struct {
	// PlayErr, when non-nil, is returned by PlayAt.
	PlayErr error

	mu      sync.Mutex
	now     float64
	queue   []Scheduled
	history []Scheduled
	closed  bool
}

// NewOutput creates a mock output device with its clock at zero.
func NewOutput() *Output {
	return &Output{}
}

// Now implements audio.Output.
func (o *Output) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Advance moves the device clock forward by d seconds.
func (o *Output) Advance(d float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// PlayAt implements audio.Output. The buffer is recorded; nothing plays
// until the test fires its completion via [Output.CompleteNext].
func (o *Output) PlayAt(buf audio.Buffer, when float64, done func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PlayErr != nil {
		return o.PlayErr
	}
	if o.closed {
		return errors.New("mock output: closed")
	}
	s := Scheduled{Buf: buf, When: when, done: done}
	o.queue = append(o.queue, s)
	o.history = append(o.history, s)
	return nil
}

// CompleteNext advances the clock to the end of the oldest queued buffer and
// fires its completion callback on the calling goroutine. It reports whether
// a buffer was pending.
func (o *Output) CompleteNext() bool {
	o.mu.Lock()
	if len(o.queue) == 0 {
		o.mu.Unlock()
		return false
	}
	s := o.queue[0]
	o.queue = o.queue[1:]
	end := s.When + s.Buf.Duration().Seconds()
	if end > o.now {
		o.now = end
	}
	o.mu.Unlock()

	if s.done != nil {
		s.done()
	}
	return true
}

// History returns a copy of every buffer ever scheduled, in arrival order.
func (o *Output) History() []Scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Scheduled, len(o.history))
	copy(out, o.history)
	return out
}

// Pending returns the number of scheduled buffers not yet completed.
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close implements audio.Output. Idempotent.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.queue = nil
	return nil
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
