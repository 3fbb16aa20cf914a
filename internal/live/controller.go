// Package live drives a duplex voice conversation: it forwards microphone
// frames to a model session and plays the model's speech back through the
// playback scheduler.
//
// The Controller owns one conversation at a time and moves through a fixed
// set of states:
//
//	Idle → Connecting → Streaming ⇄ ModelSpeaking → Closed
//
// Streaming means the user's audio is flowing upstream; ModelSpeaking is
// Streaming plus queued model audio still playing (capture keeps running so
// the user can speak over the model). A session that ends — via Stop, a
// remote close or a session error — lands in Closed and stays there; a new
// conversation needs a new Controller.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/provider/genai"
)

const (
	// InputSampleRate is the capture rate sent upstream.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of the model's speech audio.
	OutputSampleRate = 24000

	// FrameSize is the number of samples per captured frame.
	FrameSize = 4096

	inputMIMEType = "audio/pcm;rate=16000"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateModelSpeaking
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateModelSpeaking:
		return "model_speaking"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceError reports a failure to acquire or drive a local audio device,
// typically a denied or missing microphone. It is recoverable: the controller
// stays Idle and Start may be retried once the device problem is fixed.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("live: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SessionError reports a failure of the model session itself: a refused
// dial, a dropped connection or a remote error message. The controller moves
// to Closed and does not retry.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("live: session: %v", e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithStateListener registers a callback invoked on every state transition.
// The callback runs with the controller lock held and must not call back into
// the Controller.
func WithStateListener(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// Controller runs one duplex voice conversation.
type Controller struct {
	dialer  genai.LiveDialer
	capture audio.Capture
	sched   *audio.Scheduler
	cfg     genai.LiveConfig
	log     *slog.Logger
	onState func(State)

	mu      sync.Mutex
	state   State
	session genai.LiveSession
	cancel  context.CancelFunc
	errVal  error
}

// New creates a Controller that dials sessions through dialer, reads
// microphone frames from capture and plays model speech through sched.
func New(dialer genai.LiveDialer, capture audio.Capture, sched *audio.Scheduler, cfg genai.LiveConfig, opts ...Option) *Controller {
	c := &Controller{
		dialer:  dialer,
		capture: capture,
		sched:   sched,
		cfg:     cfg,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that terminated the conversation, or nil if it is
// still running or was stopped locally.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// setState transitions to next and notifies the listener. Caller must hold
// c.mu.
func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}
	c.state = next
	if c.onState != nil {
		c.onState(next)
	}
}

// Start opens the microphone and dials the model session. It may only be
// called in the Idle state.
//
// A device failure (e.g. microphone access denied) returns a *DeviceError
// and leaves the controller Idle so Start can be retried. A dial failure
// returns a *SessionError and closes the controller. A session that fails
// through its callbacks while Start is still running also closes the
// controller, and Start returns its terminal error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("live: start: controller is %s", st)
	}
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())

	frames, err := c.capture.Start(runCtx)
	if err != nil {
		cancel()
		// Stay Idle: the user can fix the device and try again.
		return &DeviceError{Op: "capture start", Err: err}
	}

	c.mu.Lock()
	c.cancel = cancel
	c.setState(StateConnecting)
	c.mu.Unlock()

	// A peer may deliver the setup ack more than once; only the first may
	// release the forward loop.
	open := make(chan struct{})
	var openOnce sync.Once
	cb := genai.LiveCallbacks{
		OnOpen: func() {
			c.mu.Lock()
			if c.state == StateConnecting {
				c.setState(StateStreaming)
			}
			c.mu.Unlock()
			openOnce.Do(func() { close(open) })
		},
		OnAudio: c.handleModelAudio,
		OnClose: func() {
			c.log.Info("live session closed by remote")
			c.teardown(nil)
		},
		OnError: func(err error) {
			c.log.Error("live session failed", "error", err)
			c.teardown(&SessionError{Err: err})
		},
	}

	sess, err := c.dialer.ConnectLive(ctx, c.cfg, cb)
	if err != nil {
		c.capture.Close()
		cancel()
		sessErr := &SessionError{Err: err}
		c.mu.Lock()
		c.errVal = sessErr
		c.setState(StateClosed)
		c.mu.Unlock()
		return sessErr
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// A callback tore the controller down before the session handle was
		// stored, so teardown could not close it. Close it here.
		err := c.errVal
		c.mu.Unlock()
		if cerr := sess.Close(); cerr != nil {
			c.log.Warn("close live session", "error", cerr)
		}
		return err
	}
	c.session = sess
	c.mu.Unlock()

	c.sched.OnIdle(c.playbackDrained)

	go c.forwardLoop(runCtx, sess, frames, open)

	c.log.Info("live session started", "voice", c.cfg.VoiceID)
	return nil
}

// forwardLoop pushes captured frames upstream. It waits for the session
// setup ack before sending; frames captured in the meantime queue in the
// capture channel.
func (c *Controller) forwardLoop(ctx context.Context, sess genai.LiveSession, frames <-chan []float32, open <-chan struct{}) {
	select {
	case <-open:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			chunk := genai.MediaChunk{
				MIMEType: inputMIMEType,
				Data:     audio.EncodeBase64(audio.Float32ToPCM16(frame)),
			}
			if err := sess.SendRealtimeInput(chunk); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Error("forward audio frame", "error", err)
				c.teardown(&SessionError{Err: err})
				return
			}
		}
	}
}

// handleModelAudio decodes one model speech chunk and hands it to the
// playback scheduler.
func (c *Controller) handleModelAudio(chunk genai.MediaChunk) {
	pcm, err := audio.DecodeBase64(chunk.Data)
	if err != nil {
		c.log.Warn("dropping malformed model audio chunk", "error", err)
		return
	}

	buf, err := audio.DecodePCM16(pcm, OutputSampleRate, 1)
	if err != nil {
		c.log.Warn("dropping undecodable model audio chunk", "error", err)
		return
	}

	scheduled, err := c.sched.ScheduleChunk(buf)
	if err != nil {
		c.log.Error("schedule model audio", "error", err)
		c.teardown(&SessionError{Err: err})
		return
	}
	if !scheduled {
		// Nothing was queued, so no completion callback will ever fire to
		// bring the state back out of ModelSpeaking.
		return
	}

	c.mu.Lock()
	if c.state == StateStreaming {
		c.setState(StateModelSpeaking)
	}
	c.mu.Unlock()
}

// playbackDrained runs when the scheduler's queue empties: the model has
// finished speaking and the floor returns to the user.
func (c *Controller) playbackDrained() {
	c.mu.Lock()
	if c.state == StateModelSpeaking {
		c.setState(StateStreaming)
	}
	c.mu.Unlock()
}

// teardown closes the session and devices and moves to Closed. err, when
// non-nil, is recorded as the terminal error. Safe to call from any state
// and from callback goroutines; only the first call acts.
func (c *Controller) teardown(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.errVal = err
	sess := c.session
	cancel := c.cancel
	c.setState(StateClosed)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		if cerr := sess.Close(); cerr != nil {
			c.log.Warn("close live session", "error", cerr)
		}
	}
	if cerr := c.capture.Close(); cerr != nil {
		c.log.Warn("close capture device", "error", cerr)
	}
	c.sched.Reset()
}

// Stop ends the conversation and releases the microphone. Idempotent: any
// call after the first is a no-op, including after a remote close or error.
func (c *Controller) Stop() {
	c.teardown(nil)
}
