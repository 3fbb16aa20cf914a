package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/resona-ai/resona/internal/live"
	"github.com/resona-ai/resona/internal/observe"
	"github.com/resona-ai/resona/internal/voices"
	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/provider/genai"
)

// SessionInfo holds metadata about a live voice session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Voice is the prebuilt voice the model speaks with.
	Voice string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// ErrNoLiveProvider is returned by Start when no live dialer is configured.
var ErrNoLiveProvider = errors.New("session: no live provider configured")

// SessionManager manages the lifecycle of live voice sessions. At most one
// session runs at a time; starting a new one is allowed only when the
// previous controller has reached its closed state. All exported methods are
// safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	ctrl   *live.Controller
	output audio.Output
	info   SessionInfo

	dialer  genai.LiveDialer
	devices Devices
	metrics *observe.Metrics
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionMetrics injects a metrics instance for gauge tracking.
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(sm *SessionManager) { sm.metrics = m }
}

// NewSessionManager creates a SessionManager. The dialer may be nil, in which
// case Start always fails.
func NewSessionManager(dialer genai.LiveDialer, devices Devices, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		dialer:  dialer,
		devices: devices,
	}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

// Start opens the audio devices, dials the live model, and begins streaming.
// Returns an error if a session is still running. A previous session that has
// already closed is replaced.
func (sm *SessionManager) Start(ctx context.Context, voice, instructions string) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.dialer == nil {
		return SessionInfo{}, ErrNoLiveProvider
	}
	if sm.ctrl != nil {
		if sm.ctrl.State() != live.StateClosed {
			return SessionInfo{}, fmt.Errorf("session: a live session is already active (id=%s)", sm.info.SessionID)
		}
		sm.discardLocked()
	}

	if voice == "" {
		voice = voices.Default
	}

	if sm.devices.NewCapture == nil || sm.devices.NewOutput == nil {
		return SessionInfo{}, &live.DeviceError{Op: "open", Err: fmt.Errorf("no audio devices available")}
	}
	capture, err := sm.devices.NewCapture()
	if err != nil {
		return SessionInfo{}, &live.DeviceError{Op: "open capture", Err: err}
	}
	output, err := sm.devices.NewOutput()
	if err != nil {
		capture.Close()
		return SessionInfo{}, &live.DeviceError{Op: "open output", Err: err}
	}

	sched := audio.NewScheduler(output, audio.WithPlaybackHooks(
		sm.countChunkScheduled, sm.countUnderrun,
	))
	ctrl := live.New(sm.dialer, capture, sched, genai.LiveConfig{
		VoiceID:      voice,
		Instructions: instructions,
	}, live.WithStateListener(sm.trackState()))

	if err := ctrl.Start(ctx); err != nil {
		capture.Close()
		output.Close()
		return SessionInfo{}, err
	}

	now := time.Now().UTC()
	sm.ctrl = ctrl
	sm.output = output
	sm.info = SessionInfo{
		SessionID: "live-" + now.Format("20060102T150405Z"),
		Voice:     voice,
		StartedAt: now,
	}

	slog.Info("live session started", "session_id", sm.info.SessionID, "voice", voice)
	return sm.info, nil
}

// Stop ends the active session. Returns an error if none is running.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctrl == nil {
		return fmt.Errorf("session: no active live session")
	}

	sessionID := sm.info.SessionID
	sm.ctrl.Stop()
	sm.discardLocked()

	slog.Info("live session stopped", "session_id", sessionID)
	return nil
}

// Status reports the controller state, session metadata, and the terminal
// error, if any. With no session it reports [live.StateIdle].
func (sm *SessionManager) Status() (live.State, SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctrl == nil {
		return live.StateIdle, SessionInfo{}, nil
	}
	return sm.ctrl.State(), sm.info, sm.ctrl.Err()
}

// Active reports whether a session is currently running.
func (sm *SessionManager) Active() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.ctrl != nil && sm.ctrl.State() != live.StateClosed
}

// discardLocked releases the finished session's resources. Caller holds sm.mu.
func (sm *SessionManager) discardLocked() {
	if sm.output != nil {
		sm.output.Close()
	}
	sm.ctrl = nil
	sm.output = nil
	sm.info = SessionInfo{}
}

// countChunkScheduled records one model audio chunk handed to the playback
// device.
func (sm *SessionManager) countChunkScheduled() {
	if sm.metrics != nil {
		sm.metrics.ChunksScheduled.Add(context.Background(), 1)
	}
}

// countUnderrun records one late chunk that forced the playback cursor to
// clamp forward.
func (sm *SessionManager) countUnderrun() {
	if sm.metrics != nil {
		sm.metrics.PlaybackUnderruns.Add(context.Background(), 1)
	}
}

// trackState returns a state listener that keeps the active-sessions gauge in
// step with the controller lifecycle. The listener runs with the controller
// lock held and must stay non-blocking.
func (sm *SessionManager) trackState() func(live.State) {
	var entered bool
	return func(s live.State) {
		if sm.metrics == nil {
			return
		}
		switch s {
		case live.StateConnecting:
			if !entered {
				entered = true
				sm.metrics.ActiveLiveSessions.Add(context.Background(), 1)
			}
		case live.StateClosed:
			if entered {
				entered = false
				sm.metrics.ActiveLiveSessions.Add(context.Background(), -1)
			}
		}
	}
}
