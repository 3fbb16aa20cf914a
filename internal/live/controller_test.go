package live_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resona-ai/resona/internal/live"
	"github.com/resona-ai/resona/pkg/audio"
	audiomock "github.com/resona-ai/resona/pkg/audio/mock"
	"github.com/resona-ai/resona/pkg/provider/genai"
	genaimock "github.com/resona-ai/resona/pkg/provider/genai/mock"
)

// fixture bundles a controller with the mocks behind it.
type fixture struct {
	ctrl    *live.Controller
	dialer  *genaimock.Dialer
	session *genaimock.Session
	capture *audiomock.Capture
	output  *audiomock.Output
}

func newFixture(opts ...live.Option) *fixture {
	sess := &genaimock.Session{}
	dialer := &genaimock.Dialer{Session: sess, OpenOnConnect: true}
	capture := audiomock.NewCapture()
	output := audiomock.NewOutput()
	sched := audio.NewScheduler(output)

	ctrl := live.New(dialer, capture, sched, genai.LiveConfig{VoiceID: "Kore"}, opts...)
	return &fixture{
		ctrl:    ctrl,
		dialer:  dialer,
		session: sess,
		capture: capture,
		output:  output,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout: " + msg)
}

// modelChunk builds a MediaChunk carrying n samples of silence at 24 kHz.
func modelChunk(n int) genai.MediaChunk {
	return genai.MediaChunk{
		MIMEType: "audio/pcm;rate=24000",
		Data:     audio.EncodeBase64(make([]byte, 2*n)),
	}
}

// ── Start ──────────────────────────────────────────────────────────────────────

func TestStart_TransitionsToStreaming(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if got := f.ctrl.State(); got != live.StateIdle {
		t.Fatalf("initial state = %v; want idle", got)
	}

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after Start = %v; want streaming", got)
	}
	if calls := f.dialer.ConnectCalls; len(calls) != 1 {
		t.Fatalf("ConnectLive calls = %d; want 1", len(calls))
	}
	if got := f.dialer.ConnectCalls[0].Cfg.VoiceID; got != "Kore" {
		t.Errorf("dialed voice = %q; want Kore", got)
	}
}

func TestStart_StaysConnectingUntilSetupAck(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.OpenOnConnect = false

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	if got := f.ctrl.State(); got != live.StateConnecting {
		t.Fatalf("state before ack = %v; want connecting", got)
	}

	f.dialer.Callbacks().OnOpen()
	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after ack = %v; want streaming", got)
	}
}

func TestStart_RepeatedSetupAck_NoPanic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.OpenOnConnect = false

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	// Some peers repeat the setup ack; the second must be a no-op.
	f.dialer.Callbacks().OnOpen()
	f.dialer.Callbacks().OnOpen()

	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after repeated ack = %v; want streaming", got)
	}
}

func TestStart_WhenNotIdle_ReturnsError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer f.ctrl.Stop()

	if err := f.ctrl.Start(context.Background()); err == nil {
		t.Fatal("second Start should return an error")
	}
}

func TestStart_MicDenied_LeavesIdle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.capture.StartErr = errors.New("permission denied")

	err := f.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("Start with denied microphone should return an error")
	}
	var devErr *live.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("error = %T; want *live.DeviceError", err)
	}
	if got := f.ctrl.State(); got != live.StateIdle {
		t.Fatalf("state after device error = %v; want idle", got)
	}
	if len(f.dialer.ConnectCalls) != 0 {
		t.Error("no session should be dialed when the device fails")
	}

	// The device problem is fixed; Start succeeds on retry.
	f.capture.StartErr = nil
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	defer f.ctrl.Stop()

	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after retry = %v; want streaming", got)
	}
}

func TestStart_RemoteErrorDuringDial_ClosesSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.OpenOnConnect = false
	f.dialer.FailOnConnect = errors.New("rejected during setup")

	err := f.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("Start should surface a session that failed during the dial")
	}
	var sessErr *live.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("error = %T; want *live.SessionError", err)
	}
	if got := f.ctrl.State(); got != live.StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	// The session handle was returned after teardown already ran; it must
	// still be closed so the connection cannot leak.
	if got := f.session.CloseCalls(); got != 1 {
		t.Errorf("session Close calls = %d; want 1", got)
	}
	if !f.capture.Closed() {
		t.Error("capture should be released")
	}
}

func TestStart_RemoteCloseDuringDial_ClosesSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.OpenOnConnect = false
	f.dialer.CloseOnConnect = true

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start after a clean remote close: %v", err)
	}
	if got := f.ctrl.State(); got != live.StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	if got := f.session.CloseCalls(); got != 1 {
		t.Errorf("session Close calls = %d; want 1", got)
	}
	if f.ctrl.Err() != nil {
		t.Errorf("Err() = %v; want nil for a clean remote close", f.ctrl.Err())
	}
}

func TestStart_DialFailure_ClosesController(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.ConnectErr = errors.New("connection refused")

	err := f.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("Start with failing dial should return an error")
	}
	var sessErr *live.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("error = %T; want *live.SessionError", err)
	}
	if got := f.ctrl.State(); got != live.StateClosed {
		t.Errorf("state after dial failure = %v; want closed", got)
	}
	if !f.capture.Closed() {
		t.Error("capture should be released after a dial failure")
	}
}

// ── Upstream audio ─────────────────────────────────────────────────────────────

func TestForwardsCaptureFrames(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	frame := []float32{0, 0.5, -0.5, 1}
	f.capture.Push(frame)

	waitFor(t, func() bool { return len(f.session.SentChunks()) == 1 }, "frame never forwarded")

	sent := f.session.SentChunks()[0]
	if sent.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mimeType = %q; want audio/pcm;rate=16000", sent.MIMEType)
	}
	want := audio.EncodeBase64(audio.Float32ToPCM16(frame))
	if sent.Data != want {
		t.Errorf("chunk data = %q; want %q", sent.Data, want)
	}
}

func TestForwarding_SendFailure_ClosesController(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.session.SendErr = errors.New("broken pipe")
	f.capture.Push([]float32{0.1, 0.2})

	waitFor(t, func() bool { return f.ctrl.State() == live.StateClosed }, "controller never closed")

	var sessErr *live.SessionError
	if !errors.As(f.ctrl.Err(), &sessErr) {
		t.Errorf("Err() = %v; want *live.SessionError", f.ctrl.Err())
	}
}

// ── Model audio ────────────────────────────────────────────────────────────────

func TestModelAudio_SchedulesAndTracksSpeakingState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.dialer.Callbacks().OnAudio(modelChunk(2400)) // 0.1 s at 24 kHz

	hist := f.output.History()
	if len(hist) != 1 {
		t.Fatalf("scheduled buffers = %d; want 1", len(hist))
	}
	if got := hist[0].Buf.SampleRate; got != 24000 {
		t.Errorf("buffer sample rate = %d; want 24000", got)
	}
	if got := len(hist[0].Buf.Samples); got != 2400 {
		t.Errorf("buffer samples = %d; want 2400", got)
	}
	if got := f.ctrl.State(); got != live.StateModelSpeaking {
		t.Fatalf("state while playing = %v; want model_speaking", got)
	}

	// Playback drains; the floor returns to the user.
	f.output.CompleteNext()
	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after drain = %v; want streaming", got)
	}
}

func TestModelAudio_BackToBackChunksStaySpeaking(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.dialer.Callbacks().OnAudio(modelChunk(2400))
	f.dialer.Callbacks().OnAudio(modelChunk(2400))

	// First chunk finishes but a second is still queued.
	f.output.CompleteNext()
	if got := f.ctrl.State(); got != live.StateModelSpeaking {
		t.Fatalf("state with queued audio = %v; want model_speaking", got)
	}

	f.output.CompleteNext()
	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state after full drain = %v; want streaming", got)
	}
}

func TestModelAudio_EmptyChunkDoesNotEnterSpeaking(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	// A zero-sample chunk is skipped by the scheduler; with nothing queued
	// there is no completion to bring the state back, so it must not flip
	// to model_speaking in the first place.
	f.dialer.Callbacks().OnAudio(modelChunk(0))

	if got := len(f.output.History()); got != 0 {
		t.Errorf("scheduled buffers = %d; want 0 for an empty chunk", got)
	}
	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state = %v; want streaming", got)
	}
}

func TestModelAudio_MalformedChunkSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.dialer.Callbacks().OnAudio(genai.MediaChunk{Data: "not base64!!!"})

	if got := len(f.output.History()); got != 0 {
		t.Errorf("scheduled buffers = %d; want 0 for a malformed chunk", got)
	}
	if got := f.ctrl.State(); got != live.StateStreaming {
		t.Errorf("state = %v; want streaming (malformed chunks are dropped, not fatal)", got)
	}
}

// ── Session end ────────────────────────────────────────────────────────────────

func TestRemoteError_ClosesWithoutRetry(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.dialer.Callbacks().OnError(errors.New("quota exhausted"))

	if got := f.ctrl.State(); got != live.StateClosed {
		t.Fatalf("state after remote error = %v; want closed", got)
	}
	var sessErr *live.SessionError
	if !errors.As(f.ctrl.Err(), &sessErr) {
		t.Errorf("Err() = %v; want *live.SessionError", f.ctrl.Err())
	}
	if !f.capture.Closed() {
		t.Error("capture should be released on session error")
	}
	if got := len(f.dialer.ConnectCalls); got != 1 {
		t.Errorf("ConnectLive calls = %d; want 1 (no automatic retry)", got)
	}
}

func TestRemoteClose_ClosesCleanly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.dialer.Callbacks().OnClose()

	if got := f.ctrl.State(); got != live.StateClosed {
		t.Fatalf("state after remote close = %v; want closed", got)
	}
	if f.ctrl.Err() != nil {
		t.Errorf("Err() = %v; want nil for a clean remote close", f.ctrl.Err())
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.ctrl.Stop()
	f.ctrl.Stop()
	f.ctrl.Stop()

	if got := f.ctrl.State(); got != live.StateClosed {
		t.Fatalf("state after Stop = %v; want closed", got)
	}
	if got := f.session.CloseCalls(); got != 1 {
		t.Errorf("session Close calls = %d; want 1", got)
	}
	if !f.capture.Closed() {
		t.Error("capture should be released by Stop")
	}
	if f.ctrl.Err() != nil {
		t.Errorf("Err() = %v; want nil after a local Stop", f.ctrl.Err())
	}
}

func TestStop_AfterRemoteError_NoOp(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.dialer.Callbacks().OnError(errors.New("gone"))
	f.ctrl.Stop()

	// Stop after the error must not erase the terminal error.
	var sessErr *live.SessionError
	if !errors.As(f.ctrl.Err(), &sessErr) {
		t.Errorf("Err() = %v; want the session error to survive Stop", f.ctrl.Err())
	}
}

// ── State listener ─────────────────────────────────────────────────────────────

func TestStateListener_SeesEveryTransition(t *testing.T) {
	t.Parallel()

	var seen []live.State
	f := newFixture(live.WithStateListener(func(s live.State) {
		seen = append(seen, s)
	}))

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.dialer.Callbacks().OnAudio(modelChunk(2400))
	f.output.CompleteNext()
	f.ctrl.Stop()

	want := []live.State{
		live.StateConnecting,
		live.StateStreaming,
		live.StateModelSpeaking,
		live.StateStreaming,
		live.StateClosed,
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v; want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %v; want %v (full: %v)", i, seen[i], want[i], seen)
		}
	}
}
