// Package mock provides test doubles for the genai package interfaces.
//
// Use Provider to return canned media results and record the prompts it was
// asked for. Use Dialer together with Session to drive a live session from a
// test: the test holds the Session, pushes model audio through the registered
// callbacks, and inspects what the controller sent.
//
// Example:
//
//	sess := &mock.Session{}
//	d := &mock.Dialer{Session: sess}
//	handle, _ := d.ConnectLive(ctx, cfg, cb)
//	d.Callbacks().OnAudio(genai.MediaChunk{...})
package mock

import (
	"context"
	"sync"

	"github.com/resona-ai/resona/pkg/provider/genai"
)

// Ensure the mocks implement the genai interfaces at compile time.
var _ genai.Provider = (*Provider)(nil)
var _ genai.LiveDialer = (*Dialer)(nil)
var _ genai.LiveSession = (*Session)(nil)

// SpeechCall records a single invocation of Provider.GenerateSpeech.
type SpeechCall struct {
	Text    string
	VoiceID string
}

// Provider is a mock implementation of genai.Provider.
type Provider struct {
	mu sync.Mutex

	// SpeechData is returned by GenerateSpeech.
	SpeechData string

	// ImageURL is returned by GenerateImage.
	ImageURL string

	// VideoURL is returned by GenerateVideo.
	VideoURL string

	// SpeechErr, ImageErr and VideoErr, if non-nil, are returned by the
	// corresponding operation.
	SpeechErr error
	ImageErr  error
	VideoErr  error

	// Caps is returned by Capabilities.
	Caps genai.Capabilities

	// SpeechCalls records every GenerateSpeech call in order.
	SpeechCalls []SpeechCall

	// ImagePrompts records the prompt of every GenerateImage call in order.
	ImagePrompts []string

	// VideoRequests records every GenerateVideo call in order.
	VideoRequests []genai.VideoRequest
}

// GenerateSpeech records the call and returns SpeechData, SpeechErr.
func (p *Provider) GenerateSpeech(_ context.Context, text, voiceID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeechCalls = append(p.SpeechCalls, SpeechCall{Text: text, VoiceID: voiceID})
	if p.SpeechErr != nil {
		return "", p.SpeechErr
	}
	return p.SpeechData, nil
}

// GenerateImage records the call and returns ImageURL, ImageErr.
func (p *Provider) GenerateImage(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ImagePrompts = append(p.ImagePrompts, prompt)
	if p.ImageErr != nil {
		return "", p.ImageErr
	}
	return p.ImageURL, nil
}

// GenerateVideo records the call and returns VideoURL, VideoErr.
func (p *Provider) GenerateVideo(_ context.Context, req genai.VideoRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VideoRequests = append(p.VideoRequests, req)
	if p.VideoErr != nil {
		return "", p.VideoErr
	}
	return p.VideoURL, nil
}

// Capabilities returns Caps.
func (p *Provider) Capabilities() genai.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Caps
}

// ConnectCall records a single invocation of Dialer.ConnectLive.
type ConnectCall struct {
	Cfg genai.LiveConfig
}

// Dialer is a mock implementation of genai.LiveDialer.
type Dialer struct {
	mu sync.Mutex

	// Session is the LiveSession returned by ConnectLive. If nil, ConnectLive
	// returns a new default Session.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from ConnectLive.
	ConnectErr error

	// OpenOnConnect, when set, fires cb.OnOpen before ConnectLive returns.
	// Tests that want to control setup timing leave it unset and invoke
	// Callbacks().OnOpen themselves.
	OpenOnConnect bool

	// FailOnConnect, when non-nil, fires cb.OnError with this error before
	// ConnectLive returns the session, simulating a remote that fails while
	// the dial is still in flight.
	FailOnConnect error

	// CloseOnConnect, when set, fires cb.OnClose before ConnectLive returns
	// the session, simulating a remote that hangs up during setup.
	CloseOnConnect bool

	// ConnectCalls records every call to ConnectLive in order.
	ConnectCalls []ConnectCall

	cb genai.LiveCallbacks
}

// ConnectLive records the call, stores cb for later retrieval via Callbacks
// and returns Session, ConnectErr.
func (d *Dialer) ConnectLive(_ context.Context, cfg genai.LiveConfig, cb genai.LiveCallbacks) (genai.LiveSession, error) {
	d.mu.Lock()
	d.ConnectCalls = append(d.ConnectCalls, ConnectCall{Cfg: cfg})
	if d.ConnectErr != nil {
		d.mu.Unlock()
		return nil, d.ConnectErr
	}
	d.cb = cb
	sess := d.Session
	if sess == nil {
		sess = &Session{}
		d.Session = sess
	}
	open := d.OpenOnConnect
	fail := d.FailOnConnect
	closeNow := d.CloseOnConnect
	d.mu.Unlock()

	if open && cb.OnOpen != nil {
		cb.OnOpen()
	}
	if fail != nil && cb.OnError != nil {
		cb.OnError(fail)
	}
	if closeNow && cb.OnClose != nil {
		cb.OnClose()
	}
	return sess, nil
}

// Callbacks returns the LiveCallbacks captured by the last ConnectLive call.
// Tests use it to push session events into the caller.
func (d *Dialer) Callbacks() genai.LiveCallbacks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}

// Session is a mock implementation of genai.LiveSession.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by every SendRealtimeInput call.
	SendErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Sent records every chunk passed to SendRealtimeInput in order.
	Sent []genai.MediaChunk

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendRealtimeInput records the chunk and returns SendErr.
func (s *Session) SendRealtimeInput(chunk genai.MediaChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, chunk)
	return s.SendErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SentChunks returns a copy of the recorded chunks. Thread-safe.
func (s *Session) SentChunks() []genai.MediaChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]genai.MediaChunk, len(s.Sent))
	copy(out, s.Sent)
	return out
}

// CloseCalls returns the number of Close invocations. Thread-safe.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}
