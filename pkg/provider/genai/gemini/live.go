package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/resona-ai/resona/pkg/provider/genai"
)

var _ genai.LiveSession = (*liveSession)(nil)

const (
	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ConnectLive establishes a new BidiGenerateContent WebSocket session. The
// returned session is ready to accept audio once cb.OnOpen has fired.
func (p *Provider) ConnectLive(ctx context.Context, cfg genai.LiveConfig, cb genai.LiveCallbacks) (genai.LiveSession, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.liveURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &liveSession{
		conn:   conn,
		cb:     cb,
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(p.liveModel, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *json.RawMessage `json:"goAway,omitempty"`
	Error         *liveError       `json:"error,omitempty"`
}

type liveError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

// ── liveSession ────────────────────────────────────────────────────────────────

type liveSession struct {
	conn *websocket.Conn
	cb   genai.LiveCallbacks

	mu     sync.Mutex
	closed bool

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// opened guards OnOpen: servers may repeat the setup ack, the callback
	// fires once.
	opened sync.Once

	// ended guards the one terminal callback (OnClose or OnError).
	ended sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *liveSession) sendSetup(model string, cfg genai.LiveConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.VoiceID != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.VoiceID},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *liveSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them to the
// registered callbacks. It delivers the terminal OnClose/OnError event when it
// exits.
func (s *liveSession) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// Local Close cancels the session context; that is not an error
			// the caller needs to hear about.
			if s.ctx.Err() != nil {
				s.finish(nil)
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.finish(nil)
				return
			}
			s.finish(fmt.Errorf("gemini: connection lost: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		s.handleServerMessage(&msg)
	}
}

func (s *liveSession) handleServerMessage(msg *serverMessage) {
	if msg.SetupComplete != nil && s.cb.OnOpen != nil {
		s.opened.Do(s.cb.OnOpen)
	}
	if msg.Error != nil {
		text := msg.Error.Message
		if text == "" {
			text = "unknown error"
		}
		s.finish(fmt.Errorf("gemini: %s", text))
		return
	}
	if msg.GoAway != nil {
		s.finish(nil)
		return
	}
	if msg.ServerContent != nil {
		s.handleServerContent(msg.ServerContent)
	}
}

func (s *liveSession) handleServerContent(sc *serverContent) {
	if sc.ModelTurn == nil || s.cb.OnAudio == nil {
		return
	}
	for _, pt := range sc.ModelTurn.Parts {
		if pt.InlineData == nil || pt.InlineData.Data == "" {
			continue
		}
		s.cb.OnAudio(genai.MediaChunk{
			MIMEType: pt.InlineData.MIMEType,
			Data:     pt.InlineData.Data,
		})
	}
}

// finish delivers the terminal session event exactly once. A nil err means a
// clean close.
func (s *liveSession) finish(err error) {
	s.ended.Do(func() {
		if err != nil {
			if s.cb.OnError != nil {
				s.cb.OnError(err)
			}
			return
		}
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
	})
}

// keepaliveLoop sends WebSocket pings to keep the live connection alive.
func (s *liveSession) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// SendRealtimeInput forwards one captured audio chunk to the model.
func (s *liveSession) SendRealtimeInput(chunk genai.MediaChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: chunk.MIMEType, Data: chunk.Data},
			},
		},
	}
	return s.writeJSON(msg)
}

// Close terminates the session and releases its connection. Idempotent.
func (s *liveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
