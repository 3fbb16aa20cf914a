package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/resona-ai/resona/internal/app"
	"github.com/resona-ai/resona/internal/config"
	"github.com/resona-ai/resona/internal/live"
	"github.com/resona-ai/resona/internal/observe"
	"github.com/resona-ai/resona/internal/voices"
	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/provider/genai"
	"github.com/resona-ai/resona/pkg/provider/text"
)

// maxRequestBody caps request bodies. Video seed images are the largest
// expected payload.
const maxRequestBody = 32 << 20

// ── Generation endpoints ─────────────────────────────────────────────────────

type textRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

type textResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	provider := s.app.Text()
	if provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no text provider configured")
		return
	}

	start := time.Now()
	out, err := provider.Generate(r.Context(), text.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	s.recordGeneration(r, "text", s.app.Metrics().TextDuration, start, err)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, textResponse{Text: out})
}

type speechRequest struct {
	Text      string `json:"text"`
	Voice     string `json:"voice,omitempty"`
	Character string `json:"character,omitempty"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	provider := s.app.Media()
	if provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	voice := req.Voice
	if req.Character != "" {
		cfg := s.app.Config()
		cc, ok := findCharacter(cfg, req.Character)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown character %q", req.Character))
			return
		}
		voice = voices.Select(voices.Selection{Gender: cc.Gender, Age: cc.Age, Override: cc.Voice})
	}
	if voice == "" {
		voice = voices.Default
	}

	start := time.Now()
	encoded, err := provider.GenerateSpeech(r.Context(), req.Text, voice)
	s.recordGeneration(r, "speech", s.app.Metrics().SpeechDuration, start, err)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}

	pcm, err := audio.DecodeBase64(encoded)
	if err != nil {
		observe.Logger(r.Context()).Warn("provider returned malformed audio payload", "err", err)
		writeError(w, http.StatusBadGateway, "provider returned malformed audio payload")
		return
	}
	wav, err := audio.PCMToWAV(pcm, live.OutputSampleRate, 1)
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider returned unusable audio payload")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type mediaResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	provider := s.app.Media()
	if provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	start := time.Now()
	url, err := provider.GenerateImage(r.Context(), req.Prompt)
	s.recordGeneration(r, "image", s.app.Metrics().ImageDuration, start, err)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mediaResponse{URL: url})
}

type videoRequest struct {
	Prompt        string `json:"prompt"`
	ImageData     string `json:"image_data,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
	Model         string `json:"model,omitempty"`
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.ImageData != "" {
		if _, err := audio.DecodeBase64(req.ImageData); err != nil {
			writeError(w, http.StatusBadRequest, "image_data is not valid base64")
			return
		}
	}
	provider := s.app.Media()
	if provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	start := time.Now()
	url, err := provider.GenerateVideo(r.Context(), genai.VideoRequest{
		Prompt:        req.Prompt,
		ImageData:     req.ImageData,
		ImageMIMEType: req.ImageMIMEType,
		Model:         req.Model,
	})
	s.recordGeneration(r, "video", s.app.Metrics().VideoDuration, start, err)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mediaResponse{URL: url})
}

// ── Live session endpoints ───────────────────────────────────────────────────

type liveStartRequest struct {
	Character string `json:"character,omitempty"`
}

type liveStatusResponse struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Voice     string `json:"voice,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info, err := s.app.StartLive(r.Context(), req.Character)
	if err != nil {
		var devErr *live.DeviceError
		var sessErr *live.SessionError
		switch {
		case errors.Is(err, app.ErrUnknownCharacter):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, app.ErrNoLiveProvider):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &devErr):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &sessErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, liveStatusResponse{
		State:     s.liveState().String(),
		SessionID: info.SessionID,
		Voice:     info.Voice,
		StartedAt: info.StartedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions().Stop(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, liveStatusResponse{State: live.StateClosed.String()})
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	st, info, err := s.app.Sessions().Status()
	resp := liveStatusResponse{
		State:     st.String(),
		SessionID: info.SessionID,
		Voice:     info.Voice,
	}
	if !info.StartedAt.IsZero() {
		resp.StartedAt = info.StartedAt.Format(time.RFC3339)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) liveState() live.State {
	st, _, _ := s.app.Sessions().Status()
	return st
}

// ── Plumbing ─────────────────────────────────────────────────────────────────

// recordGeneration records the latency histogram and the provider request
// counter for one generation call.
func (s *Server) recordGeneration(r *http.Request, kind string, hist metric.Float64Histogram, start time.Time, err error) {
	ctx := r.Context()
	m := s.app.Metrics()

	providerName := s.providerName(kind)
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, providerName, kind)
	}
	m.RecordProviderRequest(ctx, providerName, kind, status)
	hist.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", providerName)),
	)
}

func (s *Server) providerName(kind string) string {
	cfg := s.app.Config()
	if kind == "text" {
		return cfg.Providers.Text.Name
	}
	return cfg.Providers.Media.Name
}

// decodeBody parses the JSON request body into v, enforcing the size cap and
// rejecting unknown fields. Writes a 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeProviderError maps a provider failure onto an HTTP status.
func writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Warn("provider call failed", "err", err)

	var decErr *audio.DecodeError
	switch {
	case errors.Is(err, genai.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, audio.ErrEmptyPayload), errors.As(err, &decErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// findCharacter looks up a configured character by name, ignoring case.
func findCharacter(cfg *config.Config, name string) (config.CharacterConfig, bool) {
	for _, c := range cfg.Characters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return config.CharacterConfig{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
