// Package gemini implements the genai.Provider and genai.LiveDialer
// interfaces on top of Google's Generative Language API.
//
// One-shot speech and image generation go through the REST generateContent
// endpoint; video generation drives a Veo long-running operation and polls it
// to completion. The live duplex session speaks the BidiGenerateContent
// WebSocket protocol: audio travels as base64-encoded PCM chunks in both
// directions.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/resona-ai/resona/pkg/provider/genai"
)

// Compile-time assertions that Provider satisfies the genai interfaces.
var _ genai.Provider = (*Provider)(nil)
var _ genai.LiveDialer = (*Provider)(nil)

const (
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
	defaultImageModel  = "gemini-2.0-flash-preview-image-generation"
	defaultVideoModel  = "veo-2.0-generate-001"
	defaultLiveModel   = "gemini-2.0-flash-live-001"

	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultLiveURL = "wss://generativelanguage.googleapis.com/ws"

	videoPollInterval = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithSpeechModel sets the model used for one-shot speech synthesis.
func WithSpeechModel(model string) Option {
	return func(p *Provider) { p.speechModel = model }
}

// WithImageModel sets the model used for image generation.
func WithImageModel(model string) Option {
	return func(p *Provider) { p.imageModel = model }
}

// WithVideoModel sets the model used for video generation.
func WithVideoModel(model string) Option {
	return func(p *Provider) { p.videoModel = model }
}

// WithLiveModel sets the model used for live duplex sessions.
func WithLiveModel(model string) Option {
	return func(p *Provider) { p.liveModel = model }
}

// WithBaseURL overrides the REST base URL. Primarily used in tests to point
// at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithLiveURL overrides the base WebSocket URL for live sessions.
func WithLiveURL(url string) Option {
	return func(p *Provider) { p.liveURL = url }
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpc = c }
}

// WithVideoPollInterval sets how often a running video operation is polled.
// Primarily used in tests.
func WithVideoPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements multimodal generation against the Generative Language
// API.
type Provider struct {
	apiKey       string
	speechModel  string
	imageModel   string
	videoModel   string
	liveModel    string
	baseURL      string
	liveURL      string
	httpc        *http.Client
	pollInterval time.Duration
}

// New creates a new Gemini Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		speechModel:  defaultSpeechModel,
		imageModel:   defaultImageModel,
		videoModel:   defaultVideoModel,
		liveModel:    defaultLiveModel,
		baseURL:      defaultBaseURL,
		liveURL:      defaultLiveURL,
		httpc:        &http.Client{Timeout: 120 * time.Second},
		pollInterval: videoPollInterval,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Gemini backend.
func (p *Provider) Capabilities() genai.Capabilities {
	return genai.Capabilities{
		Speech: true,
		Image:  true,
		Video:  true,
		Live:   true,
		Voices: []genai.Voice{
			{ID: "Aoede", Name: "Aoede"},
			{ID: "Charon", Name: "Charon"},
			{ID: "Fenrir", Name: "Fenrir"},
			{ID: "Kore", Name: "Kore"},
			{ID: "Puck", Name: "Puck"},
		},
	}
}

// ── REST message types ─────────────────────────────────────────────────────────

type generateRequest struct {
	Contents         []contentTurn     `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type contentTurn struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content contentTurn `json:"content"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// ── REST operations ────────────────────────────────────────────────────────────

// GenerateSpeech synthesises text into 24 kHz mono PCM16 audio and returns it
// still base64-encoded, exactly as the API delivers it.
func (p *Provider) GenerateSpeech(ctx context.Context, text, voiceID string) (string, error) {
	req := generateRequest{
		Contents: []contentTurn{{Parts: []part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceID},
				},
			},
		},
	}

	var resp generateResponse
	if err := p.postJSON(ctx, p.generatePath(p.speechModel), req, &resp); err != nil {
		return "", fmt.Errorf("gemini: speech: %w", err)
	}

	for _, c := range resp.Candidates {
		for _, pt := range c.Content.Parts {
			if pt.InlineData != nil {
				return pt.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("gemini: speech: response contained no audio data")
}

// GenerateImage renders prompt into an image and returns it as a data: URL.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Contents: []contentTurn{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp generateResponse
	if err := p.postJSON(ctx, p.generatePath(p.imageModel), req, &resp); err != nil {
		return "", fmt.Errorf("gemini: image: %w", err)
	}

	for _, c := range resp.Candidates {
		for _, pt := range c.Content.Parts {
			if pt.InlineData != nil {
				mime := pt.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return fmt.Sprintf("data:%s;base64,%s", mime, pt.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("gemini: image: response contained no image data")
}

// ── Video (Veo long-running operation) ─────────────────────────────────────────

type videoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type videoParameters struct {
	NumberOfVideos int `json:"numberOfVideos"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateVideo starts a Veo generation operation and polls it until the clip
// is ready. Generation takes on the order of a minute; pass a ctx with a
// generous deadline.
func (p *Provider) GenerateVideo(ctx context.Context, req genai.VideoRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.videoModel
	}

	vr := videoRequest{
		Instances:  []videoInstance{{Prompt: req.Prompt}},
		Parameters: videoParameters{NumberOfVideos: 1},
	}
	if req.ImageData != "" {
		vr.Instances[0].Image = &videoImage{
			BytesBase64Encoded: req.ImageData,
			MIMEType:           req.ImageMIMEType,
		}
	}

	var op operation
	path := fmt.Sprintf("/v1beta/models/%s:predictLongRunning", model)
	if err := p.postJSON(ctx, path, vr, &op); err != nil {
		return "", fmt.Errorf("gemini: video: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("gemini: video: operation has no name")
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("gemini: video: %w", ctx.Err())
		case <-ticker.C:
		}
		if err := p.getJSON(ctx, "/v1beta/"+op.Name, &op); err != nil {
			return "", fmt.Errorf("gemini: video: poll: %w", err)
		}
	}

	if op.Error != nil {
		return "", fmt.Errorf("gemini: video: operation failed: %s", op.Error.Message)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return "", fmt.Errorf("gemini: video: operation completed without samples")
	}
	return op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI, nil
}

// ── HTTP plumbing ──────────────────────────────────────────────────────────────

func (p *Provider) generatePath(model string) string {
	return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
}

func (p *Provider) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s?key=%s", p.baseURL, path, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req, respBody)
}

func (p *Provider) getJSON(ctx context.Context, path string, respBody any) error {
	url := fmt.Sprintf("%s%s?key=%s", p.baseURL, path, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return p.do(req, respBody)
}

func (p *Provider) do(req *http.Request, respBody any) error {
	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, ae.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
